package wire

import (
	"math"
	"strings"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/tidwall/gjson"
)

var arithOps = map[string]dockit.ArithOp{
	"$add":      dockit.ArithAdd,
	"$subtract": dockit.ArithSubtract,
	"$multiply": dockit.ArithMultiply,
	"$divide":   dockit.ArithDivide,
	"$mod":      dockit.ArithMod,
}

var accumulators = map[string]dockit.AggregateFunction{
	"$sum":   dockit.AggregateSum,
	"$avg":   dockit.AggregateAvg,
	"$count": dockit.AggregateCount,
	"$push":  dockit.AggregatePush,
	"$min":   dockit.AggregateMin,
	"$max":   dockit.AggregateMax,
}

// ParsePipeline parses an array of stage documents, ex:
//
//	[{"$group": {"_id": "$genre", "averagePrice": {"$avg": "$price"}}}, {"$sort": {"averagePrice": -1}}]
func ParsePipeline(content []byte) ([]dockit.Stage, error) {
	bits, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidStage, "failed to parse pipeline")
	}
	r := gjson.ParseBytes(bits)
	if !gjson.ValidBytes(bits) || !r.IsArray() {
		return nil, errors.New(errors.InvalidStage, "pipeline must be an array of stages")
	}
	return PipelineFrom(r)
}

// PipelineFrom converts a parsed array of stage documents
func PipelineFrom(r gjson.Result) ([]dockit.Stage, error) {
	var stages []dockit.Stage
	for i, s := range r.Array() {
		stage, err := stageFrom(s)
		if err != nil {
			return nil, errors.Wrap(err, 0, "stage %d", i)
		}
		stages = append(stages, stage)
	}
	return stages, dockit.ValidatePipeline(stages)
}

func stageFrom(r gjson.Result) (dockit.Stage, error) {
	if !r.IsObject() || len(r.Map()) != 1 {
		return nil, errors.New(errors.InvalidStage, "a stage must be an object with exactly one operator: %s", r.Raw)
	}
	var (
		stage dockit.Stage
		err   error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "$match":
			var filter dockit.Filter
			filter, err = FilterFrom(value)
			stage = dockit.MatchStage{Filter: filter}
		case "$group":
			stage, err = groupFrom(value)
		case "$sort":
			var orderBy []dockit.OrderBy
			orderBy, err = SortFrom(value)
			stage = dockit.SortStage{Fields: orderBy}
		case "$limit":
			var n int
			n, err = stageCount(key.String(), value)
			stage = dockit.LimitStage{N: n}
		case "$skip":
			var n int
			n, err = stageCount(key.String(), value)
			stage = dockit.SkipStage{N: n}
		case "$project":
			stage, err = projectFrom(value)
		default:
			err = errors.New(errors.InvalidStage, "unsupported stage: %s", key.String())
		}
		return false
	})
	return stage, err
}

// stageCount reads the integer argument of $limit and $skip
func stageCount(op string, value gjson.Result) (int, error) {
	if value.Type != gjson.Number || value.Num != math.Trunc(value.Num) {
		return 0, errors.New(errors.InvalidStage, "%s expects an integer: %s", op, value.Raw)
	}
	return int(value.Num), nil
}

func groupFrom(r gjson.Result) (dockit.Stage, error) {
	if !r.IsObject() {
		return nil, errors.New(errors.InvalidStage, "$group expects an object")
	}
	var (
		group dockit.GroupStage
		err   error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == dockit.IDField {
			if value.Type != gjson.Null {
				group.Key, err = ExprFrom(value)
			}
			return err == nil
		}
		if !value.IsObject() || len(value.Map()) != 1 {
			err = errors.New(errors.InvalidStage, "accumulator %s must be an object with exactly one operator", name)
			return false
		}
		value.ForEach(func(op, arg gjson.Result) bool {
			fn, ok := accumulators[op.String()]
			if !ok {
				err = errors.New(errors.InvalidStage, "unsupported accumulator %s", op.String())
				return false
			}
			acc := dockit.Accumulator{Name: name, Function: fn}
			if fn != dockit.AggregateCount {
				acc.Expr, err = ExprFrom(arg)
			}
			group.Accumulators = append(group.Accumulators, acc)
			return false
		})
		return err == nil
	})
	return group, err
}

func projectFrom(r gjson.Result) (dockit.Stage, error) {
	if !r.IsObject() {
		return nil, errors.New(errors.InvalidStage, "$project expects an object")
	}
	var (
		project dockit.ProjectStage
		err     error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		field := dockit.ProjectField{Name: key.String()}
		switch value.Type {
		case gjson.Number, gjson.True, gjson.False:
			field.Exclude = !value.Bool()
		default:
			field.Expr, err = ExprFrom(value)
		}
		project.Fields = append(project.Fields, field)
		return err == nil
	})
	return project, err
}

// ExprFrom converts an expression. Strings starting with $ reference fields, objects apply
// an arithmetic operator ($add, $subtract, $multiply, $divide, $mod) or wrap a $literal,
// and any other value is a literal.
func ExprFrom(r gjson.Result) (dockit.Expr, error) {
	switch {
	case r.Type == gjson.String && strings.HasPrefix(r.String(), "$"):
		return dockit.Ref(strings.TrimPrefix(r.String(), "$")), nil
	case r.IsObject():
		if len(r.Map()) != 1 {
			return nil, errors.New(errors.InvalidStage, "an expression object must have exactly one operator: %s", r.Raw)
		}
		var (
			expr dockit.Expr
			err  error
		)
		r.ForEach(func(key, value gjson.Result) bool {
			if key.String() == "$literal" {
				expr = dockit.Literal{Value: value.Value()}
				return false
			}
			op, ok := arithOps[key.String()]
			if !ok {
				err = errors.New(errors.InvalidStage, "unsupported expression operator %s", key.String())
				return false
			}
			arith := dockit.Arith{Op: op}
			args := []gjson.Result{value}
			if value.IsArray() {
				args = value.Array()
			}
			for _, arg := range args {
				e, argErr := ExprFrom(arg)
				if argErr != nil {
					err = argErr
					return false
				}
				arith.Args = append(arith.Args, e)
			}
			expr = arith
			return false
		})
		return expr, err
	}
	return dockit.Literal{Value: r.Value()}, nil
}
