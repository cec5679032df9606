package dockit

import (
	"context"
	"math"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Expr is a value computed from a document. The set of implementations is closed: FieldRef, Literal and Arith.
type Expr interface {
	isExpr()
}

// FieldRef resolves a field of the document. Missing fields resolve to null.
type FieldRef struct {
	Path string
}

// Literal is a constant value
type Literal struct {
	Value any
}

// ArithOp is an arithmetic operator
type ArithOp string

const (
	ArithAdd      ArithOp = "add"
	ArithSubtract ArithOp = "subtract"
	ArithMultiply ArithOp = "multiply"
	ArithDivide   ArithOp = "divide"
	ArithMod      ArithOp = "mod"
)

// Arith applies an arithmetic operator to its arguments. A null argument yields null.
type Arith struct {
	Op   ArithOp
	Args []Expr
}

func (FieldRef) isExpr() {}
func (Literal) isExpr()  {}
func (Arith) isExpr()    {}

// Ref references a document field
func Ref(path string) Expr {
	return FieldRef{Path: path}
}

func validateExpr(e Expr) error {
	switch e := e.(type) {
	case FieldRef:
		if e.Path == "" {
			return errors.New(errors.InvalidStage, "empty field reference")
		}
	case Literal:
	case Arith:
		switch e.Op {
		case ArithAdd, ArithMultiply:
			if len(e.Args) == 0 {
				return errors.New(errors.InvalidStage, "%s requires at least one argument", e.Op)
			}
		case ArithSubtract, ArithDivide, ArithMod:
			if len(e.Args) != 2 {
				return errors.New(errors.InvalidStage, "%s requires exactly two arguments, got %d", e.Op, len(e.Args))
			}
		default:
			return errors.New(errors.InvalidStage, "unsupported arithmetic operator '%s'", e.Op)
		}
		for _, arg := range e.Args {
			if err := validateExpr(arg); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.InvalidStage, "unsupported expression %T", e)
	}
	return nil
}

// eval computes the expression against the document. A TypeMismatch error is returned when
// arithmetic is applied to non numeric values.
func eval(e Expr, doc *Document) (any, error) {
	switch e := e.(type) {
	case nil:
		return nil, nil
	case FieldRef:
		return doc.Get(e.Path), nil
	case Literal:
		return util.Normalize(e.Value), nil
	case Arith:
		args := make([]float64, 0, len(e.Args))
		for _, arg := range e.Args {
			value, err := eval(arg, doc)
			if err != nil {
				return nil, err
			}
			if value == nil {
				return nil, nil
			}
			if !util.IsNumber(value) {
				return nil, errors.New(errors.TypeMismatch, "%s: non numeric operand %v", e.Op, value)
			}
			args = append(args, cast.ToFloat64(value))
		}
		switch e.Op {
		case ArithAdd:
			return lo.SumBy(args, func(v float64) float64 { return v }), nil
		case ArithMultiply:
			return lo.Reduce(args, func(product float64, v float64, _ int) float64 { return product * v }, 1.0), nil
		case ArithSubtract:
			return args[0] - args[1], nil
		case ArithDivide:
			if args[1] == 0 {
				return nil, errors.New(errors.TypeMismatch, "division by zero")
			}
			return args[0] / args[1], nil
		case ArithMod:
			if args[1] == 0 {
				return nil, errors.New(errors.TypeMismatch, "modulo by zero")
			}
			return math.Mod(args[0], args[1]), nil
		}
	}
	return nil, errors.New(errors.InvalidStage, "unsupported expression %T", e)
}

// AggregateFunction is an accumulator applied within a group
type AggregateFunction string

const (
	// AggregateSum calculates the sum of numeric values
	AggregateSum AggregateFunction = "sum"
	// AggregateAvg calculates the mean of numeric values, null when there are none
	AggregateAvg AggregateFunction = "avg"
	// AggregateCount counts the documents in the group
	AggregateCount AggregateFunction = "count"
	// AggregatePush collects values in input order
	AggregatePush AggregateFunction = "push"
	// AggregateMin selects the smallest value
	AggregateMin AggregateFunction = "min"
	// AggregateMax selects the largest value
	AggregateMax AggregateFunction = "max"
)

// Accumulator computes the output field Name of a group
type Accumulator struct {
	Name     string
	Function AggregateFunction
	Expr     Expr
}

// Stage is one step of an aggregation pipeline. The set of implementations is closed:
// ProjectStage, GroupStage, SortStage, LimitStage, SkipStage and MatchStage.
type Stage interface {
	isStage()
}

// ProjectField is one field of a projection. A nil Expr copies the field when present.
type ProjectField struct {
	Name    string
	Expr    Expr
	Exclude bool
}

// ProjectStage reshapes each document
type ProjectStage struct {
	Fields []ProjectField
}

// GroupStage partitions documents by Key and computes accumulators per partition.
// Output documents hold _id (the key) then the accumulators in declared order.
type GroupStage struct {
	Key          Expr
	Accumulators []Accumulator
}

// SortStage stable sorts the documents
type SortStage struct {
	Fields []OrderBy
}

// LimitStage keeps the first N documents
type LimitStage struct {
	N int
}

// SkipStage drops the first N documents
type SkipStage struct {
	N int
}

// MatchStage keeps the documents matching the filter
type MatchStage struct {
	Filter Filter
}

func (ProjectStage) isStage() {}
func (GroupStage) isStage()   {}
func (SortStage) isStage()    {}
func (LimitStage) isStage()   {}
func (SkipStage) isStage()    {}
func (MatchStage) isStage()   {}

// ValidatePipeline returns an InvalidStage (or InvalidFilter) error if any stage is malformed
func ValidatePipeline(stages []Stage) error {
	for i, stage := range stages {
		if err := validateStage(stage); err != nil {
			return errors.Wrap(err, 0, "stage %d", i)
		}
	}
	return nil
}

func validateStage(stage Stage) error {
	switch stage := stage.(type) {
	case ProjectStage:
		if len(stage.Fields) == 0 {
			return errors.New(errors.InvalidStage, "empty projection")
		}
		var excluded, included int
		for _, f := range stage.Fields {
			if f.Name == "" {
				return errors.New(errors.InvalidStage, "empty projection field")
			}
			switch {
			case f.Exclude && f.Name != IDField:
				excluded++
			case !f.Exclude:
				included++
			}
			if f.Expr != nil {
				if err := validateExpr(f.Expr); err != nil {
					return err
				}
			}
		}
		if excluded > 0 && included > 0 {
			return errors.New(errors.InvalidStage, "projection cannot mix included and excluded fields")
		}
	case GroupStage:
		if stage.Key != nil {
			if err := validateExpr(stage.Key); err != nil {
				return err
			}
		}
		var names []string
		for _, acc := range stage.Accumulators {
			if acc.Name == "" || acc.Name == IDField {
				return errors.New(errors.InvalidStage, "invalid accumulator name '%s'", acc.Name)
			}
			names = append(names, acc.Name)
			switch acc.Function {
			case AggregateCount:
			case AggregateSum, AggregateAvg, AggregatePush, AggregateMin, AggregateMax:
				if acc.Expr == nil {
					return errors.New(errors.InvalidStage, "%s accumulator %s requires an expression", acc.Function, acc.Name)
				}
			default:
				return errors.New(errors.InvalidStage, "unsupported accumulator '%s'", acc.Function)
			}
			if acc.Expr != nil {
				if err := validateExpr(acc.Expr); err != nil {
					return err
				}
			}
		}
		if len(lo.Uniq(names)) != len(names) {
			return errors.New(errors.InvalidStage, "duplicate accumulator name")
		}
	case SortStage:
		if len(stage.Fields) == 0 {
			return errors.New(errors.InvalidStage, "empty sort")
		}
		for _, f := range stage.Fields {
			if f.Field == "" {
				return errors.New(errors.InvalidStage, "empty sort field")
			}
			if f.Direction != "" && f.Direction != OrderByDirectionAsc && f.Direction != OrderByDirectionDesc {
				return errors.New(errors.InvalidStage, "unsupported sort direction '%s'", f.Direction)
			}
		}
	case LimitStage:
		if stage.N <= 0 {
			return errors.New(errors.InvalidStage, "limit must be positive, got %d", stage.N)
		}
	case SkipStage:
		if stage.N < 0 {
			return errors.New(errors.InvalidStage, "skip must not be negative, got %d", stage.N)
		}
	case MatchStage:
		return ValidateFilter(stage.Filter)
	default:
		return errors.New(errors.InvalidStage, "unsupported stage %T", stage)
	}
	return nil
}

// source is a pull based stream of documents between pipeline stages
type source interface {
	next() (*Document, bool, error)
}

type scanSource struct {
	scanner *scanner
}

func (s *scanSource) next() (*Document, bool, error) {
	doc, _, ok := s.scanner.next()
	return doc, ok, nil
}

// pipeline holds the state shared by the stages of one aggregation
type pipeline struct {
	ctx        context.Context
	collection *Collection
}

func (p *pipeline) mismatch(stage string, err error) {
	p.collection.db.logger.Debug(p.ctx, "skipped type mismatch", map[string]any{
		"collection": p.collection.name,
		"stage":      stage,
		"error":      err.Error(),
	})
}

type projectSource struct {
	*pipeline
	in    source
	stage ProjectStage
}

func (s *projectSource) next() (*Document, bool, error) {
	doc, ok, err := s.in.next()
	if !ok || err != nil {
		return nil, ok, err
	}
	if !lo.ContainsBy(s.stage.Fields, func(f ProjectField) bool { return !f.Exclude }) {
		out := doc.Clone()
		for _, f := range s.stage.Fields {
			if err := out.Del(f.Name); err != nil {
				return nil, false, err
			}
		}
		return out, true, nil
	}
	out := NewDocument()
	fields := s.stage.Fields
	if !lo.ContainsBy(fields, func(f ProjectField) bool { return f.Name == IDField }) {
		fields = append([]ProjectField{{Name: IDField}}, fields...)
	}
	for _, f := range fields {
		if f.Exclude {
			continue
		}
		if f.Expr == nil {
			value, ok := doc.lookupRaw(f.Name)
			if !ok {
				continue
			}
			if err := out.Set(f.Name, value); err != nil {
				return nil, false, err
			}
			continue
		}
		value, err := eval(f.Expr, doc)
		if err != nil {
			if !errors.Is(err, errors.TypeMismatch) {
				return nil, false, err
			}
			s.mismatch("project", err)
			value = nil
		}
		if err := out.Set(f.Name, value); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

type matchSource struct {
	in     source
	filter Filter
}

func (s *matchSource) next() (*Document, bool, error) {
	for {
		doc, ok, err := s.in.next()
		if !ok || err != nil {
			return nil, ok, err
		}
		if Matches(doc, s.filter) {
			return doc, true, nil
		}
	}
}

type skipSource struct {
	in      source
	n       int
	skipped bool
}

func (s *skipSource) next() (*Document, bool, error) {
	if !s.skipped {
		s.skipped = true
		for i := 0; i < s.n; i++ {
			if _, ok, err := s.in.next(); !ok || err != nil {
				return nil, ok, err
			}
		}
	}
	return s.in.next()
}

type limitSource struct {
	in       source
	n        int
	returned int
}

func (s *limitSource) next() (*Document, bool, error) {
	if s.returned >= s.n {
		return nil, false, nil
	}
	doc, ok, err := s.in.next()
	if ok {
		s.returned++
	}
	return doc, ok, err
}

// sliceSource replays documents buffered by a blocking stage
type sliceSource struct {
	docs Documents
	fill func() (Documents, error)
	done bool
}

func (s *sliceSource) next() (*Document, bool, error) {
	if !s.done {
		s.done = true
		docs, err := s.fill()
		if err != nil {
			return nil, false, err
		}
		s.docs = docs
	}
	if len(s.docs) == 0 {
		return nil, false, nil
	}
	doc := s.docs[0]
	s.docs = s.docs[1:]
	return doc, true, nil
}

func (p *pipeline) drain(in source) (Documents, error) {
	capacity := p.collection.db.config.MaxSortDocuments
	var docs Documents
	for {
		doc, ok, err := in.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return docs, nil
		}
		if capacity > 0 && len(docs) >= capacity {
			return nil, errors.New(errors.ResourceExhausted, "aggregation exceeded %d buffered documents", capacity)
		}
		docs = append(docs, doc)
	}
}

func (p *pipeline) sort(in source, stage SortStage) source {
	orderBy := lo.Map(stage.Fields, func(o OrderBy, _ int) OrderBy {
		if o.Direction == "" {
			o.Direction = OrderByDirectionAsc
		}
		return o
	})
	return &sliceSource{fill: func() (Documents, error) {
		docs, err := p.drain(in)
		if err != nil {
			return nil, err
		}
		SortDocuments(docs, orderBy)
		return docs, nil
	}}
}

type group struct {
	key    any
	values []accumulatorState
}

type accumulatorState struct {
	sum   float64
	count int
	items []any
	best  any
}

func (p *pipeline) group(in source, stage GroupStage) source {
	return &sliceSource{fill: func() (Documents, error) {
		var (
			groups []*group
			byKey  = map[string]*group{}
		)
		for {
			doc, ok, err := in.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			key, err := eval(stage.Key, doc)
			if err != nil {
				if !errors.Is(err, errors.TypeMismatch) {
					return nil, err
				}
				p.mismatch("group", err)
				key = nil
			}
			hash := util.JSONString(key)
			g, ok := byKey[hash]
			if !ok {
				g = &group{key: key, values: make([]accumulatorState, len(stage.Accumulators))}
				byKey[hash] = g
				groups = append(groups, g)
			}
			for i, acc := range stage.Accumulators {
				p.accumulate(&g.values[i], acc, doc)
			}
		}
		out := make(Documents, 0, len(groups))
		for _, g := range groups {
			fields := []Field{{Name: IDField, Value: g.key}}
			for i, acc := range stage.Accumulators {
				fields = append(fields, Field{Name: acc.Name, Value: g.values[i].result(acc.Function)})
			}
			doc, err := NewDocumentFromFields(fields...)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
		return out, nil
	}}
}

func (p *pipeline) accumulate(state *accumulatorState, acc Accumulator, doc *Document) {
	if acc.Function == AggregateCount {
		state.count++
		return
	}
	if ref, ok := acc.Expr.(FieldRef); ok && !doc.Exists(ref.Path) {
		return
	}
	value, err := eval(acc.Expr, doc)
	if err != nil {
		p.mismatch("group", err)
		return
	}
	switch acc.Function {
	case AggregatePush:
		state.items = append(state.items, value)
	case AggregateSum, AggregateAvg:
		if value == nil {
			return
		}
		if !util.IsNumber(value) {
			p.mismatch("group", errors.New(errors.TypeMismatch, "%s accumulator %s: non numeric value %v", acc.Function, acc.Name, value))
			return
		}
		state.sum += cast.ToFloat64(value)
		state.count++
	case AggregateMin, AggregateMax:
		if value == nil {
			return
		}
		c := 0
		if state.count > 0 {
			c = util.Compare(value, state.best)
		}
		if state.count == 0 || (acc.Function == AggregateMin && c < 0) || (acc.Function == AggregateMax && c > 0) {
			state.best = value
		}
		state.count++
	}
}

func (s accumulatorState) result(fn AggregateFunction) any {
	switch fn {
	case AggregateCount:
		return s.count
	case AggregateSum:
		return s.sum
	case AggregateAvg:
		if s.count == 0 {
			return nil
		}
		return s.sum / float64(s.count)
	case AggregatePush:
		if s.items == nil {
			return []any{}
		}
		return s.items
	}
	return s.best
}

// aggregateIterator exposes the last stage of a pipeline as an Iterator
type aggregateIterator struct {
	ctx     context.Context
	out     source
	current *Document
	err     error
	closed  bool
}

func (a *aggregateIterator) Next() bool {
	if a.closed || a.err != nil {
		return false
	}
	if err := a.ctx.Err(); err != nil {
		a.err = errors.Wrap(err, errors.Internal, "aggregation cancelled")
		return false
	}
	doc, ok, err := a.out.next()
	if err != nil {
		a.err = err
		return false
	}
	if !ok {
		return false
	}
	a.current = doc.Clone()
	return true
}

func (a *aggregateIterator) Document() *Document {
	return a.current
}

func (a *aggregateIterator) Err() error {
	return a.err
}

func (a *aggregateIterator) Close() {
	a.closed = true
	a.current = nil
}

// Aggregate runs the stages left to right over the collection. Every stage is validated before
// any document is read. A leading MatchStage is planned like a find so it can use an index.
// Stages that cannot apply to a document's values (ex: averaging a string) skip that
// document's contribution.
func (c *Collection) Aggregate(ctx context.Context, stages []Stage) (Iterator, error) {
	err := ValidatePipeline(stages)
	c.db.metrics.observe(c.name, "aggregate", err)
	if err != nil {
		return nil, err
	}
	var filter Filter = And{}
	if len(stages) > 0 {
		if match, ok := stages[0].(MatchStage); ok {
			filter = match.Filter
			stages = stages[1:]
		}
	}
	p := &pipeline{ctx: ctx, collection: c}
	s := newScanner(c.snapshot(), filter, nil)
	var out source = &scanSource{scanner: s}
	for _, stage := range stages {
		switch stage := stage.(type) {
		case ProjectStage:
			out = &projectSource{pipeline: p, in: out, stage: stage}
		case GroupStage:
			out = p.group(out, stage)
		case SortStage:
			out = p.sort(out, stage)
		case LimitStage:
			out = &limitSource{in: out, n: stage.N}
		case SkipStage:
			out = &skipSource{in: out, n: stage.N}
		case MatchStage:
			out = &matchSource{in: out, filter: stage.Filter}
		}
	}
	c.db.logger.Debug(ctx, "planned aggregation", map[string]any{
		"collection": c.name,
		"stage":      s.plan.Stage,
		"index":      s.plan.IndexName(),
		"stages":     len(stages),
	})
	return &aggregateIterator{ctx: ctx, out: out}, nil
}

// AggregateAll runs the pipeline and drains the results
func (c *Collection) AggregateAll(ctx context.Context, stages []Stage) (Documents, error) {
	it, err := c.Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var docs Documents
	for it.Next() {
		docs = append(docs, it.Document())
	}
	return docs, it.Err()
}
