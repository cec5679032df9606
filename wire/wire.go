// Package wire decodes mongo style query documents, ex: {"published_year": {"$gt": 1950}},
// into the filters, sorts, projections, index descriptors, mutations and pipelines of a dockit database.
package wire

import (
	"strings"

	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/tidwall/gjson"
)

// Operator is a query operator
type Operator string

const (
	OpEq  Operator = "$eq"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
	OpIn  Operator = "$in"
	OpAnd Operator = "$and"
)

var rangeOps = map[Operator]dockit.WhereOp{
	OpGt:  dockit.WhereOpGt,
	OpGte: dockit.WhereOpGte,
	OpLt:  dockit.WhereOpLt,
	OpLte: dockit.WhereOpLte,
}

// parse parses yaml or json into an object. Empty input is an empty object.
func parse(content []byte, code errors.Code) (gjson.Result, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return gjson.Parse("{}"), nil
	}
	bits, err := util.YAMLToJSON(content)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, code, "failed to parse query")
	}
	if !gjson.ValidBytes(bits) {
		return gjson.Result{}, errors.New(code, "invalid json: %s", string(bits))
	}
	r := gjson.ParseBytes(bits)
	if !r.IsObject() {
		return gjson.Result{}, errors.New(code, "expected an object, got: %s", r.Raw)
	}
	return r, nil
}

func isOperatorObject(r gjson.Result) bool {
	operator := false
	r.ForEach(func(key, _ gjson.Result) bool {
		operator = strings.HasPrefix(key.String(), "$")
		return false
	})
	return operator
}

// ParseFilter parses a filter document. Top level fields are an implicit conjunction and a
// field mapped to a plain value is an equality predicate.
func ParseFilter(content []byte) (dockit.Filter, error) {
	r, err := parse(content, errors.InvalidFilter)
	if err != nil {
		return nil, err
	}
	return FilterFrom(r)
}

// FilterFrom converts a parsed filter document
func FilterFrom(r gjson.Result) (dockit.Filter, error) {
	if !r.IsObject() {
		return nil, errors.New(errors.InvalidFilter, "filter must be an object, got: %s", r.Raw)
	}
	var (
		filters []dockit.Filter
		err     error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		field := key.String()
		switch {
		case Operator(field) == OpAnd:
			if !value.IsArray() {
				err = errors.New(errors.InvalidFilter, "%s expects an array", OpAnd)
				return false
			}
			var children []dockit.Filter
			for _, child := range value.Array() {
				f, childErr := FilterFrom(child)
				if childErr != nil {
					err = childErr
					return false
				}
				children = append(children, f)
			}
			filters = append(filters, dockit.All(children...))
		case strings.HasPrefix(field, "$"):
			err = errors.New(errors.InvalidFilter, "unsupported operator: %s", field)
			return false
		case value.IsObject() && isOperatorObject(value):
			predicates, opErr := operators(field, value)
			if opErr != nil {
				err = opErr
				return false
			}
			filters = append(filters, predicates...)
		default:
			filters = append(filters, dockit.Eq{Field: field, Value: value.Value()})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	filter := dockit.All(filters...)
	if err := dockit.ValidateFilter(filter); err != nil {
		return nil, err
	}
	return filter, nil
}

func operators(field string, r gjson.Result) ([]dockit.Filter, error) {
	var (
		filters []dockit.Filter
		err     error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		op := Operator(key.String())
		switch op {
		case OpEq:
			filters = append(filters, dockit.Eq{Field: field, Value: value.Value()})
		case OpGt, OpGte, OpLt, OpLte:
			filters = append(filters, dockit.Range{Field: field, Op: rangeOps[op], Value: value.Value()})
		case OpIn:
			if !value.IsArray() {
				err = errors.New(errors.InvalidFilter, "%s on field %s expects an array", op, field)
				return false
			}
			var values []any
			for _, v := range value.Array() {
				values = append(values, v.Value())
			}
			filters = append(filters, dockit.In{Field: field, Values: values})
		default:
			err = errors.New(errors.InvalidFilter, "unsupported operator %s on field %s", op, field)
			return false
		}
		return true
	})
	return filters, err
}

func direction(field string, value gjson.Result) (dockit.OrderByDirection, error) {
	switch {
	case value.Type == gjson.Number && value.Num == 1:
		return dockit.OrderByDirectionAsc, nil
	case value.Type == gjson.Number && value.Num == -1:
		return dockit.OrderByDirectionDesc, nil
	case value.String() == string(dockit.OrderByDirectionAsc):
		return dockit.OrderByDirectionAsc, nil
	case value.String() == string(dockit.OrderByDirectionDesc):
		return dockit.OrderByDirectionDesc, nil
	}
	return "", errors.New(errors.Validation, "invalid direction on field %s: %s", field, value.Raw)
}

// ParseSort parses a sort document, ex: {"price": -1, "title": 1}. Field order is preserved for json input.
func ParseSort(content []byte) ([]dockit.OrderBy, error) {
	r, err := parse(content, errors.Validation)
	if err != nil {
		return nil, err
	}
	return SortFrom(r)
}

// SortFrom converts a parsed sort document
func SortFrom(r gjson.Result) ([]dockit.OrderBy, error) {
	var (
		orderBy []dockit.OrderBy
		err     error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		dir, dirErr := direction(key.String(), value)
		if dirErr != nil {
			err = dirErr
			return false
		}
		orderBy = append(orderBy, dockit.OrderBy{Field: key.String(), Direction: dir})
		return true
	})
	return orderBy, err
}

// ParseProjection parses a projection document, ex: {"title": 1, "author": 1, "_id": 0}
func ParseProjection(content []byte) (dockit.Projection, error) {
	r, err := parse(content, errors.Validation)
	if err != nil {
		return dockit.Projection{}, err
	}
	var projection dockit.Projection
	r.ForEach(func(key, value gjson.Result) bool {
		if value.Bool() {
			projection.Include = append(projection.Include, key.String())
		} else {
			projection.Exclude = append(projection.Exclude, key.String())
		}
		return true
	})
	return projection, projection.Validate()
}

// ParseIndex parses index keys, ex: {"author": 1, "published_year": -1}
func ParseIndex(content []byte, dense bool) (dockit.IndexDescriptor, error) {
	r, err := parse(content, errors.Validation)
	if err != nil {
		return dockit.IndexDescriptor{}, err
	}
	fields, err := SortFrom(r)
	if err != nil {
		return dockit.IndexDescriptor{}, err
	}
	descriptor := dockit.IndexDescriptor{Fields: fields, Dense: dense}
	return descriptor, descriptor.Validate()
}

// ParseUpdate parses an update document made of $set, $unset and $inc operators
func ParseUpdate(content []byte) (dockit.Mutation, error) {
	r, err := parse(content, errors.Validation)
	if err != nil {
		return dockit.Mutation{}, err
	}
	var mutation dockit.Mutation
	r.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "$set":
			mutation.Set = flatObject(value)
		case "$inc":
			mutation.Inc = flatObject(value)
		case "$unset":
			if value.IsArray() {
				for _, f := range value.Array() {
					mutation.Unset = append(mutation.Unset, f.String())
				}
				return true
			}
			value.ForEach(func(field, _ gjson.Result) bool {
				mutation.Unset = append(mutation.Unset, field.String())
				return true
			})
		default:
			err = errors.New(errors.Validation, "unsupported update operator: %s", key.String())
			return false
		}
		return true
	})
	if err != nil {
		return dockit.Mutation{}, err
	}
	return mutation, mutation.Validate()
}

func flatObject(r gjson.Result) map[string]any {
	values := map[string]any{}
	r.ForEach(func(key, value gjson.Result) bool {
		values[key.String()] = value.Value()
		return true
	})
	return values
}

// ParseDocuments parses a yaml or json array of documents
func ParseDocuments(content []byte) (dockit.Documents, error) {
	bits, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to parse documents")
	}
	r := gjson.ParseBytes(bits)
	if !gjson.ValidBytes(bits) || !r.IsArray() {
		return nil, errors.New(errors.Validation, "expected an array of documents")
	}
	var docs dockit.Documents
	for _, value := range r.Array() {
		doc, err := dockit.NewDocumentFromBytes([]byte(value.Raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
