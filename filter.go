package dockit

import (
	"sort"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/samber/lo"
)

// WhereOp is a range comparison operator
type WhereOp string

// WhereOpGt is a check whether a value is greater than another
const WhereOpGt WhereOp = "gt"

// WhereOpGte is a check whether a value is greater than or equal to another
const WhereOpGte WhereOp = "gte"

// WhereOpLt is a check whether a value is less than another
const WhereOpLt WhereOp = "lt"

// WhereOpLte is a check whether a values is less than or equal to another
const WhereOpLte WhereOp = "lte"

// Filter is a predicate tree evaluated against documents.
// The set of implementations is closed: Eq, Range, In and And.
type Filter interface {
	isFilter()
}

// Eq matches documents whose field equals the value.
// Comparison is type sensitive: the string "1" does not equal the number 1.
type Eq struct {
	Field string
	Value any
}

// Range matches documents whose field compares to the value with the operator
type Range struct {
	Field string
	Op    WhereOp
	Value any
}

// In matches documents whose field equals one of the values
type In struct {
	Field  string
	Values []any
}

// And matches documents that match every child filter. An empty And matches everything.
type And struct {
	Filters []Filter
}

func (Eq) isFilter()    {}
func (Range) isFilter() {}
func (In) isFilter()    {}
func (And) isFilter()   {}

// All returns a filter matching every document
func All(filters ...Filter) Filter {
	return And{Filters: filters}
}

// Gt matches documents where field > value
func Gt(field string, value any) Filter {
	return Range{Field: field, Op: WhereOpGt, Value: value}
}

// Gte matches documents where field >= value
func Gte(field string, value any) Filter {
	return Range{Field: field, Op: WhereOpGte, Value: value}
}

// Lt matches documents where field < value
func Lt(field string, value any) Filter {
	return Range{Field: field, Op: WhereOpLt, Value: value}
}

// Lte matches documents where field <= value
func Lte(field string, value any) Filter {
	return Range{Field: field, Op: WhereOpLte, Value: value}
}

// Where builds an implicit conjunction of equality predicates from a map of field -> value
func Where(fields map[string]any) Filter {
	keys := lo.Keys(fields)
	sort.Strings(keys)
	return And{Filters: lo.Map(keys, func(k string, _ int) Filter {
		return Eq{Field: k, Value: fields[k]}
	})}
}

// ValidateFilter returns an InvalidFilter error if the filter tree is malformed
func ValidateFilter(f Filter) error {
	switch f := f.(type) {
	case nil:
		return errors.New(errors.InvalidFilter, "nil filter")
	case Eq:
		if f.Field == "" {
			return errors.New(errors.InvalidFilter, "empty field in equality predicate")
		}
	case Range:
		if f.Field == "" {
			return errors.New(errors.InvalidFilter, "empty field in range predicate")
		}
		switch f.Op {
		case WhereOpGt, WhereOpGte, WhereOpLt, WhereOpLte:
		default:
			return errors.New(errors.InvalidFilter, "unsupported range operator '%s' on field %s", f.Op, f.Field)
		}
		if f.Value == nil {
			return errors.New(errors.InvalidFilter, "null operand in range predicate on field %s", f.Field)
		}
	case In:
		if f.Field == "" {
			return errors.New(errors.InvalidFilter, "empty field in membership predicate")
		}
	case And:
		for _, child := range f.Filters {
			if err := ValidateFilter(child); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.InvalidFilter, "unsupported filter node %T", f)
	}
	return nil
}

// predicates flattens nested conjunctions into a list of field predicates
func predicates(f Filter) []Filter {
	switch f := f.(type) {
	case And:
		var out []Filter
		for _, child := range f.Filters {
			out = append(out, predicates(child)...)
		}
		return out
	case nil:
		return nil
	default:
		return []Filter{f}
	}
}

// bound is one side of a key range
type bound struct {
	value     any
	inclusive bool
	// open bounds extend to the edge of rank's type bracket
	open bool
	rank int
}

// fieldBounds is the set of constraints a filter places on one field
type fieldBounds struct {
	field string
	eq    []any
	lower bound
	upper bound
	// ranged is true when at least one range predicate constrains the field
	ranged bool
	// nonNull is true when every matching document must hold a non-null value for the field
	nonNull bool
}

// analyze groups the filter's predicates by field
func analyze(f Filter) map[string]*fieldBounds {
	out := map[string]*fieldBounds{}
	get := func(field string) *fieldBounds {
		b, ok := out[field]
		if !ok {
			b = &fieldBounds{field: field}
			out[field] = b
		}
		return b
	}
	for _, p := range predicates(f) {
		switch p := p.(type) {
		case Eq:
			b := get(p.Field)
			b.eq = append(b.eq, util.Normalize(p.Value))
			if p.Value != nil {
				b.nonNull = true
			}
		case In:
			b := get(p.Field)
			if len(p.Values) > 0 && !lo.Contains(p.Values, nil) {
				b.nonNull = true
			}
		case Range:
			b := get(p.Field)
			b.nonNull = true
			value := util.Normalize(p.Value)
			rank := util.TypeRank(value)
			if !b.ranged {
				b.lower = bound{open: true, rank: rank}
				b.upper = bound{open: true, rank: rank}
				b.ranged = true
			}
			switch p.Op {
			case WhereOpGt, WhereOpGte:
				next := bound{value: value, inclusive: p.Op == WhereOpGte, rank: rank}
				if b.lower.open || tighterLower(next, b.lower) {
					b.lower = next
				}
			case WhereOpLt, WhereOpLte:
				next := bound{value: value, inclusive: p.Op == WhereOpLte, rank: rank}
				if b.upper.open || tighterUpper(next, b.upper) {
					b.upper = next
				}
			}
		}
	}
	return out
}

func tighterLower(next, current bound) bool {
	c := util.Compare(next.value, current.value)
	return c > 0 || (c == 0 && !next.inclusive)
}

func tighterUpper(next, current bound) bool {
	c := util.Compare(next.value, current.value)
	return c < 0 || (c == 0 && !next.inclusive)
}

// aboveLower returns true if v satisfies the lower bound
func (b bound) aboveLower(v any) bool {
	if b.open {
		return util.TypeRank(v) >= b.rank
	}
	c := util.Compare(v, b.value)
	return c > 0 || (c == 0 && b.inclusive)
}

// belowUpper returns true if v satisfies the upper bound
func (b bound) belowUpper(v any) bool {
	if b.open {
		return util.TypeRank(v) <= b.rank
	}
	c := util.Compare(v, b.value)
	return c < 0 || (c == 0 && b.inclusive)
}
