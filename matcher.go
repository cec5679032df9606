package dockit

import (
	"github.com/autom8ter/dockit/util"
)

// Matches returns true if the document passes the filter. Matching never mutates the document.
// Missing fields fail equality, range and membership predicates. Equality is exact:
// an array value only equals an identical array.
func Matches(doc *Document, f Filter) bool {
	switch f := f.(type) {
	case nil:
		return true
	case And:
		for _, child := range f.Filters {
			if !Matches(doc, child) {
				return false
			}
		}
		return true
	case Eq:
		value, ok := doc.Lookup(f.Field)
		if !ok {
			return false
		}
		return util.Equal(value, f.Value)
	case In:
		value, ok := doc.Lookup(f.Field)
		if !ok {
			return false
		}
		for _, candidate := range f.Values {
			if util.Equal(value, candidate) {
				return true
			}
		}
		return false
	case Range:
		value, ok := doc.Lookup(f.Field)
		if !ok || value == nil {
			return false
		}
		return compareRange(value, f.Op, util.Normalize(f.Value))
	}
	return false
}

// compareRange only compares values within the same type bracket
func compareRange(value any, op WhereOp, operand any) bool {
	if util.TypeRank(value) != util.TypeRank(operand) || operand == nil {
		return false
	}
	c := util.Compare(value, operand)
	switch op {
	case WhereOpGt:
		return c > 0
	case WhereOpGte:
		return c >= 0
	case WhereOpLt:
		return c < 0
	case WhereOpLte:
		return c <= 0
	}
	return false
}
