package dockit

import (
	"sort"

	"github.com/autom8ter/dockit/util"
)

// OrderByDirection indicates whether results should be sorted in ascending or descending order
type OrderByDirection string

const (
	// OrderByDirectionAsc indicates ascending order
	OrderByDirectionAsc OrderByDirection = "asc"
	// OrderByDirectionDesc indicates descending order
	OrderByDirectionDesc OrderByDirection = "desc"
)

// OrderBy orders the result set by a given field in a given direction
type OrderBy struct {
	// Field is the field to sort on. Dot notation is supported.
	Field string `json:"field" validate:"required"`
	// Direction is the sort direction
	Direction OrderByDirection `json:"direction" validate:"oneof=asc desc"`
}

// Asc sorts ascending on the field
func Asc(field string) OrderBy {
	return OrderBy{Field: field, Direction: OrderByDirectionAsc}
}

// Desc sorts descending on the field
func Desc(field string) OrderBy {
	return OrderBy{Field: field, Direction: OrderByDirectionDesc}
}

func (o OrderBy) reverse() OrderBy {
	if o.Direction == OrderByDirectionDesc {
		return Asc(o.Field)
	}
	return Desc(o.Field)
}

// compareField compares one field of two documents. An absent field sorts before any present value.
func compareField(a, b *Document, field string) int {
	va, oka := a.Lookup(field)
	vb, okb := b.Lookup(field)
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return -1
	case !okb:
		return 1
	}
	return util.Compare(va, vb)
}

func compareDocuments(a, b *Document, orderBy []OrderBy) int {
	for _, o := range orderBy {
		c := compareField(a, b, o.Field)
		if o.Direction == OrderByDirectionDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// SortDocuments stable sorts the documents in place: documents with equal sort keys keep their relative order
func SortDocuments(documents Documents, orderBy []OrderBy) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(documents, func(i, j int) bool {
		return compareDocuments(documents[i], documents[j], orderBy) < 0
	})
}
