package dockit

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	flat2 "github.com/nqd/flat"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// IDField is the field holding a document's unique identifier
const IDField = "_id"

// Document is an ordered JSON document. Field order is the order in which fields were first set.
type Document struct {
	result gjson.Result
}

// Field is a named value used to build documents with a deterministic field order
type Field struct {
	Name  string
	Value any
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// NewDocument creates a new empty document
func NewDocument() *Document {
	return &Document{
		result: gjson.Parse("{}"),
	}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(json []byte) (*Document, error) {
	if !gjson.ValidBytes(json) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(json))
	}
	d := &Document{
		result: gjson.ParseBytes(json),
	}
	if !d.Valid() {
		return nil, errors.New(errors.Validation, "invalid document: expected a json object")
	}
	return d, nil
}

// NewDocumentFrom creates a new document from the given value - the value must be json compatible.
// Maps have no field order so their fields are written in key order.
func NewDocumentFrom(value any) (*Document, error) {
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.Validation, "failed to json encode value: %#v", value)
	}
	return NewDocumentFromBytes(bits)
}

// NewDocumentFromFields creates a new document with fields in the given order
func NewDocumentFromFields(fields ...Field) (*Document, error) {
	d := NewDocument()
	for _, f := range fields {
		if err := d.Set(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Valid returns whether the document is a valid json object
func (d *Document) Valid() bool {
	return d != nil && d.result.IsObject()
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Clone allocates a new document with identical values. Setters on the clone never affect the original.
func (d *Document) Clone() *Document {
	return &Document{result: d.result}
}

// ID returns the document's identifier
func (d *Document) ID() string {
	return d.result.Get(IDField).String()
}

// SetID sets the document's identifier
func (d *Document) SetID(id string) error {
	return d.Set(IDField, id)
}

// Get gets a field on the document. Dot notation is supported for nested fields.
func (d *Document) Get(field string) any {
	return d.result.Get(field).Value()
}

// Lookup gets a field on the document and reports whether it exists
func (d *Document) Lookup(field string) (any, bool) {
	r := d.result.Get(field)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// lookupRaw returns the field's json so nested documents keep their field order when copied
func (d *Document) lookupRaw(field string) (gjson.Result, bool) {
	r := d.result.Get(field)
	return r, r.Exists()
}

// Exists returns true if the field is present on the document (it may be null)
func (d *Document) Exists(field string) bool {
	return d.result.Get(field).Exists()
}

// GetString gets a string field value on the document
func (d *Document) GetString(field string) string {
	return d.result.Get(field).String()
}

// GetBool gets a bool field value on the document
func (d *Document) GetBool(field string) bool {
	return cast.ToBool(d.Get(field))
}

// GetFloat gets a float field value on the document
func (d *Document) GetFloat(field string) float64 {
	return cast.ToFloat64(d.Get(field))
}

// GetArray gets an array field on the document
func (d *Document) GetArray(field string) []any {
	return cast.ToSlice(d.Get(field))
}

// Fields returns the top level field names in document order
func (d *Document) Fields() []string {
	var fields []string
	d.result.ForEach(func(key, _ gjson.Result) bool {
		fields = append(fields, key.String())
		return true
	})
	return fields
}

// Set sets a field on the document. Dot notation is supported.
func (d *Document) Set(field string, val any) error {
	var (
		result string
		err    error
	)
	switch val := val.(type) {
	case gjson.Result:
		result, err = sjson.SetRaw(d.result.Raw, field, val.Raw)
	case *Document:
		result, err = sjson.SetRaw(d.result.Raw, field, val.result.Raw)
	case json.RawMessage:
		result, err = sjson.SetRaw(d.result.Raw, field, string(val))
	default:
		result, err = sjson.Set(d.result.Raw, field, val)
	}
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to set field %s", field)
	}
	if !gjson.Valid(result) {
		return errors.New(errors.Validation, "invalid document after setting field %s", field)
	}
	d.result = gjson.Parse(result)
	return nil
}

// SetAll sets all fields on the document in key order. Dot notation is supported.
func (d *Document) SetAll(values map[string]any) error {
	keys := lo.Keys(values)
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges the document with the provided document. This is not an overwrite.
func (d *Document) Merge(with *Document) error {
	if !with.Valid() {
		return errors.New(errors.Validation, "invalid document")
	}
	flattened, err := flat2.Flatten(with.Value(), nil)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to flatten document")
	}
	return d.SetAll(flattened)
}

// Del deletes fields from the document
func (d *Document) Del(fields ...string) error {
	for _, field := range fields {
		result, err := sjson.Delete(d.result.Raw, field)
		if err != nil {
			return errors.Wrap(err, errors.Validation, "failed to delete field %s", field)
		}
		d.result = gjson.Parse(result)
	}
	return nil
}

// Flatten returns the document's leaf values keyed by dot notation path
func (d *Document) Flatten() map[string]any {
	flattened, err := flat2.Flatten(d.Value(), nil)
	if err != nil {
		return map[string]any{}
	}
	return flattened
}

// Scan scans the json document into the value
func (d *Document) Scan(value any) error {
	return util.Decode(d.Value(), value)
}

// Encode encodes the json document to the io writer
func (d *Document) Encode(w io.Writer) error {
	_, err := w.Write(d.Bytes())
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to encode document")
	}
	return nil
}

// Documents is an array of documents
type Documents []*Document

// IDs returns the identifiers of the documents in order
func (documents Documents) IDs() []string {
	return lo.Map(documents, func(d *Document, _ int) string {
		return d.ID()
	})
}

// Slice slices the documents into a subarray of documents
func (documents Documents) Slice(start, end int) Documents {
	return lo.Slice(documents, start, end)
}

// Filter applies the filter function against the documents
func (documents Documents) Filter(predicate func(document *Document, i int) bool) Documents {
	return lo.Filter(documents, predicate)
}

// Map applies the mapper function against the documents
func (documents Documents) Map(mapper func(t *Document, i int) *Document) Documents {
	return lo.Map(documents, mapper)
}

// ForEach applies the function to each document in the documents
func (documents Documents) ForEach(fn func(next *Document, i int)) {
	lo.ForEach(documents, fn)
}
