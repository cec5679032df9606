package wire

import (
	"github.com/autom8ter/dockit"
	"github.com/autom8ter/dockit/errors"
	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"
)

// bsonJSON renders a bson document as relaxed extended json so numbers stay plain json numbers
func bsonJSON(value any, code errors.Code) (gjson.Result, error) {
	bits, err := bson.MarshalExtJSON(bson.D{{Key: "value", Value: value}}, false, false)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, code, "failed to encode bson")
	}
	return gjson.GetBytes(bits, "value"), nil
}

// FilterFromBSON converts a bson filter, ex: bson.D{{Key: "published_year", Value: bson.D{{Key: "$gt", Value: 1950}}}}
func FilterFromBSON(filter any) (dockit.Filter, error) {
	r, err := bsonJSON(filter, errors.InvalidFilter)
	if err != nil {
		return nil, err
	}
	return FilterFrom(r)
}

// SortFromBSON converts a bson sort document. Use bson.D to keep field order.
func SortFromBSON(sort any) ([]dockit.OrderBy, error) {
	r, err := bsonJSON(sort, errors.Validation)
	if err != nil {
		return nil, err
	}
	return SortFrom(r)
}

// PipelineFromBSON converts a bson pipeline, ex: bson.A{bson.D{{Key: "$limit", Value: 3}}}
func PipelineFromBSON(pipeline any) ([]dockit.Stage, error) {
	r, err := bsonJSON(pipeline, errors.InvalidStage)
	if err != nil {
		return nil, err
	}
	if !r.IsArray() {
		return nil, errors.New(errors.InvalidStage, "pipeline must be an array of stages")
	}
	return PipelineFrom(r)
}

// DocumentFromBSON converts a bson document. Values without a json equivalent, like object ids,
// keep their extended json form.
func DocumentFromBSON(doc any) (*dockit.Document, error) {
	bits, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to encode bson")
	}
	return dockit.NewDocumentFromBytes(bits)
}

// DocumentToBSON converts a document to a bson document preserving field order
func DocumentToBSON(doc *dockit.Document) (bson.D, error) {
	var out bson.D
	if err := bson.UnmarshalExtJSON(doc.Bytes(), false, &out); err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to decode document")
	}
	return out, nil
}
