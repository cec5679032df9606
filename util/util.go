package util

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/autom8ter/dockit/errors"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

var validate = validator.New()

// ValidateStruct validates the struct against its `validate` tags
func ValidateStruct(val any) error {
	return errors.Wrap(validate.Struct(val), errors.Validation, "")
}

// Decode decodes the input into the output based on json tags
func Decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput:     true,
		Result:               output,
		TagName:              "json",
		IgnoreUntaggedFields: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// JSONString returns a json string of the input
func JSONString(input any) string {
	bits, _ := json.Marshal(input)
	return string(bits)
}

// YAMLToJSON converts yaml to json. Input that is already json is returned as is.
func YAMLToJSON(yamlContent []byte) ([]byte, error) {
	if isJSON(string(yamlContent)) {
		return yamlContent, nil
	}
	return yaml.YAMLToJSON(yamlContent)
}

// JSONToYAML converts json to yaml
func JSONToYAML(jsonContent []byte) ([]byte, error) {
	return yaml.JSONToYAML(jsonContent)
}

func isJSON(str string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(str), &js) == nil
}

// MinKey sorts before every other value
type MinKey struct{}

// MaxKey sorts after every other value
type MaxKey struct{}

// Type ranks, lowest sorts first
const (
	RankMin    = -1
	RankNull   = 0
	RankNumber = 1
	RankString = 2
	RankObject = 3
	RankArray  = 4
	RankBool   = 5
	RankMax    = 10
)

// IsNumber returns true if the value is a go numeric type
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// Normalize converts go values into the canonical value set used by documents:
// nil, bool, float64, string, []any, map[string]any
func Normalize(v any) any {
	switch v := v.(type) {
	case nil, bool, float64, string:
		return v
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Normalize(e)
		}
		return out
	case MinKey, MaxKey:
		return v
	}
	if IsNumber(v) {
		return cast.ToFloat64(v)
	}
	switch v := v.(type) {
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case fmt.Stringer:
		return v.String()
	}
	// fall back to the value's json representation
	var decoded any
	if err := json.Unmarshal([]byte(JSONString(v)), &decoded); err != nil {
		return cast.ToString(v)
	}
	return decoded
}

// TypeRank returns the sort bracket of a normalized value
func TypeRank(v any) int {
	switch v.(type) {
	case MinKey:
		return RankMin
	case nil:
		return RankNull
	case float64:
		return RankNumber
	case string:
		return RankString
	case map[string]any:
		return RankObject
	case []any:
		return RankArray
	case bool:
		return RankBool
	case MaxKey:
		return RankMax
	}
	if IsNumber(v) {
		return RankNumber
	}
	return RankString
}

// Compare returns -1, 0 or 1 comparing a and b. Values of different types are
// ordered by type bracket: null < numbers < strings < objects < arrays < booleans
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := TypeRank(a), TypeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch a := a.(type) {
	case float64:
		bf := b.(float64)
		switch {
		case a < bf:
			return -1
		case a > bf:
			return 1
		}
		return 0
	case string:
		return strings.Compare(a, b.(string))
	case bool:
		bb := b.(bool)
		switch {
		case a == bb:
			return 0
		case !a:
			return -1
		}
		return 1
	case []any:
		bs := b.([]any)
		for i := 0; i < len(a) && i < len(bs); i++ {
			if c := Compare(a[i], bs[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a), len(bs))
	case map[string]any:
		bm := b.(map[string]any)
		ak, bk := sortedKeys(a), sortedKeys(bm)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(a[ak[i]], bm[bk[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ak), len(bk))
	}
	return 0
}

// Equal returns true if a and b are the same type bracket and compare equal
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// RemoveElement removes the element at index from the slice
func RemoveElement[T any](index int, results []T) []T {
	return append(results[:index], results[index+1:]...)
}
