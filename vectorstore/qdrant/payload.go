package qdrant

import (
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// normalizePayload converts metadata values to the types accepted by
// qdrant.TryValueMap. Unknown types are stored as their string form.
func normalizePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		return normalizePayload(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// fromValueMap converts a Qdrant payload back to plain Go values.
func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, e := range vals {
			out[i] = fromValue(e)
		}
		return out
	case *qdrant.Value_StructValue:
		return fromValueMap(k.StructValue.GetFields())
	}
	return nil
}
