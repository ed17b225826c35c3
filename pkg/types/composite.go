package types

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// decodeJSON accepts either an already decoded value of type T or JSON text.
func decodeJSON[T any](raw any) (T, error) {
	var out T
	if v, ok := raw.(T); ok {
		return v, nil
	}
	s, ok := rawString(raw)
	if !ok {
		return out, fmt.Errorf("unsupported value type %T", raw)
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return out, err
	}
	return out, nil
}

func castArray(format string, raw any) (any, error) {
	arr, err := decodeJSON[[]any](raw)
	if err != nil || arr == nil {
		return fail(Array, format, raw, "not a JSON array")
	}
	return arr, nil
}

func castObject(format string, raw any) (any, error) {
	obj, err := decodeJSON[map[string]any](raw)
	if err != nil || obj == nil {
		return fail(Object, format, raw, "not a JSON object")
	}
	return obj, nil
}
