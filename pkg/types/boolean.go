package types

import "slices"

func castBoolean(format string, raw any, opts Options) (any, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}

	s, ok := trimmed(raw)
	if !ok {
		return fail(Boolean, format, raw, "unsupported value type %T", raw)
	}
	if slices.Contains(opts.TrueValues, s) {
		return true, nil
	}
	if slices.Contains(opts.FalseValues, s) {
		return false, nil
	}
	return fail(Boolean, format, raw, "not one of the true or false values")
}
