package httpapi

import "strings"

// withAliases walks a JSON-decoded value (the output of
// json.Unmarshal into an interface{}) and, for every object key, adds a
// camelCase alias and an underscore-stripped lowercase alias alongside
// the original snake_case key, recursively into nested objects and
// arrays, per §6.1's response field aliasing rule.
func withAliases(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val)*2)
		for k, vv := range val {
			aliased := withAliases(vv)
			out[k] = aliased

			if camel := toCamelCase(k); camel != k {
				out[camel] = aliased
			}
			if flat := toFlatLower(k); flat != k {
				out[flat] = aliased
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = withAliases(item)
		}
		return out
	default:
		return v
	}
}

// toCamelCase converts snake_case (or already-camel) to camelCase.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// toFlatLower strips underscores and lowercases, e.g. "entry_price" ->
// "entryprice".
func toFlatLower(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}
