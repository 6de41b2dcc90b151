package analytics

// Finite clamps NaN and ±Inf to 0 so a value is always JSON-encodable.
func Finite(f float64) float64 { return finite(f) }

// Clean walks maps and slices and clamps every non-finite float it finds.
// Engine results built from typed structs never need it; it guards payloads
// assembled dynamically, such as agent answers.
func Clean(v any) any {
	switch t := v.(type) {
	case float64:
		return finite(t)
	case map[string]any:
		for k, val := range t {
			t[k] = Clean(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = Clean(val)
		}
		return t
	default:
		return v
	}
}
