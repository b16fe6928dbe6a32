package vector

// matchesFilter reports whether metadata holds every filter key with an
// equal value. A nil or empty filter matches everything.
func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// validFilter reports whether every filter value is a scalar. Non-scalar
// values can never match.
func validFilter(filter map[string]any) bool {
	for _, v := range filter {
		if _, ok := scalarKind(v); !ok {
			return false
		}
	}
	return true
}

type kind int

const (
	kindNull kind = iota
	kindString
	kindBool
	kindNumber
)

func scalarKind(v any) (kind, bool) {
	switch v.(type) {
	case nil:
		return kindNull, true
	case string:
		return kindString, true
	case bool:
		return kindBool, true
	}
	if _, ok := toFloat(v); ok {
		return kindNumber, true
	}
	return 0, false
}

func scalarEqual(a, b any) bool {
	ka, ok := scalarKind(a)
	if !ok {
		return false
	}
	kb, ok := scalarKind(b)
	if !ok || ka != kb {
		return false
	}
	switch ka {
	case kindNull:
		return true
	case kindString:
		return a.(string) == b.(string)
	case kindBool:
		return a.(bool) == b.(bool)
	default:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return fa == fb
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
