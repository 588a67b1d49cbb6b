package stages

import "fmt"

// paramFloat64 reads a required float64 parameter, accepting YAML's
// decoded int or float64 representation for whole numbers.
func paramFloat64(params map[string]interface{}, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q: want number, got %T", key, v)
	}
}

// paramFloat64Default reads an optional float64 parameter, falling back
// to def when absent.
func paramFloat64Default(params map[string]interface{}, key string, def float64) float64 {
	v, err := paramFloat64(params, key)
	if err != nil {
		return def
	}
	return v
}

// paramInt reads a required integer parameter.
func paramInt(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q: want integer, got %T", key, v)
	}
}

// paramIntDefault reads an optional integer parameter.
func paramIntDefault(params map[string]interface{}, key string, def int) int {
	v, err := paramInt(params, key)
	if err != nil {
		return def
	}
	return v
}

// paramString reads a required string parameter.
func paramString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: want string, got %T", key, v)
	}
	return s, nil
}

// paramStringDefault reads an optional string parameter.
func paramStringDefault(params map[string]interface{}, key string, def string) string {
	v, err := paramString(params, key)
	if err != nil {
		return def
	}
	return v
}

// paramBoolDefault reads an optional bool parameter.
func paramBoolDefault(params map[string]interface{}, key string, def bool) bool {
	v, ok := params[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// paramFloat64Slice reads an optional []float64 parameter (YAML decodes
// a sequence of numbers as []interface{}).
func paramFloat64Slice(params map[string]interface{}, key string) ([]float64, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("parameter %q: want a list of numbers, got %T", key, v)
	}
	out := make([]float64, len(raw))
	for i, item := range raw {
		switch n := item.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("parameter %q[%d]: want number, got %T", key, i, item)
		}
	}
	return out, nil
}
