package indicator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	// ErrUnknownKind is returned when registering a kind that is not in the table.
	ErrUnknownKind = errors.New("unknown indicator kind")
	// ErrUnknownParam is returned when a parameter is not declared for the kind.
	ErrUnknownParam = errors.New("unknown indicator parameter")
	// ErrInvalidParam is returned when a parameter has the wrong type or range.
	ErrInvalidParam = errors.New("invalid indicator parameter")
)

// Params maps parameter names to values (int, float64, bool or string).
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns an integer parameter.
func (p Params) Int(name string) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Float returns a float parameter.
func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean parameter.
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// String returns a string parameter.
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// merge validates overrides against the kind defaults and returns the combined set.
func merge(kind Kind, defaults, overrides Params) (Params, error) {
	out := defaults.Clone()
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def, ok := defaults[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownParam, kind, name)
		}
		v, err := coerce(def, overrides[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidParam, kind, name, err)
		}
		out[name] = v
	}

	for name, v := range out {
		if n, ok := v.(int); ok && n < 1 {
			return nil, fmt.Errorf("%w: %s.%s must be positive, got %d", ErrInvalidParam, kind, name, n)
		}
	}
	return out, nil
}

// coerce converts v to the type of def. YAML and JSON decoders hand numbers
// over as int or float64 and occasionally as strings.
func coerce(def, v any) (any, error) {
	switch def.(type) {
	case int:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("want integer, got %v", n)
			}
			return int(n), nil
		case string:
			return strconv.Atoi(n)
		}
	case float64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
	case bool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
	case string:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("want %T, got %T", def, v)
}
