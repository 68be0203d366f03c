package tools

import (
	"fmt"
	"math"
	"slices"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	// TypeStrings is an array of strings.
	TypeStrings ParamType = "array"
)

// Param describes one named argument of a tool. Numeric arguments are
// always whole numbers.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// Args holds validated tool arguments: each present value has the Go type
// of its parameter (string, int, bool or []string).
type Args map[string]any

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) Str(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

func (a Args) Strings(name string) []string {
	s, _ := a[name].([]string)
	return s
}

// parseArgs checks raw arguments, as decoded from JSON, against the
// parameters and converts them to their Go types. Null values count as
// absent; arguments without a parameter are ignored.
func parseArgs(params []Param, raw map[string]any) (Args, error) {
	args := make(Args, len(params))

	for _, p := range params {
		value, ok := raw[p.Name]
		if !ok || value == nil {
			if p.Required {
				return nil, ArgumentError{Name: p.Name, Reason: "required"}
			}
			continue
		}

		converted, err := convert(p, value)
		if err != nil {
			return nil, err
		}
		args[p.Name] = converted
	}

	return args, nil
}

func convert(p Param, value any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, ArgumentError{Name: p.Name, Reason: "expected a string"}
		}
		if p.Required && s == "" {
			return nil, ArgumentError{Name: p.Name, Reason: "required"}
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return nil, ArgumentError{Name: p.Name, Reason: fmt.Sprintf("must be one of %v", p.Enum)}
		}
		return s, nil

	case TypeNumber:
		f, ok := value.(float64)
		if !ok {
			if n, isInt := value.(int); isInt {
				return n, nil
			}
			return nil, ArgumentError{Name: p.Name, Reason: "expected a number"}
		}
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, ArgumentError{Name: p.Name, Reason: "expected a whole number"}
		}
		return int(f), nil

	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, ArgumentError{Name: p.Name, Reason: "expected a boolean"}
		}
		return b, nil

	case TypeStrings:
		items, ok := value.([]any)
		if !ok {
			return nil, ArgumentError{Name: p.Name, Reason: "expected an array of strings"}
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, ArgumentError{Name: p.Name, Reason: "expected an array of strings"}
			}
			values = append(values, s)
		}
		return values, nil
	}

	return nil, ArgumentError{Name: p.Name, Reason: "unsupported parameter type " + string(p.Type)}
}
