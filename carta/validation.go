package carta

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Parameter describes the permitted values of a method argument.
type Parameter interface {
	// Validate returns an error when value is not permitted.
	Validate(value any) error
	// Description is a short human-readable summary of permitted values.
	Description() string
}

// validateArgs checks values against params pairwise. Extra values are not
// checked.
func validateArgs(params []Parameter, values ...any) error {
	for i, p := range params {
		if i >= len(values) {
			break
		}
		if err := p.Validate(values[i]); err != nil {
			return validationError("%v", err)
		}
	}
	return nil
}

// StringParam accepts strings, optionally matching a regular expression.
type StringParam struct {
	re *regexp.Regexp
}

// String returns a string descriptor. A non-empty pattern must match the
// whole string; an empty pattern accepts any string.
func String(pattern string, ignoreCase bool) StringParam {
	if pattern == "" {
		return StringParam{}
	}
	pattern = "^(?:" + pattern + ")$"
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	return StringParam{re: regexp.MustCompile(pattern)}
}

func (p StringParam) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%v has type %T but a string was expected", value, value)
	}
	if p.re != nil && !p.re.MatchString(s) {
		return fmt.Errorf("%s does not match %s", s, p.re)
	}
	return nil
}

func (p StringParam) Description() string {
	if p.re == nil {
		return "a string"
	}
	return "a string matching " + p.re.String()
}

// NumberParam accepts any integer or floating point value within optional
// bounds. Bounds are inclusive unless MaxExclusive is set.
type NumberParam struct {
	Min, Max     *float64
	MaxExclusive bool
}

// Number returns an unbounded number descriptor.
func Number() NumberParam { return NumberParam{} }

// Between returns a number descriptor with inclusive bounds.
func Between(min, max float64) NumberParam {
	return NumberParam{Min: &min, Max: &max}
}

// Below returns a number descriptor for min <= value < max.
func Below(min, max float64) NumberParam {
	return NumberParam{Min: &min, Max: &max, MaxExclusive: true}
}

func (p NumberParam) Validate(value any) error {
	f, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("%v has type %T but a number was expected", value, value)
	}
	if p.Min != nil && f < *p.Min {
		return fmt.Errorf("%v is smaller than minimum value %v", value, *p.Min)
	}
	if p.Max != nil {
		if p.MaxExclusive && f >= *p.Max {
			return fmt.Errorf("%v is not smaller than maximum value %v", value, *p.Max)
		}
		if !p.MaxExclusive && f > *p.Max {
			return fmt.Errorf("%v is larger than maximum value %v", value, *p.Max)
		}
	}
	return nil
}

func (p NumberParam) Description() string {
	switch {
	case p.Min != nil && p.Max != nil && p.MaxExclusive:
		return fmt.Sprintf("a number greater than or equal to %v and smaller than %v", *p.Min, *p.Max)
	case p.Min != nil && p.Max != nil:
		return fmt.Sprintf("a number between %v and %v (inclusive)", *p.Min, *p.Max)
	case p.Min != nil:
		return fmt.Sprintf("a number greater than or equal to %v", *p.Min)
	case p.Max != nil:
		return fmt.Sprintf("a number smaller than or equal to %v", *p.Max)
	}
	return "a number"
}

func toFloat(value any) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

// BooleanParam accepts bools and the integers 0 and 1.
type BooleanParam struct{}

// Boolean returns a boolean descriptor.
func Boolean() BooleanParam { return BooleanParam{} }

func (BooleanParam) Validate(value any) error {
	if _, ok := value.(bool); ok {
		return nil
	}
	if f, ok := toFloat(value); ok && (f == 0 || f == 1) {
		return nil
	}
	return fmt.Errorf("%v is not a boolean value", value)
}

func (BooleanParam) Description() string { return "a boolean" }

// OneOfParam accepts one of a fixed set of values.
type OneOfParam struct {
	options     []any
	normalize   func(any) any
	description string
}

// OneOf returns a descriptor accepting any of options.
func OneOf(options ...any) OneOfParam {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = fmt.Sprint(o)
	}
	return OneOfParam{options: options, description: "one of " + strings.Join(parts, ", ")}
}

// WithNormalize transforms values before comparison.
func (p OneOfParam) WithNormalize(fn func(any) any) OneOfParam {
	p.normalize = fn
	return p
}

func (p OneOfParam) Validate(value any) error {
	if p.normalize != nil {
		value = p.normalize(value)
	}
	for _, o := range p.options {
		if o == value {
			return nil
		}
	}
	return fmt.Errorf("%v is not %s", value, p.description)
}

func (p OneOfParam) Description() string { return p.description }

// Constant returns a descriptor accepting only the members of a constant
// set. name is used in the description, e.g. "carta.Colormap".
func Constant(name string, options []any) OneOfParam {
	p := OneOf(options...)
	p.description = "a constant of " + name
	return p
}

// UnionParam accepts a value if any of its options does. Options are tried
// in order.
type UnionParam struct {
	options     []Parameter
	description string
}

// Union returns a descriptor accepting values valid for any option. An empty
// description is generated from the options.
func Union(description string, options ...Parameter) UnionParam {
	if description == "" {
		parts := make([]string, len(options))
		for i, o := range options {
			parts[i] = o.Description()
		}
		description = strings.Join(parts, " or ")
	}
	return UnionParam{options: options, description: description}
}

func (p UnionParam) Validate(value any) error {
	for _, o := range p.options {
		if o.Validate(value) == nil {
			return nil
		}
	}
	return fmt.Errorf("%v is not %s", value, p.description)
}

func (p UnionParam) Description() string { return p.description }

type noneParam struct{}

func (noneParam) Validate(value any) error {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return fmt.Errorf("%v is not nil", value)
}

func (noneParam) Description() string { return "nil" }

// NoneOr accepts nil or a value valid for p. Non-nil pointers are
// dereferenced before validation.
func NoneOr(p Parameter) Parameter {
	return Union("", derefParam{p}, noneParam{})
}

type derefParam struct{ Parameter }

func (p derefParam) Validate(value any) error {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("nil is not %s", p.Description())
		}
		value = v.Elem().Interface()
	}
	return p.Parameter.Validate(value)
}

// IterableParam accepts a slice or array whose elements are all valid for
// the element descriptor.
type IterableParam struct {
	elem Parameter
}

// IterableOf returns a descriptor for slices of elem.
func IterableOf(elem Parameter) IterableParam { return IterableParam{elem: elem} }

func (p IterableParam) Validate(value any) error {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("%v has type %T but an iterable was expected", value, value)
	}
	for i := 0; i < v.Len(); i++ {
		if err := p.elem.Validate(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (p IterableParam) Description() string { return "an iterable of " + p.elem.Description() }
