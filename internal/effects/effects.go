package effects

import (
	"fmt"
	"sort"
	"strconv"
)

// Target selects which stream kind an effect applies to.
type Target string

const (
	TargetVideo Target = "video"
	TargetAudio Target = "audio"
	TargetBoth  Target = "both"
)

// Ref is a reference to an effect with concrete parameter values. Refs are
// carried on timeline clips and tracks and validated against the effect's
// parameter schema before any filter is emitted.
type Ref struct {
	Name   string
	Params map[string]any
	Target Target
}

// ParamType is the declared type of an effect parameter.
type ParamType int

const (
	TypeFloat ParamType = iota
	TypeString
	TypeBool
)

// ParamSpec declares the type and constraints of one effect parameter.
type ParamSpec struct {
	Type     ParamType
	Required bool
	Min      *float64 // inclusive, floats only
	Max      *float64 // inclusive, floats only
	Enum     []string // strings only
	Default  any
}

// Descriptor declares an effect: its name, target and parameter schema.
type Descriptor struct {
	Name        string
	Target      Target
	Params      map[string]ParamSpec
	Description string
}

// Context carries the labels an effect builds its filter steps between.
// Aux is the label of an auxiliary input stream (logo image, overlay video)
// for effects that composite a second input. Label mints intermediate labels
// and is supplied by the graph builder so labels stay globally unique.
type Context struct {
	In    string
	Out   string
	Aux   string
	Label func(prefix string) string
}

// Step is one filter invocation produced by an effect. Args is the rendered
// parameter string after "name=", empty for parameterless filters.
type Step struct {
	Inputs []string
	Name   string
	Args   string
	Output string
}

// Effect couples a descriptor with a pure snippet builder. Build is only
// called with parameters that passed Validate.
type Effect struct {
	Descriptor
	Build func(params map[string]any, ctx Context) []Step
}

// ValidationError reports an effect reference that failed schema validation
// or a structural timeline rule. Param is empty for structural violations.
type ValidationError struct {
	Effect string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("effect %q: %s", e.Effect, e.Reason)
	}
	return fmt.Sprintf("effect %q: parameter %q: %s", e.Effect, e.Param, e.Reason)
}

// registry is the static effect catalog, built once at startup. Dynamic
// plugin discovery is deliberately out of scope; new effects are added here.
var registry = map[string]Effect{}

func register(e Effect) {
	registry[e.Name] = e
}

// Get returns the effect registered under name.
func Get(name string) (Effect, bool) {
	e, ok := registry[name]
	return e, ok
}

// Names returns all registered effect names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a reference against its effect's parameter schema and
// returns the normalized parameter map: defaults applied, numerics coerced
// to float64. The returned map is safe to hand to Effect.Build.
func Validate(ref Ref) (map[string]any, error) {
	eff, ok := registry[ref.Name]
	if !ok {
		return nil, &ValidationError{Effect: ref.Name, Reason: "unknown effect"}
	}

	out := make(map[string]any, len(eff.Params))

	for name := range ref.Params {
		if _, ok := eff.Params[name]; !ok {
			return nil, &ValidationError{Effect: ref.Name, Param: name, Reason: "unknown parameter"}
		}
	}

	// Iterate the schema, not the value map, so missing required parameters
	// are caught and defaults are filled in.
	for name, spec := range eff.Params {
		raw, present := ref.Params[name]
		if !present {
			if spec.Required {
				return nil, &ValidationError{Effect: ref.Name, Param: name, Reason: "required parameter missing"}
			}
			if spec.Default != nil {
				out[name] = spec.Default
			}
			continue
		}

		val, err := coerce(ref.Name, name, spec, raw)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}

	return out, nil
}

func coerce(effect, name string, spec ParamSpec, raw any) (any, error) {
	switch spec.Type {
	case TypeFloat:
		f, ok := toFloat(raw)
		if !ok {
			return nil, &ValidationError{Effect: effect, Param: name, Reason: fmt.Sprintf("expected number, got %T", raw)}
		}
		if spec.Min != nil && f < *spec.Min {
			return nil, &ValidationError{Effect: effect, Param: name,
				Reason: fmt.Sprintf("value %s below minimum %s", formatFloat(f), formatFloat(*spec.Min))}
		}
		if spec.Max != nil && f > *spec.Max {
			return nil, &ValidationError{Effect: effect, Param: name,
				Reason: fmt.Sprintf("value %s above maximum %s", formatFloat(f), formatFloat(*spec.Max))}
		}
		return f, nil

	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Effect: effect, Param: name, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}
		if len(spec.Enum) > 0 {
			for _, allowed := range spec.Enum {
				if s == allowed {
					return s, nil
				}
			}
			return nil, &ValidationError{Effect: effect, Param: name, Reason: fmt.Sprintf("unknown value %q", s)}
		}
		return s, nil

	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, &ValidationError{Effect: effect, Param: name, Reason: fmt.Sprintf("expected bool, got %T", raw)}
		}
		return b, nil
	}

	return nil, &ValidationError{Effect: effect, Param: name, Reason: "unsupported parameter type"}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func floatPtr(f float64) *float64 { return &f }
