package supervision

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// OptionSpec declares one recognized engine option with its default and inclusive bounds.
type OptionSpec struct {
	Name    string
	Default float64
	Min     float64
	Max     float64
}

// Options holds resolved option values. Every declared option is present.
type Options map[string]float64

// Float returns the value of a declared option.
func (o Options) Float(name string) float64 {
	return o[name]
}

// Int returns the value of a declared option truncated to an int.
func (o Options) Int(name string) int {
	return int(o[name])
}

// sharedOptions are recognized by every engine.
var sharedOptions = []OptionSpec{
	{Name: "workers", Default: 0, Min: 0, Max: 256},
}

// resolveOptions applies defaults and validates raw template options against specs.
// Unknown keys are logged and ignored.
func resolveOptions(engineID string, specs []OptionSpec, raw map[string]any, log *zap.Logger) (Options, error) {
	all := append(append([]OptionSpec{}, sharedOptions...), specs...)
	known := make(map[string]OptionSpec, len(all))
	out := make(Options, len(all))
	for _, s := range all {
		known[s.Name] = s
		out[s.Name] = s.Default
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		spec, ok := known[k]
		if !ok {
			log.Warn("ignoring unrecognized engine option",
				zap.String("engine", engineID), zap.String("option", k))
			continue
		}
		v, ok := toFloat(raw[k])
		if !ok {
			return nil, NewError(ErrInvalidConfig, "while resolving options of engine "+engineID,
				fmt.Sprintf("option %q has non-numeric value %v", k, raw[k]), nil)
		}
		if math.IsNaN(v) || v < spec.Min || v > spec.Max {
			return nil, NewError(ErrInvalidConfig, "while resolving options of engine "+engineID,
				fmt.Sprintf("option %q = %v is outside [%v, %v]", k, v, spec.Min, spec.Max), nil)
		}
		out[k] = v
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
