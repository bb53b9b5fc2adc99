package optimize

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	configbinder "github.com/tigerroll/simsweep/pkg/batch/support/util/configbinder"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

// DimensionType is the kind of one search dimension.
type DimensionType string

const (
	DimensionInteger     DimensionType = "integer"
	DimensionFloat       DimensionType = "float"
	DimensionPow2        DimensionType = "pow2"
	DimensionCategorical DimensionType = "categorical"
	DimensionBoolean     DimensionType = "boolean"
)

// dimensionSpec is one param_space entry as written in the config file.
type dimensionSpec struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	MinInt   *int          `yaml:"min_int"`
	MaxInt   *int          `yaml:"max_int"`
	MinFloat *float64      `yaml:"min_float"`
	MaxFloat *float64      `yaml:"max_float"`
	MinExp   *int          `yaml:"min_exp"`
	MaxExp   *int          `yaml:"max_exp"`
	Values   []interface{} `yaml:"values"`
}

// Dimension is one decoded search dimension. Integer and pow2 values are ints,
// float values are float64, boolean values are bools and categorical values are
// the configured choices.
type Dimension struct {
	Name string
	Type DimensionType
	// Low and High bound integer and float values, and the exponent for pow2.
	Low  float64
	High float64
	// Choices lists categorical and boolean values.
	Choices []any
}

// Space is the ordered list of search dimensions.
type Space struct {
	Dimensions []Dimension
}

// DecodeSpace decodes and validates the param_space section. Every problem is reported together.
func DecodeSpace(raw []map[string]interface{}) (*Space, error) {
	var result *multierror.Error
	space := &Space{}
	seen := map[string]bool{}

	if len(raw) == 0 {
		result = multierror.Append(result, fmt.Errorf("param_space must declare at least one dimension"))
	}
	for i, entry := range raw {
		var spec dimensionSpec
		if err := configbinder.BindStrict(entry, &spec); err != nil {
			result = multierror.Append(result, fmt.Errorf("param_space[%d]: %w", i, err))
			continue
		}
		dim, err := spec.dimension()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("param_space[%d]: %w", i, err))
			continue
		}
		if seen[dim.Name] {
			result = multierror.Append(result, fmt.Errorf("param_space[%d]: duplicate dimension '%s'", i, dim.Name))
			continue
		}
		seen[dim.Name] = true
		space.Dimensions = append(space.Dimensions, dim)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, exception.NewConfigError("invalid optimization.param_space", err)
	}
	return space, nil
}

func (s dimensionSpec) dimension() (Dimension, error) {
	if s.Name == "" {
		return Dimension{}, fmt.Errorf("missing required 'name' field")
	}
	d := Dimension{Name: s.Name, Type: DimensionType(strings.ToLower(s.Type))}

	switch d.Type {
	case DimensionInteger:
		if s.MinInt == nil || s.MaxInt == nil {
			return d, fmt.Errorf("integer parameter '%s' needs 'min_int' and 'max_int'", s.Name)
		}
		d.Low, d.High = float64(*s.MinInt), float64(*s.MaxInt)
	case DimensionFloat:
		if s.MinFloat == nil || s.MaxFloat == nil {
			return d, fmt.Errorf("float parameter '%s' needs 'min_float' and 'max_float'", s.Name)
		}
		d.Low, d.High = *s.MinFloat, *s.MaxFloat
	case DimensionPow2:
		if s.MinExp == nil || s.MaxExp == nil {
			return d, fmt.Errorf("pow2 parameter '%s' needs 'min_exp' and 'max_exp'", s.Name)
		}
		if *s.MinExp < 0 || *s.MaxExp > 62 {
			return d, fmt.Errorf("pow2 parameter '%s' exponents must be within [0, 62]", s.Name)
		}
		d.Low, d.High = float64(*s.MinExp), float64(*s.MaxExp)
	case DimensionCategorical:
		if len(s.Values) == 0 {
			return d, fmt.Errorf("'values' list for categorical parameter '%s' cannot be empty", s.Name)
		}
		d.Choices = append([]any(nil), s.Values...)
		return d, nil
	case DimensionBoolean:
		d.Choices = []any{true, false}
		return d, nil
	case "":
		return d, fmt.Errorf("parameter '%s' is missing required 'type' field", s.Name)
	default:
		return d, fmt.Errorf("parameter '%s' has unsupported type '%s'", s.Name, s.Type)
	}

	if d.Low > d.High {
		return d, fmt.Errorf("%s parameter '%s' has min %v greater than max %v", d.Type, s.Name, d.Low, d.High)
	}
	return d, nil
}

// Names returns the dimension names in order.
func (s *Space) Names() []string {
	out := make([]string, len(s.Dimensions))
	for i, d := range s.Dimensions {
		out[i] = d.Name
	}
	return out
}

// Sample draws a uniformly random point.
func (s *Space) Sample(rng *rand.Rand) []any {
	point := make([]any, len(s.Dimensions))
	for i, d := range s.Dimensions {
		point[i] = d.sample(rng)
	}
	return point
}

// Width returns the length of an encoded point.
func (s *Space) Width() int {
	n := 0
	for _, d := range s.Dimensions {
		n += d.width()
	}
	return n
}

// Encode maps a point into [0,1]^Width. Categorical and boolean dimensions are one-hot.
func (s *Space) Encode(point []any) []float64 {
	out := make([]float64, 0, s.Width())
	for i, d := range s.Dimensions {
		out = d.encode(point[i], out)
	}
	return out
}

// Normalize converts a point read back from storage into the canonical value types.
func (s *Space) Normalize(point []any) ([]any, error) {
	if len(point) != len(s.Dimensions) {
		return nil, fmt.Errorf("point has %d values, space has %d dimensions", len(point), len(s.Dimensions))
	}
	out := make([]any, len(point))
	for i, d := range s.Dimensions {
		v, err := d.normalize(point[i])
		if err != nil {
			return nil, fmt.Errorf("dimension '%s': %w", d.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Format renders each value of point the way it appears in trial names and script parameters.
func (s *Space) Format(point []any) []string {
	out := make([]string, len(point))
	for i, v := range point {
		out[i] = FormatValue(v)
	}
	return out
}

// FormatValue renders a single dimension value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func (d Dimension) width() int {
	if d.Choices != nil {
		return len(d.Choices)
	}
	return 1
}

func (d Dimension) sample(rng *rand.Rand) any {
	switch d.Type {
	case DimensionInteger:
		return int(d.Low) + rng.IntN(int(d.High-d.Low)+1)
	case DimensionFloat:
		return d.Low + rng.Float64()*(d.High-d.Low)
	case DimensionPow2:
		return int(1) << (int(d.Low) + rng.IntN(int(d.High-d.Low)+1))
	default:
		return d.Choices[rng.IntN(len(d.Choices))]
	}
}

func (d Dimension) encode(v any, out []float64) []float64 {
	switch d.Type {
	case DimensionInteger, DimensionFloat:
		return append(out, scale(toFloat(v), d.Low, d.High))
	case DimensionPow2:
		// Ordinal over the exponents.
		return append(out, scale(math.Log2(toFloat(v)), d.Low, d.High))
	default:
		idx := d.choiceIndex(v)
		for i := range d.Choices {
			if i == idx {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
		return out
	}
}

func (d Dimension) normalize(v any) (any, error) {
	switch d.Type {
	case DimensionInteger, DimensionPow2:
		f, ok := numeric(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
		i := int(f)
		if d.Type == DimensionPow2 && (i <= 0 || i&(i-1) != 0) {
			return nil, fmt.Errorf("expected a power of two, got %d", i)
		}
		return i, nil
	case DimensionFloat:
		f, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", v)
		}
		return f, nil
	default:
		idx := d.choiceIndex(v)
		if idx < 0 {
			return nil, fmt.Errorf("%v is not one of %v", v, d.Choices)
		}
		return d.Choices[idx], nil
	}
}

// choiceIndex matches by rendered value so that 4 read back as a string still finds choice 4.
func (d Dimension) choiceIndex(v any) int {
	s := FormatValue(v)
	for i, c := range d.Choices {
		if FormatValue(c) == s {
			return i
		}
	}
	return -1
}

func scale(v, low, high float64) float64 {
	if high == low {
		return 0
	}
	return (v - low) / (high - low)
}

func toFloat(v any) float64 {
	f, _ := numeric(v)
	return f
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
