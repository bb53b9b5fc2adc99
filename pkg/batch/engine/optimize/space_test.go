package optimize

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const spaceYAML = `
- name: --l2-size
  type: categorical
  values: [512kB, 1MB]
- name: --l2-assoc
  type: pow2
  min_exp: 1
  max_exp: 3
- name: --enable-x
  type: boolean
- name: --width
  type: integer
  min_int: 2
  max_int: 8
- name: --ratio
  type: float
  min_float: 0.1
  max_float: 0.9
`

func testSpace(t *testing.T) *Space {
	t.Helper()
	var raw []map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(spaceYAML), &raw))
	space, err := DecodeSpace(raw)
	require.NoError(t, err)
	return space
}

func TestDecodeSpace(t *testing.T) {
	space := testSpace(t)
	require.Len(t, space.Dimensions, 5)
	assert.Equal(t, []string{"--l2-size", "--l2-assoc", "--enable-x", "--width", "--ratio"}, space.Names())

	assert.Equal(t, DimensionCategorical, space.Dimensions[0].Type)
	assert.Equal(t, []any{"512kB", "1MB"}, space.Dimensions[0].Choices)
	assert.Equal(t, 1.0, space.Dimensions[1].Low)
	assert.Equal(t, 3.0, space.Dimensions[1].High)
	assert.Equal(t, []any{true, false}, space.Dimensions[2].Choices)
	assert.Equal(t, 7, space.Width())
}

func TestDecodeSpace_WeakTypes(t *testing.T) {
	space, err := DecodeSpace([]map[string]interface{}{
		{"name": "--width", "type": "INTEGER", "min_int": "2", "max_int": "4"},
	})
	require.NoError(t, err)
	assert.Equal(t, DimensionInteger, space.Dimensions[0].Type)
	assert.Equal(t, 4.0, space.Dimensions[0].High)
}

func TestDecodeSpace_AggregatesErrors(t *testing.T) {
	_, err := DecodeSpace([]map[string]interface{}{
		{"name": "a", "type": "categorical", "values": []interface{}{}},
		{"name": "b", "type": "integer", "min_int": 1},
		{"name": "c", "type": "pow2", "min_exp": 4, "max_exp": 2},
		{"name": "d", "type": "spline"},
		{"type": "boolean"},
		{"name": "e", "type": "float", "min_float": 0.0, "max_float": 1.0, "max_flaot": 2.0},
		{"name": "f", "type": "boolean"},
		{"name": "f", "type": "boolean"},
	})
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"cannot be empty",
		"'min_int' and 'max_int'",
		"greater than max",
		"unsupported type 'spline'",
		"missing required 'name'",
		"max_flaot",
		"duplicate dimension 'f'",
	} {
		assert.Contains(t, msg, want)
	}

	_, err = DecodeSpace(nil)
	assert.Error(t, err)
}

func TestSpace_SampleWithinBounds(t *testing.T) {
	space := testSpace(t)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		p := space.Sample(rng)
		assert.Contains(t, []any{"512kB", "1MB"}, p[0])
		assert.Contains(t, []any{2, 4, 8}, p[1])
		assert.IsType(t, true, p[2])
		assert.GreaterOrEqual(t, p[3].(int), 2)
		assert.LessOrEqual(t, p[3].(int), 8)
		assert.GreaterOrEqual(t, p[4].(float64), 0.1)
		assert.LessOrEqual(t, p[4].(float64), 0.9)

		for _, v := range space.Encode(p) {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSpace_Encode(t *testing.T) {
	space := testSpace(t)
	got := space.Encode([]any{"1MB", 4, false, 5, 0.5})
	assert.InDeltaSlice(t, []float64{0, 1, 0.5, 0, 1, 0.5, 0.5}, got, 1e-9)
}

func TestSpace_Normalize(t *testing.T) {
	space := testSpace(t)

	got, err := space.Normalize([]any{"1MB", 4.0, "true", 3, "0.5"})
	require.NoError(t, err)
	assert.Equal(t, []any{"1MB", 4, true, 3, 0.5}, got)

	_, err = space.Normalize([]any{"2MB", 4, true, 3, 0.5})
	assert.Error(t, err)
	_, err = space.Normalize([]any{"1MB", 6, true, 3, 0.5})
	assert.Error(t, err)
	_, err = space.Normalize([]any{"1MB", 4, true, 3.5, 0.5})
	assert.Error(t, err)
	_, err = space.Normalize([]any{"1MB"})
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, []string{"1MB", "4", "true", "0.25"}, (&Space{}).Format([]any{"1MB", 4, true, 0.25}))
}
