package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianProcess_InterpolatesTrainingPoints(t *testing.T) {
	x := [][]float64{{0}, {0.25}, {0.5}, {0.75}, {1}}
	y := []float64{1, 1.5, 2, 2.5, 3}

	gp, err := fitGP(x, y)
	require.NoError(t, err)

	for i := range x {
		mu, sigma := gp.predict(x[i])
		assert.InDelta(t, y[i], mu, 0.05)
		assert.Less(t, sigma, 0.1)
	}

	_, near := gp.predict([]float64{0.5})
	_, far := gp.predict([]float64{4})
	assert.Greater(t, far, near)
}

func TestGaussianProcess_DuplicatePointsAndConstantTargets(t *testing.T) {
	x := [][]float64{{0.2, 1}, {0.2, 1}, {0.8, 0}}
	y := []float64{-5, -5, -5}

	gp, err := fitGP(x, y)
	require.NoError(t, err)
	mu, _ := gp.predict([]float64{0.2, 1})
	assert.InDelta(t, -5, mu, 1e-6)
}

func TestGaussianProcess_RejectsEmptyInput(t *testing.T) {
	_, err := fitGP(nil, nil)
	assert.Error(t, err)
}
