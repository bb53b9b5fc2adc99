package optimize

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// lengthScales is the grid searched for the kernel length scale.
var lengthScales = []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2, 3, 5}

// noise is added to the kernel diagonal; targets are standardized, so it is relative to their spread.
const noise = 1e-6

var errNotPositiveDefinite = errors.New("kernel matrix is not positive definite")

// gaussianProcess is a Matérn 5/2 regression over encoded points with standardized targets.
type gaussianProcess struct {
	x           [][]float64
	chol        mat.Cholesky
	alpha       *mat.VecDense
	lengthScale float64
	yMean       float64
	yStd        float64
}

// fitGP fits a process to x, y and keeps the length scale with the highest log marginal likelihood.
func fitGP(x [][]float64, y []float64) (*gaussianProcess, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("gaussian process needs matching non-empty inputs")
	}
	mean := floats.Sum(y) / float64(len(y))
	std := 0.0
	for _, v := range y {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(y)))
	if std == 0 {
		std = 1
	}
	z := make([]float64, len(y))
	for i, v := range y {
		z[i] = (v - mean) / std
	}

	var best *gaussianProcess
	bestLML := math.Inf(-1)
	for _, l := range lengthScales {
		gp, lml, err := fitWithLengthScale(x, z, l)
		if err != nil {
			continue
		}
		if lml > bestLML {
			best, bestLML = gp, lml
		}
	}
	if best == nil {
		return nil, errNotPositiveDefinite
	}
	best.yMean, best.yStd = mean, std
	return best, nil
}

func fitWithLengthScale(x [][]float64, z []float64, l float64) (*gaussianProcess, float64, error) {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := matern52(x[i], x[j], l)
			if i == j {
				v += noise
			}
			k.SetSym(i, j, v)
		}
	}

	gp := &gaussianProcess{x: x, lengthScale: l}
	if ok := gp.chol.Factorize(k); !ok {
		// Duplicate points make the matrix singular; retry with more jitter.
		for i := 0; i < n; i++ {
			k.SetSym(i, i, k.At(i, i)+1e-4)
		}
		if ok := gp.chol.Factorize(k); !ok {
			return nil, 0, errNotPositiveDefinite
		}
	}

	zv := mat.NewVecDense(n, z)
	gp.alpha = mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(gp.alpha, zv); err != nil {
		return nil, 0, err
	}

	lml := -0.5*mat.Dot(zv, gp.alpha) - 0.5*gp.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	return gp, lml, nil
}

// predict returns the posterior mean and standard deviation at x, in target units.
func (gp *gaussianProcess) predict(x []float64) (float64, float64) {
	n := len(gp.x)
	ks := mat.NewVecDense(n, nil)
	for i, xi := range gp.x {
		ks.SetVec(i, matern52(x, xi, gp.lengthScale))
	}
	mu := mat.Dot(ks, gp.alpha)

	v := mat.NewVecDense(n, nil)
	variance := 1.0
	if err := gp.chol.SolveVecTo(v, ks); err == nil {
		variance -= mat.Dot(ks, v)
	}
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mu*gp.yStd + gp.yMean, math.Sqrt(variance) * gp.yStd
}

// matern52 is the Matérn kernel with ν=5/2 and unit signal variance.
func matern52(a, b []float64, l float64) float64 {
	r := floats.Distance(a, b, 2) / l
	s := math.Sqrt(5) * r
	return (1 + s + s*s/3) * math.Exp(-s)
}
