package model

import "gonum.org/v1/gonum/mat"

// linear is an ordinary least squares regressor: y = intercept + X·w.
type linear struct {
	intercept float64
	weights   *mat.VecDense
}

func newLinear(intercept float64, coefficients []float64) *linear {
	return &linear{
		intercept: intercept,
		weights:   mat.NewVecDense(len(coefficients), append([]float64(nil), coefficients...)),
	}
}

func (l *linear) predictBatch(rows [][]float64) []float64 {
	dim := l.weights.Len()
	flat := make([]float64, 0, len(rows)*dim)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	x := mat.NewDense(len(rows), dim, flat)

	var y mat.VecDense
	y.MulVec(x, l.weights)

	out := make([]float64, len(rows))
	for i := range out {
		out[i] = y.AtVec(i) + l.intercept
	}
	return out
}
