package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Fit solves the least squares problem with a QR factorization, falling back
// to SVD when the design matrix is rank deficient.
func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	n := len(features)
	if n == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if n != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	p := len(features[0])

	design := mat.NewDense(n, p+1, nil)
	for i, row := range features {
		if len(row) != p {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), p)
		}
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	y := mat.NewDense(n, 1, append([]float64(nil), targets...))

	var beta mat.Dense
	if n >= p+1 {
		var qr mat.QR
		qr.Factorize(design)
		if err := qr.SolveTo(&beta, false, y); err == nil {
			lr.setBeta(&beta)
			return nil
		}
	}

	beta.Reset()
	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return errors.New("least squares: SVD failed to converge")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return errors.New("least squares: design matrix has rank 0")
	}
	svd.SolveTo(&beta, y, rank)
	lr.setBeta(&beta)
	return nil
}

func (lr *LinearRegression) setBeta(beta *mat.Dense) {
	rows, _ := beta.Dims()
	lr.Intercept = beta.At(0, 0)
	lr.Coefficients = make([]float64, rows-1)
	for i := 1; i < rows; i++ {
		lr.Coefficients[i-1] = beta.At(i, 0)
	}
}

func (lr *LinearRegression) Predict(features []float64) (float64, error) {
	if lr.Coefficients == nil {
		return 0, errors.New("model not trained")
	}
	if len(features) != len(lr.Coefficients) {
		return 0, fmt.Errorf("got %d features, want %d", len(features), len(lr.Coefficients))
	}
	y := lr.Intercept
	for i, v := range features {
		y += lr.Coefficients[i] * v
	}
	return y, nil
}

func (lr *LinearRegression) Save(path string) error {
	if lr.Coefficients == nil {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(lr)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (lr *LinearRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, lr)
}
