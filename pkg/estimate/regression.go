package estimate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrDegenerateFit = errors.New("cannot fit a line")

// Line is y = Intercept + Slope*x
type Line struct {
	Intercept float64 `yaml:"intercept"`
	Slope     float64 `yaml:"slope"`
}

func (l Line) At(x float64) float64 {
	return l.Intercept + l.Slope*x
}

// Fit returns the least squares line through the points
func Fit(x, y []float64) (Line, error) {
	if len(x) != len(y) {
		return Line{}, fmt.Errorf("%w: %d x values, %d y values", ErrDegenerateFit, len(x), len(y))
	}
	if len(x) < 2 {
		return Line{}, fmt.Errorf("%w: need two points, got %d", ErrDegenerateFit, len(x))
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return Line{}, fmt.Errorf("%w: x values do not vary", ErrDegenerateFit)
	}
	return Line{Intercept: alpha, Slope: beta}, nil
}

// RSquare returns the coefficient of determination of l over the points
func RSquare(l Line, x, y []float64) float64 {
	return stat.RSquared(x, y, nil, l.Intercept, l.Slope)
}
