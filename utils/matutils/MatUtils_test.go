package matutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestMaxVec(t *testing.T) {
	assert.Equal(t, 2, MaxVec(mat.NewVecDense(4, []float64{1, 0, 3, 3})))
	assert.Equal(t, 0, MaxVec(mat.NewVecDense(1, []float64{-1})))
}
