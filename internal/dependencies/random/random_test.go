package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedRandom struct{ value int }

func (f fixedRandom) Intn(n int) int { return f.value % n }
func (f fixedRandom) String(length int, _ string) string { return "" }

func TestWeighted(t *testing.T) {
	weights := []int{70, 25, 5}

	tests := []struct {
		roll     int
		expected int
	}{
		{0, 0},
		{69, 0},
		{70, 1},
		{94, 1},
		{95, 2},
		{99, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Weighted(fixedRandom{tt.roll}, weights), "roll %d", tt.roll)
	}
}

func TestWeightedSkipsNonPositive(t *testing.T) {
	assert.Equal(t, 1, Weighted(fixedRandom{0}, []int{0, 3, -2}))
	assert.Equal(t, -1, Weighted(fixedRandom{0}, []int{0, -1}))
	assert.Equal(t, -1, Weighted(fixedRandom{0}, nil))
}

func TestCryptoRandomIntnBounds(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		v := r.Intn(7)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 7)
	}
	assert.Equal(t, 0, r.Intn(0))
}
