package fractal

import "testing"

func TestIterationsAt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		re, im   float64
		max      int
		expected int
	}{
		{name: "origin", re: 0, im: 0, max: 500, expected: 500},
		{name: "origin small budget", re: 0, im: 0, max: 1, expected: 1},
		{name: "period two", re: -1, im: 0, max: 64, expected: 64},
		{name: "far outside", re: 3, im: 0, max: 50, expected: 1},
		{name: "on the radius", re: 2, im: 0, max: 50, expected: 2},
		{name: "imaginary", re: 0, im: 3, max: 50, expected: 1},
		{name: "zero budget", re: 3, im: 0, max: 0, expected: 0},
	}
	for _, tt := range tests {
		if got := IterationsAt(tt.re, tt.im, tt.max); got != tt.expected {
			t.Fatalf("%s: IterationsAt(%v, %v, %d) = %d, want %d", tt.name, tt.re, tt.im, tt.max, got, tt.expected)
		}
	}
}

func TestIterationsAtBounded(t *testing.T) {
	t.Parallel()
	for re := -2.5; re <= 1.5; re += 0.37 {
		for im := -1.5; im <= 1.5; im += 0.29 {
			if got := IterationsAt(re, im, 40); got < 0 || got > 40 {
				t.Fatalf("IterationsAt(%v, %v) = %d out of range", re, im, got)
			}
		}
	}
}
