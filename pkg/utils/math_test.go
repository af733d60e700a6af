package utils

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{7, 0, 5, 5},
		{-3, 0, 5, 0},
		{2.5, 0, 5, 2.5},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestRoundToStep(t *testing.T) {
	if got := RoundToStep(4.2, 0.5); got != 4.0 {
		t.Errorf("RoundToStep(4.2, 0.5) = %v", got)
	}
	if got := RoundToStep(4.3, 0.5); got != 4.5 {
		t.Errorf("RoundToStep(4.3, 0.5) = %v", got)
	}
	if got := RoundToStep(1.23, 0); got != 1.23 {
		t.Errorf("RoundToStep with zero step = %v", got)
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1) {
		t.Error("1 should be finite")
	}
	if IsFinite(math.NaN()) || IsFinite(math.Inf(1)) || IsFinite(math.Inf(-1)) {
		t.Error("NaN and Inf should not be finite")
	}
}
