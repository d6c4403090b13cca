package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		co2       float64
		threshold float64
		want      Status
	}{
		{"above vehicle threshold", 150.0, 120, StatusHigh},
		{"below vehicle threshold", 80.0, 120, StatusSafe},
		{"equal is safe", 120, 120, StatusSafe},
		{"just above", math.Nextafter(120, math.Inf(1)), 120, StatusHigh},
		{"just below", math.Nextafter(120, math.Inf(-1)), 120, StatusSafe},
		{"industry high", 500.01, 500, StatusHigh},
		{"negative prediction", -3, 0, StatusSafe},
		{"infinite prediction", math.Inf(1), 500, StatusHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.co2, tt.threshold))
		})
	}
}
