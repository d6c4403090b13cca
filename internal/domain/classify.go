package domain

// Classify labels a prediction HIGH when it is strictly above the threshold.
// A prediction equal to the threshold is SAFE.
func Classify(co2, threshold float64) Status {
	if co2 > threshold {
		return StatusHigh
	}
	return StatusSafe
}
