package privacy

// GroupCount is a raw (category, count) pair before disclosure control.
type GroupCount struct {
	Category string
	Count    int
}

// PublishableGroup is a category that survived k-anonymity suppression and
// carries calibrated noise. Only these values may leave the core.
type PublishableGroup struct {
	Category       string  `json:"category"`
	Count          int     `json:"count"`
	Percentage     float64 `json:"percentage"`
	ConfidenceLow  float64 `json:"confidence_interval_low"`
	ConfidenceHigh float64 `json:"confidence_interval_high"`
	NoiseMagnitude float64 `json:"noise_magnitude"`
	KGroupSize     int     `json:"k_group_size"`
}

// Result is the outcome of one suppress-and-noise pass.
type Result struct {
	Groups []PublishableGroup `json:"groups"`
	// SuppressedCount is the sum of raw counts removed by suppression.
	// Callers must surface a non-zero value as a warning, never drop it.
	SuppressedCount int `json:"suppressed_count"`
	// BudgetConsumed is the epsilon reserved for this pass (zero when the
	// reservation was rejected).
	BudgetConsumed float64 `json:"budget_consumed"`
	KThreshold     int     `json:"k_threshold"`
}
