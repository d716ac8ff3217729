package lifecycle

// TransitionResult reports a completed manual transition.
type TransitionResult struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AutoResult reports one automatic transition attempt.
type AutoResult struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	// Transitioned is set when the record moved to To.
	Transitioned bool `json:"transitioned"`
	// Skipped explains why no attempt was made.
	Skipped string `json:"skipped,omitempty"`
	// Attempts is the consecutive failure count after this attempt.
	Attempts int64 `json:"attempts"`
	// Disabled is set when this attempt tripped the circuit breaker.
	Disabled bool `json:"disabled"`
	// Reason carries the rejection of a failed attempt.
	Reason string `json:"reason,omitempty"`
}
