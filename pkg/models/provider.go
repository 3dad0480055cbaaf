package models

// Capability names a logical paid capability a unit of work may need,
// e.g. "sentiment" or "strategy". Each capability has its own ordered
// fallback list of candidates.
type Capability string

const (
	CapabilitySentiment Capability = "sentiment"
	CapabilityStrategy  Capability = "strategy"
)

// ProviderCandidate is one (provider, model) entry in a capability's
// fallback order. Ordering is static configuration, never computed.
type ProviderCandidate struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`

	// EstimatedCost is the conservative upper-bound dollar cost charged
	// against the budget before the real call. Estimates are sized so a
	// post-call correction only ever adds residual cost.
	EstimatedCost float64 `json:"estimated_cost" mapstructure:"estimated_cost"`

	// RequestsPerMinute smooths call bursts toward the provider. Zero
	// disables rate smoothing for the candidate.
	RequestsPerMinute float64 `json:"requests_per_minute" mapstructure:"requests_per_minute"`
}
