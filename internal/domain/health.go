package domain

type HealthState string

const (
	Healthy     HealthState = "healthy"
	Degraded    HealthState = "degraded"
	Unavailable HealthState = "unavailable"
)

// Worse reports whether s is a worse state than other. Used to fold
// per-provider health into an overall status (the minimum wins).
func (s HealthState) Worse(other HealthState) bool {
	return s.rank() < other.rank()
}

func (s HealthState) rank() int {
	switch s {
	case Healthy:
		return 2
	case Degraded:
		return 1
	default:
		return 0
	}
}

// Health is the result of a component health check.
type Health struct {
	Status  HealthState    `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
