// Package agent provides the NATS lifecycle and metrics shared by the route
// tracker binaries
package agent

// Role identifies what a process does on the bus
type Role string

const (
	RoleRouteTracker  Role = "route-tracker"
	RoleUnitSimulator Role = "unit-simulator"
)

// HealthStatus represents agent health
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Config holds configuration for an agent
type Config struct {
	ID      string
	Role    Role
	NATSUrl string

	// Optional NATS credentials
	User     string
	Password string
}
