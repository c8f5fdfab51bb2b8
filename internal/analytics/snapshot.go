package analytics

// Health is the coarse service status reported to observers.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
)

// Snapshot is the live metrics view shared by every observer.
type Snapshot struct {
	ActiveConnections int    `json:"active_connections"`
	AnalysesToday     int64  `json:"analyses_today"`
	TotalAnalyses     int64  `json:"total_analyses"`
	SystemHealth      Health `json:"system_health"`
}
