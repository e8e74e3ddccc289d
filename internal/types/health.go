package types

import "time"

// HealthStatus represents the overall service health status
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	StartTime time.Time         `json:"start_time"`
	Uptime    string            `json:"uptime"`
	Details   []ComponentStatus `json:"details,omitempty"`
}

// ComponentStatus represents individual component status
type ComponentStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// DatabaseStats represents database statistics
type DatabaseStats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	QueryCount      int64         `json:"query_count"`
	ErrorCount      int64         `json:"error_count"`
	SlowQueries     int64         `json:"slow_queries"`
	AvgQueryTime    time.Duration `json:"avg_query_time"`
}
