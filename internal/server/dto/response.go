// Response types.

package dto

// WriteResponse is returned by every successful write.
type WriteResponse struct {
	TableCount int64 `json:"table_count"`
}

// HealthResponse is returned by GET /-/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Driver  string `json:"driver,omitempty"`
}
