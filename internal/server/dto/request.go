// Request types with path and query parameter bindings.

package dto

import (
	"strings"
)

// HealthRequest is the request for GET /-/health.
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error { return nil }

// WriteRequest is the request for the insert, upsert and update endpoints.
//
// The body is not decoded by the wrapper: it is read by the handler once the
// caller's permissions have been checked.
type WriteRequest struct {
	Database string `path:"database"`
	Table    string `path:"table"`
	PK       string `query:"pk"`
	Alter    string `query:"alter"`

	body BodyFunc
}

// SetBody implements BodyReceiver.
func (r *WriteRequest) SetBody(body BodyFunc) { r.body = body }

// ReadBody reads the request body.
func (r *WriteRequest) ReadBody() ([]byte, error) {
	if r.body == nil {
		return nil, nil
	}
	return r.body()
}

// AlterRequested reports whether the alter parameter asks for widening.
// Any non-empty value other than "0" or "false" does.
func (r *WriteRequest) AlterRequested() bool {
	switch strings.ToLower(r.Alter) {
	case "", "0", "false":
		return false
	}
	return true
}

// Validate implements Validatable.
func (r *WriteRequest) Validate() error {
	if r.Database == "" {
		return BadRequest("Missing database")
	}
	if r.Table == "" {
		return BadRequest("Missing table")
	}
	return nil
}
