// Package handlers implements the HTTP endpoint handlers.
package handlers

import (
	"github.com/maruel/insertd/internal/auth"
	"github.com/maruel/insertd/internal/capability"
	"github.com/maruel/insertd/internal/sqlitedb"
)

// Services holds the components handlers depend on.
type Services struct {
	Databases *sqlitedb.Registry
	Gate      *capability.Gate
	Auth      *auth.Authenticator
}
