// Maps write path failures to API errors.

package dto

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maruel/insertd/internal/reconcile"
	"github.com/maruel/insertd/internal/rows"
	"github.com/maruel/insertd/internal/sqlitedb"
)

// Classify returns the API error for a failure from the write path.
//
// Storage errors are classified as unknown keys only when SQLite reports a
// missing column; every other storage error is a 500 carrying the engine's
// message. Errors that cannot be classified are logged.
func Classify(ctx context.Context, err error) *APIError {
	var apiErr *APIError
	var mt *reconcile.MissingTableError
	var se *reconcile.StorageError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, reconcile.ErrUpsertRequiresKey):
		return UpsertRequiresPK()
	case errors.Is(err, reconcile.ErrAlterDenied):
		return Forbidden(reconcile.ErrAlterDenied.Error())
	case errors.Is(err, reconcile.ErrPermissionDenied):
		return Forbidden(reconcile.ErrPermissionDenied.Error())
	case errors.Is(err, rows.ErrMalformed):
		return InvalidJSON(err.Error()).Wrap(err)
	case errors.As(err, &mt):
		return MissingTable(mt.Table).Wrap(err)
	case errors.Is(err, sqlitedb.ErrUnknownDatabase):
		// Callers that know the name use DatabaseNotFound directly.
		return NotFound("Database not found").Wrap(err)
	case errors.As(err, &se):
		if sqlitedb.IsUnknownColumn(se.Err) {
			if !sqlitedb.HasCode(se.Err) {
				slog.WarnContext(ctx, "Classified unknown column from message text only", "err", err)
			}
			return UnknownKeys(sqlitedb.EngineMessage(se.Err)).Wrap(err)
		}
		slog.WarnContext(ctx, "Unclassified storage error", "op", se.Op, "err", se.Err)
		return Internal(sqlitedb.EngineMessage(se.Err)).Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Internal(err.Error()).Wrap(err)
	default:
		slog.WarnContext(ctx, "Unclassified error", "err", err)
		return Internal("Internal error").Wrap(err)
	}
}
