package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/maruel/insertd/internal/metrics"
	"github.com/maruel/insertd/internal/reconcile"
	"github.com/maruel/insertd/internal/rows"
	"github.com/maruel/insertd/internal/server/dto"
	"github.com/maruel/insertd/internal/server/reqctx"
)

// WriteHandler handles the insert, upsert and update endpoints.
type WriteHandler struct {
	svc        *Services
	normalizer rows.Normalizer
	reconciler *reconcile.Reconciler
}

// NewWriteHandler creates a write handler. maxRows bounds the rows per
// request; 0 means unlimited.
func NewWriteHandler(svc *Services, maxRows int) *WriteHandler {
	return &WriteHandler{
		svc:        svc,
		normalizer: rows.Normalizer{MaxRows: maxRows},
		reconciler: reconcile.New(svc.Databases),
	}
}

// Insert inserts rows, replacing rows whose primary key already exists.
func (h *WriteHandler) Insert(ctx context.Context, req *dto.WriteRequest) (*dto.WriteResponse, error) {
	return h.write(ctx, req, "insert", reconcile.ModeInsert, req.AlterRequested())
}

// Upsert inserts new rows and merges the given columns into existing ones.
func (h *WriteHandler) Upsert(ctx context.Context, req *dto.WriteRequest) (*dto.WriteResponse, error) {
	return h.write(ctx, req, "upsert", reconcile.ModeUpsert, req.AlterRequested())
}

// Update is the legacy insert-with-replace endpoint. It never widens the
// table.
func (h *WriteHandler) Update(ctx context.Context, req *dto.WriteRequest) (*dto.WriteResponse, error) {
	return h.write(ctx, req, "update", reconcile.ModeInsert, false)
}

func (h *WriteHandler) write(ctx context.Context, req *dto.WriteRequest, verb string, mode reconcile.Mode, alter bool) (resp *dto.WriteResponse, err error) {
	start := time.Now()
	written := 0
	defer func() { metrics.RecordWrite(verb, outcome(err), written, time.Since(start)) }()

	if !h.svc.Databases.Has(req.Database) {
		return nil, dto.DatabaseNotFound(req.Database)
	}
	caps := h.svc.Gate.Resolve(ctx, reqctx.Actor(ctx), req.Database, req.Table)
	wr := &reconcile.WriteRequest{
		Database:   req.Database,
		Table:      req.Table,
		Mode:       mode,
		PrimaryKey: req.PK,
		Alter:      alter,
	}
	// Reject before reading the body.
	if err := reconcile.Check(wr, caps); err != nil {
		return nil, dto.Classify(ctx, err)
	}
	body, err := req.ReadBody()
	if err != nil {
		return nil, err
	}
	if wr.Rows, err = h.normalizer.Normalize(body); err != nil {
		return nil, dto.Classify(ctx, err)
	}
	res, err := h.reconciler.Write(ctx, wr, caps)
	if err != nil {
		return nil, dto.Classify(ctx, err)
	}
	written = len(wr.Rows)
	return &dto.WriteResponse{TableCount: res.TableCount}, nil
}

// outcome is the metrics label for a write result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	apiErr := dto.Classify(context.Background(), err)
	if c := apiErr.Code(); c != dto.ErrorCodeNone {
		return string(c)
	}
	return strconv.Itoa(apiErr.StatusCode())
}
