// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/insertd/internal/server/dto"
	"github.com/maruel/insertd/internal/server/ratelimit"
	"github.com/maruel/insertd/internal/server/reqctx"
)

// addRequestMetadataToContext adds client IP and User-Agent to the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// checkRateLimit checks rate limit and wraps the response writer if needed.
// Returns the (possibly wrapped) writer and whether the request should proceed.
func checkRateLimit(w http.ResponseWriter, tier *ratelimit.Tier, scope ratelimit.Scope, identifier string) (http.ResponseWriter, bool) {
	if tier == nil {
		return w, true
	}
	key := ratelimit.BuildKey(scope, identifier, tier.Name)
	result := tier.Limiter.Allow(key)
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		writeErrorResponse(w, dto.RateLimitExceeded())
		return w, false
	}
	return w, true
}

// getRateLimitIdentifier returns the identifier for the tier's scope. Anonymous
// callers fall back to their IP.
func getRateLimitIdentifier(ctx context.Context, tier *ratelimit.Tier, r *http.Request) (ratelimit.Scope, string) {
	if tier.Scope == ratelimit.ScopeActor {
		if id := reqctx.Actor(ctx).ID(); id != "" {
			return ratelimit.ScopeActor, id
		}
	}
	return ratelimit.ScopeIP, reqctx.GetClientIP(r)
}

// bodyReader returns a BodyFunc reading r's body at most once, limited to
// maxBytes when positive.
func bodyReader(w http.ResponseWriter, r *http.Request, maxBytes int64) dto.BodyFunc {
	var body []byte
	var err error
	read := false
	return func() ([]byte, error) {
		if read {
			return body, err
		}
		read = true
		rd := r.Body
		if maxBytes > 0 {
			rd = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		body, err = io.ReadAll(rd)
		if err2 := rd.Close(); err == nil {
			err = err2
		}
		if err != nil {
			if maxBytesErr := checkMaxBytesError(err); maxBytesErr != nil {
				err = dto.PayloadTooLarge(maxBytesErr.Limit).Wrap(err)
			} else {
				err = dto.BadRequest("Failed to read request body").Wrap(err)
			}
			body = nil
		}
		return body, err
	}
}

// readAndDecodeBody reads the request body with size limit and decodes JSON
// into input. Returns false if an error occurred and was written to the
// response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, maxBytes int64) bool {
	body, err := bodyReader(w, r, maxBytes)()
	if err != nil {
		slog.WarnContext(ctx, "Failed to read request body", "err", err)
		writeErrorResponse(w, dto.Classify(ctx, err))
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.WarnContext(ctx, "Failed to decode request body", "err", err)
			writeErrorResponse(w, dto.InvalidJSON("Invalid request body"))
			return false
		}
	}
	return true
}

// checkMaxBytesError checks if an error is a MaxBytesError and returns it, or nil.
func checkMaxBytesError(err error) *http.MaxBytesError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return maxBytesErr
	}
	return nil
}

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where Out is a struct encoded as JSON.
// Path parameters can be extracted by tagging struct fields with `path:"name"`,
// query parameters with `query:"name"`.
// *In must implement dto.Validatable. When *In implements dto.BodyReceiver
// the body is handed over unread, so the handler can decide whether to read it
// at all; otherwise a JSON body is decoded into *In.
//
// Example:
//
//	type WriteRequest struct {
//	    Database string `path:"database"`
//	    PK       string `query:"pk"`
//	}
//
//	func (h *WriteHandler) Insert(ctx context.Context, req *WriteRequest) (*WriteResponse, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)

		if tier := cfg.RateLimits.Match(r.Method, r.URL.Path); tier != nil {
			scope, id := getRateLimitIdentifier(ctx, tier, r)
			var ok bool
			if w, ok = checkRateLimit(w, tier, scope, id); !ok {
				slog.InfoContext(ctx, "Rate limited", "scope", scope, "id", id)
				return
			}
		}

		input := new(In)
		if br, ok := any(input).(dto.BodyReceiver); ok {
			br.SetBody(bodyReader(w, r, cfg.MaxRequestBodyBytes))
		} else if !readAndDecodeBody(ctx, w, r, input, cfg.MaxRequestBodyBytes) {
			return
		}

		populatePathParams(r, input)
		populateQueryParams(r, input)

		if err := PtrIn(input).Validate(); err != nil {
			handleValidationError(ctx, w, err)
			return
		}

		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// writeJSONResponse writes a JSON response or error response.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		apiErr := dto.Classify(ctx, err)
		if apiErr.StatusCode() >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", apiErr.StatusCode())
		} else {
			slog.InfoContext(ctx, "Request rejected", "err", err, "statusCode", apiErr.StatusCode(), "code", apiErr.Code())
		}
		writeErrorResponse(w, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams extracts query parameters from the request and populates
// struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}

		fieldVal := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				fieldVal.SetInt(int64(intVal))
			}
		default:
			// Try to use encoding.TextUnmarshaler interface for custom types
			if fieldVal.CanAddr() {
				if unmarshaler, ok := fieldVal.Addr().Interface().(encoding.TextUnmarshaler); ok {
					_ = unmarshaler.UnmarshalText([]byte(paramValue))
				}
			}
		}
	}
}

func structElem(input any) (reflect.Value, bool) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return reflect.Value{}, false
	}
	elem := val.Elem()
	return elem, elem.Kind() == reflect.Struct
}

// handleValidationError handles a validation error from a request's Validate method.
func handleValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr dto.ErrorWithStatus
	if !errors.As(err, &apiErr) {
		apiErr = dto.BadRequest(err.Error())
	}
	slog.InfoContext(ctx, "Validation error", "err", err, "statusCode", apiErr.StatusCode())
	writeErrorResponse(w, apiErr)
}

// writeErrorResponse writes an error as {"status", "error", "error_code"}.
func writeErrorResponse(w http.ResponseWriter, apiErr dto.ErrorWithStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	if err := json.NewEncoder(w).Encode(dto.NewErrorResponse(apiErr)); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
