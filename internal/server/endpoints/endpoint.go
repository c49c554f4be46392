package endpoints

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type contextKey int

// CKRequestID carries the request id
const CKRequestID contextKey = iota

// Endpoint adapts a Handler to http.Handler, rendering its outcome
type Endpoint struct {
	core    *core.Core
	name    string
	handler Handler
}

// Handler represents a custom handler; a zero code is derived from err
type Handler func(ctx context.Context, c *core.Core, w http.ResponseWriter, r *http.Request) (result interface{}, code int, err error)

// Response is the envelope of every non-empty response
type Response struct {
	RequestID     uuid.UUID     `json:"request_id"`
	Result        interface{}   `json:"result,omitempty"`
	Error         *Error        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"exec_time"`
}

// Error describes a failed request
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewEndpoint(c *core.Core, h Handler, name string) (e Endpoint) {
	if c == nil {
		panic(core.ErrNilCore)
	}

	// basic validation
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		panic(errors.New("empty endpoint name"))
	}

	e = Endpoint{
		core:    c,
		name:    name,
		handler: h,
	}

	return e
}

func (e Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// generating request ID
	requestID := uuid.New()

	// injecting request ID into the context
	ctx := context.WithValue(r.Context(), CKRequestID, requestID)

	//---------------------------------------------------------------------------
	// processing request
	//---------------------------------------------------------------------------
	start := time.Now()

	// executing handler
	result, code, err := e.handler(ctx, e.core, w, r)

	if code == 0 {
		code = StatusOf(err)
	}

	response := Response{
		RequestID:     requestID,
		Result:        result,
		ExecutionTime: time.Since(start),
	}

	if err != nil {
		response.Error = &Error{
			Kind:    KindOf(err),
			Message: err.Error(),
		}

		l := e.core.Logger().With(
			zap.String("endpoint", e.name),
			zap.String("request_id", requestID.String()),
			zap.Int("status", code),
			zap.Error(err),
		)

		if code >= http.StatusInternalServerError {
			l.Error("request failed")
		} else {
			l.Debug("request rejected")
		}
	}

	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}

	// marshaling handler's result
	payload, err := util.JSON.Marshal(response)
	if err != nil {
		http.Error(
			w,
			errors.Wrap(err, "failed to marshal server response").Error(),
			http.StatusInternalServerError,
		)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(code)
	w.Write(payload)
}
