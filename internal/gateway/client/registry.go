package client

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/perchlabs/perch/internal/common/errors"
	"github.com/perchlabs/perch/internal/common/logger"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// requestResult is delivered on a pending request's channel exactly once.
type requestResult struct {
	payload json.RawMessage
	err     error
}

type pendingRequest struct {
	ch        chan requestResult
	createdAt time.Time
}

// requestRegistry correlates outbound requests to their responses by id.
// Entries live from send until response or connection loss; request ids are
// single-use.
type requestRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	logger  *logger.Logger
}

func newRequestRegistry(log *logger.Logger) *requestRegistry {
	return &requestRegistry{
		pending: make(map[string]*pendingRequest),
		logger:  log.WithFields(zap.String("component", "request-registry")),
	}
}

// add registers a pending request and returns its result channel.
func (r *requestRegistry) add(id string) <-chan requestResult {
	req := &pendingRequest{
		ch:        make(chan requestResult, 1),
		createdAt: time.Now(),
	}
	r.mu.Lock()
	r.pending[id] = req
	r.mu.Unlock()
	return req.ch
}

// remove drops a pending request without resolving it (send failure,
// caller cancellation).
func (r *requestRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// resolve dispatches a response frame to its waiter. Responses with unknown
// ids are ignored: the request was already resolved, rejected, or belongs to
// a previous connection.
func (r *requestRegistry) resolve(frame *protocol.Frame) {
	r.mu.Lock()
	req, ok := r.pending[frame.ID]
	delete(r.pending, frame.ID)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("response for unknown request id", zap.String("id", frame.ID))
		return
	}

	if frame.Succeeded() {
		req.ch <- requestResult{payload: frame.Payload}
		return
	}

	code, message := "", "request failed"
	if frame.Error != nil {
		code, message = frame.Error.Code, frame.Error.Message
	}
	req.ch <- requestResult{err: apperrors.Application(code, message)}
}

// rejectAll fails every outstanding request with err and clears the map.
// Each entry resolves at most once; callers must re-issue after reconnect.
func (r *requestRegistry) rejectAll(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*pendingRequest)
	r.mu.Unlock()

	if len(pending) > 0 {
		r.logger.Debug("rejecting outstanding requests",
			zap.Int("count", len(pending)), zap.Error(err))
	}
	for _, req := range pending {
		req.ch <- requestResult{err: err}
	}
}

// len reports the number of outstanding requests.
func (r *requestRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
