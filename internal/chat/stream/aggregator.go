// Package stream reconstructs coherent assistant turns from the gateway's
// chat and agent event channels: delta merging, run correlation, fallback
// finalization, and duplicate suppression.
package stream

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perchlabs/perch/internal/common/logger"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

const (
	// fallbackDelay is how long after an agent lifecycle end/error we wait
	// for an explicit chat final before finalizing from accumulated text.
	fallbackDelay = 220 * time.Millisecond

	// dedupeWindow bounds duplicate suppression for finals without a runId.
	dedupeWindow = 1500 * time.Millisecond

	// dedupeCacheSize bounds the per-run finalized-text cache.
	dedupeCacheSize = 32
)

// Callbacks deliver aggregated run updates to the UI layer. Invoked from the
// event-handling goroutine and from fallback timer goroutines, serialized by
// the aggregator's lock.
type Callbacks struct {
	// OnStreaming fires with the full accumulated text after each merged
	// delta.
	OnStreaming func(sessionKey, runID, text string)

	// OnFinal fires once per resolved assistant turn.
	OnFinal func(sessionKey, runID, text string)

	OnAborted func(sessionKey, runID string)
	OnError   func(sessionKey, runID, message string)

	// OnRefreshHistory fires when a run ended without any streamed text;
	// the transcript must be re-fetched from the gateway.
	OnRefreshHistory func(sessionKey string)

	// OnNotify signals turn completion (UI chime).
	OnNotify func()
}

// Aggregator tracks one active assistant run per session focus. It accepts
// events for the active run, adopts a new runId only while awaiting a reply,
// and drops late fragments from superseded runs.
type Aggregator struct {
	log *logger.Logger
	cbs Callbacks

	mu          sync.Mutex
	sessionKey  string
	activeRunID string
	thinking    bool
	accumulated string
	hasText     bool
	stopped     bool

	fallbackTimers map[string]*time.Timer

	finalsByRun   map[string]string
	finalsOrder   []string
	lastFinalText string
	lastFinalAt   time.Time
}

func NewAggregator(log *logger.Logger, cbs Callbacks) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{
		log:            log.WithFields(zap.String("component", "chat-stream")),
		cbs:            cbs,
		fallbackTimers: make(map[string]*time.Timer),
		finalsByRun:    make(map[string]string),
	}
}

// BeginTurn marks a user message as sent: the aggregator awaits a reply and
// will adopt the first run that streams for it.
func (a *Aggregator) BeginTurn(sessionKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionKey = sessionKey
	a.activeRunID = ""
	a.thinking = true
	a.accumulated = ""
	a.hasText = false
}

// Thinking reports whether a reply is still awaited.
func (a *Aggregator) Thinking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thinking
}

// Stop cancels all pending fallback timers. Late timer fires after Stop are
// no-ops.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, t := range a.fallbackTimers {
		t.Stop()
		delete(a.fallbackTimers, id)
	}
}

// HandleChatEvent consumes a chat-channel event payload.
func (a *Aggregator) HandleChatEvent(payload protocol.RawPayload) {
	u, ok := normalizeChat(payload)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyLocked(u)
}

// HandleAgentEvent consumes an agent-channel event payload. The assistant
// sub-stream feeds the delta merge; lifecycle end/error arms the fallback
// finalize timer.
func (a *Aggregator) HandleAgentEvent(payload protocol.RawPayload) {
	u, ok := normalizeAgent(payload)
	if !ok {
		return
	}
	switch u.stream {
	case agentStreamAssistant:
		if u.text == "" {
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()
		a.applyLocked(Update{
			RunID:      u.runID,
			SessionKey: u.sessionKey,
			State:      RunStateDelta,
			Text:       u.text,
		})
	case agentStreamLifecycle:
		switch u.phase {
		case "end", "done", "complete", "error":
			a.scheduleFallback(u.runID, u.sessionKey)
		}
	}
}

// applyLocked runs the correlation policy and state transition for one
// normalized update.
func (a *Aggregator) applyLocked(u Update) {
	if a.stopped {
		return
	}
	if u.SessionKey != "" && a.sessionKey == "" {
		a.sessionKey = u.SessionKey
	}

	// Run correlation: adopt a new runId only while awaiting a reply.
	// Late fragments from a superseded run are dropped once the session
	// has moved on.
	if u.RunID != "" && u.RunID != a.activeRunID {
		if a.activeRunID != "" && !a.thinking {
			a.log.Debug("dropping event for superseded run",
				zap.String("runId", u.RunID), zap.String("active", a.activeRunID))
			return
		}
		if !a.thinking && a.activeRunID == "" {
			a.log.Debug("dropping event with no awaited run", zap.String("runId", u.RunID))
			return
		}
		a.activeRunID = u.RunID
	}

	switch u.State {
	case RunStateDelta:
		a.thinking = false
		a.accumulated = MergeText(a.accumulated, u.Text)
		a.hasText = a.accumulated != ""
		if a.cbs.OnStreaming != nil {
			a.cbs.OnStreaming(a.sessionKeyFor(u), a.activeRunID, a.accumulated)
		}
	case RunStateFinal:
		a.finalizeLocked(u)
	case RunStateAborted:
		a.cancelFallbackLocked(u.RunID)
		runID := a.activeRunID
		a.clearRunLocked()
		if a.cbs.OnAborted != nil {
			a.cbs.OnAborted(a.sessionKeyFor(u), runID)
		}
	case RunStateError:
		a.cancelFallbackLocked(u.RunID)
		runID := a.activeRunID
		a.clearRunLocked()
		if a.cbs.OnError != nil {
			a.cbs.OnError(a.sessionKeyFor(u), runID, u.ErrorMessage)
		}
	}
}

func (a *Aggregator) finalizeLocked(u Update) {
	a.cancelFallbackLocked(u.RunID)

	text := u.Text
	if text == "" {
		text = a.accumulated
	}
	runID := u.RunID
	if runID == "" {
		runID = a.activeRunID
	}
	sessionKey := a.sessionKeyFor(u)
	a.clearRunLocked()

	if text == "" {
		if a.cbs.OnRefreshHistory != nil {
			a.cbs.OnRefreshHistory(sessionKey)
		}
		return
	}
	if a.isDuplicateFinalLocked(runID, text) {
		a.log.Debug("suppressing duplicate final", zap.String("runId", runID))
		return
	}
	a.recordFinalLocked(runID, text)

	if a.cbs.OnFinal != nil {
		a.cbs.OnFinal(sessionKey, runID, text)
	}
	if a.cbs.OnNotify != nil {
		a.cbs.OnNotify()
	}
}

// scheduleFallback arms a debounced finalize for a run whose agent lifecycle
// ended without (yet) an explicit chat final.
func (a *Aggregator) scheduleFallback(runID, sessionKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if runID == "" {
		runID = a.activeRunID
	}
	if runID == "" {
		return
	}
	if t, ok := a.fallbackTimers[runID]; ok {
		t.Stop()
	}
	id := runID
	key := sessionKey
	a.fallbackTimers[id] = time.AfterFunc(fallbackDelay, func() {
		a.fireFallback(id, key)
	})
}

// fireFallback finalizes from accumulated text when no explicit final
// superseded the timer. With nothing accumulated, the transcript is
// refreshed from the gateway instead.
func (a *Aggregator) fireFallback(runID, sessionKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if _, ok := a.fallbackTimers[runID]; !ok {
		return
	}
	delete(a.fallbackTimers, runID)
	if a.activeRunID != runID {
		// Same adoption policy as deltas and finals: a run that ended
		// before streaming anything is adopted while a reply is still
		// awaited; a superseded run stays dropped.
		if !a.thinking {
			return
		}
		a.activeRunID = runID
	}
	u := Update{RunID: runID, SessionKey: sessionKey, State: RunStateFinal}
	if a.hasText {
		u.Text = a.accumulated
	}
	a.finalizeLocked(u)
}

func (a *Aggregator) cancelFallbackLocked(runID string) {
	ids := []string{runID}
	if runID == "" || runID != a.activeRunID {
		ids = append(ids, a.activeRunID)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if t, ok := a.fallbackTimers[id]; ok {
			t.Stop()
			delete(a.fallbackTimers, id)
		}
	}
}

func (a *Aggregator) clearRunLocked() {
	a.activeRunID = ""
	a.thinking = false
	a.accumulated = ""
	a.hasText = false
}

func (a *Aggregator) sessionKeyFor(u Update) string {
	if u.SessionKey != "" {
		return u.SessionKey
	}
	return a.sessionKey
}

func (a *Aggregator) isDuplicateFinalLocked(runID, text string) bool {
	if runID != "" {
		return a.finalsByRun[runID] == text
	}
	return a.lastFinalText == text && time.Since(a.lastFinalAt) < dedupeWindow
}

func (a *Aggregator) recordFinalLocked(runID, text string) {
	if runID == "" {
		a.lastFinalText = text
		a.lastFinalAt = time.Now()
		return
	}
	if _, ok := a.finalsByRun[runID]; !ok {
		a.finalsOrder = append(a.finalsOrder, runID)
		if len(a.finalsOrder) > dedupeCacheSize {
			oldest := a.finalsOrder[0]
			a.finalsOrder = a.finalsOrder[1:]
			delete(a.finalsByRun, oldest)
		}
	}
	a.finalsByRun[runID] = text
}
