package client

// Gap describes a hole observed in the event sequence.
type Gap struct {
	Expected int64
	Received int64
}

// eventSequencer tracks the per-connection event sequence number and flags
// gaps. It observes only: events are never buffered, reordered, or
// backfilled. Events without a seq bypass it entirely.
type eventSequencer struct {
	lastSeq *int64
	onGap   func(Gap)
}

func newEventSequencer(onGap func(Gap)) *eventSequencer {
	return &eventSequencer{onGap: onGap}
}

// observe records an event's sequence number, invoking the gap callback when
// the counter jumps. lastSeq advances regardless of gap detection.
func (s *eventSequencer) observe(seq *int64) {
	if seq == nil {
		return
	}
	if s.lastSeq != nil && *seq > *s.lastSeq+1 && s.onGap != nil {
		s.onGap(Gap{Expected: *s.lastSeq + 1, Received: *seq})
	}
	v := *seq
	s.lastSeq = &v
}

// reset clears the counter. Called when a new logical connection begins so
// the first event of a session never flags a gap.
func (s *eventSequencer) reset() {
	s.lastSeq = nil
}
