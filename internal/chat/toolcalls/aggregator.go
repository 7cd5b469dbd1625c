// Package toolcalls normalizes the heterogeneous tool-call shapes embedded
// in gateway event payloads into ordered, merged tool-call records.
package toolcalls

import (
	"sort"
	"sync"
	"time"

	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// Status is a tool call's coarse lifecycle phase.
type Status string

const (
	StatusStart  Status = "start"
	StatusUpdate Status = "update"
	StatusResult Status = "result"
)

// Item is one merged tool call. Name and Args are adopted from the first
// non-empty observation and never cleared; Output and Status follow the
// newest update that supplies them.
type Item struct {
	ID        string
	Name      string
	Status    Status
	Args      interface{}
	Output    interface{}
	StartedAt time.Time
	UpdatedAt time.Time
}

// Aggregator accumulates tool-call activity for the current assistant turn.
type Aggregator struct {
	mu    sync.Mutex
	items map[string]*Item
	now   func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		items: make(map[string]*Item),
		now:   time.Now,
	}
}

// Observe scans a payload for tool-call shapes and merges what it finds.
// It returns the number of observations merged.
func (a *Aggregator) Observe(payload protocol.RawPayload) int {
	observations := scanPayload(map[string]interface{}(payload))
	if len(observations) == 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	merged := 0
	for _, obs := range observations {
		if obs.id == "" {
			continue
		}
		a.mergeLocked(obs)
		merged++
	}
	return merged
}

func (a *Aggregator) mergeLocked(obs observation) {
	now := a.now()
	item, ok := a.items[obs.id]
	if !ok {
		item = &Item{
			ID:        obs.id,
			Status:    obs.status,
			StartedAt: now,
		}
		a.items[obs.id] = item
	}
	item.UpdatedAt = now

	if item.Name == "" && obs.name != "" {
		item.Name = obs.name
	}
	if item.Args == nil && obs.args != nil {
		item.Args = obs.args
	}
	if obs.hasOutput {
		item.Output = obs.output
	}
	if obs.hasStatus {
		item.Status = obs.status
	}
}

// Items returns the merged tool calls ordered by (startedAt, updatedAt, id).
func (a *Aggregator) Items() []Item {
	a.mu.Lock()
	out := make([]Item, 0, len(a.items))
	for _, item := range a.items {
		out = append(out, *item)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reset clears all items. Called when a new assistant turn begins.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = make(map[string]*Item)
}
