// Package dedup holds the durable set of transaction ids that have already
// been evaluated, plus the start-of-interest instant of the watch.
package dedup

import (
	"context"
	"maps"
	"slices"
	"time"
)

// State is what a Store loads and persists.
type State struct {
	IDs               []string
	StartOfInterestMs int64 // 0 when unknown
	LastUpdate        time.Time
}

// IsEmpty reports whether the state carries neither ids nor a start of
// interest, which is how a first run is recognised.
func (s *State) IsEmpty() bool {
	return s == nil || (len(s.IDs) == 0 && s.StartOfInterestMs == 0)
}

// Store persists dedup state. Implementations rewrite the whole state on
// Persist; a reader never observes a partially applied write.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Persist(ctx context.Context, state *State) error
	Close() error
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// SeenSet is the in-memory set of evaluated transaction ids. It is owned by a
// single goroutine and is not safe for concurrent use.
type SeenSet struct {
	ids   map[string]struct{}
	dirty bool
}

// NewSeenSet creates a set holding ids. The new set is not dirty.
func NewSeenSet(ids ...string) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id has been marked.
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Mark adds id and reports whether it was new. Adding a new id makes the set dirty.
func (s *SeenSet) Mark(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.dirty = true
	return true
}

// Len returns the number of ids.
func (s *SeenSet) Len() int {
	return len(s.ids)
}

// IDs returns the ids in sorted order.
func (s *SeenSet) IDs() []string {
	return slices.Sorted(maps.Keys(s.ids))
}

// Dirty reports whether ids were added since the last ClearDirty.
func (s *SeenSet) Dirty() bool {
	return s.dirty
}

// ClearDirty resets the dirty flag, typically after a successful persist.
func (s *SeenSet) ClearDirty() {
	s.dirty = false
}

// Snapshot builds the State to persist for this set.
func (s *SeenSet) Snapshot(startOfInterestMs int64, now time.Time) *State {
	return &State{
		IDs:               s.IDs(),
		StartOfInterestMs: startOfInterestMs,
		LastUpdate:        now,
	}
}
