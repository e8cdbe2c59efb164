package ingest

import (
	"sync/atomic"
	"time"

	"github.com/brojonat/trc20watch/service/transfer"
)

// Status is a point-in-time view of the loop, served by the status API.
type Status struct {
	WatchAddress      string     `json:"watch_address"`
	TokenContract     string     `json:"token_contract"`
	TokenSymbol       string     `json:"token_symbol"`
	MinAmount         string     `json:"min_amount"`
	PollInterval      string     `json:"poll_interval"`
	StartOfInterestMs int64      `json:"start_of_interest_ms"`
	StartOfInterest   *time.Time `json:"start_of_interest,omitempty"`
	Ready             bool       `json:"ready"`
	StartedAt         time.Time  `json:"started_at"`
	SeenCount         int        `json:"seen_count"`
	CyclesRun         int64      `json:"cycles_run"`
	LastCycleID       string     `json:"last_cycle_id,omitempty"`
	LastCycleAt       *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleStatus   string     `json:"last_cycle_status,omitempty"`
	LastFetched       int        `json:"last_fetched"`
	NotifiedTotal     int64      `json:"notified_total"`
	SendFailuresTotal int64      `json:"send_failures_total"`
	PersistFailures   int64      `json:"persist_failures_total"`
}

// statusTracker publishes immutable Status values. Writers are confined to
// the loop goroutine; readers load the pointer.
type statusTracker struct {
	current atomic.Pointer[Status]
}

func newStatusTracker(w transfer.WatchConfig, now time.Time) *statusTracker {
	st := &statusTracker{}
	s := &Status{StartedAt: now.UTC()}
	s.applyWatch(w)
	st.current.Store(s)
	return st
}

func (st *statusTracker) snapshot() Status {
	return *st.current.Load()
}

func (st *statusTracker) update(fn func(s *Status)) {
	next := st.snapshot()
	fn(&next)
	st.current.Store(&next)
}

func (st *statusTracker) started(w transfer.WatchConfig, seen int) {
	st.update(func(s *Status) {
		s.applyWatch(w)
		s.SeenCount = seen
		s.Ready = true
	})
}

func (st *statusTracker) cycleDone(res CycleResult, seen int) {
	st.update(func(s *Status) {
		at := res.StartedAt.UTC()
		s.SeenCount = seen
		s.CyclesRun++
		s.LastCycleID = res.ID
		s.LastCycleAt = &at
		s.LastCycleStatus = res.Status()
		s.LastFetched = res.Fetched
		s.NotifiedTotal += int64(res.Notified)
		s.SendFailuresTotal += int64(res.SendFailures)
		if res.PersistErr != nil {
			s.PersistFailures++
		}
	})
}

func (s *Status) applyWatch(w transfer.WatchConfig) {
	s.WatchAddress = w.WatchedAddress
	s.TokenContract = w.TokenContract
	s.TokenSymbol = w.TokenSymbol
	s.PollInterval = w.PollInterval.String()
	if w.MinRawAmount != nil {
		threshold := &transfer.Transfer{RawAmount: w.MinRawAmount}
		s.MinAmount = threshold.FormatAmount(w.Decimals, w.Decimals)
	}
	s.StartOfInterestMs = w.StartOfInterestMs
	s.StartOfInterest = nil
	if ts := w.StartOfInterest(); !ts.IsZero() {
		ts = ts.UTC()
		s.StartOfInterest = &ts
	}
}
