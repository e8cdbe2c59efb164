// Package ingest runs the startup and polling state machine that turns
// provider records into at most one notification per transaction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/brojonat/trc20watch/service/dedup"
	"github.com/brojonat/trc20watch/service/metrics"
	natspkg "github.com/brojonat/trc20watch/service/nats"
	"github.com/brojonat/trc20watch/service/notify"
	"github.com/brojonat/trc20watch/service/transfer"
)

const (
	// DefaultSendDelay separates consecutive notification sends in one cycle.
	DefaultSendDelay = 1 * time.Second

	// DefaultMaxLoggedDrops bounds how many unusable records are logged per cycle.
	DefaultMaxLoggedDrops = 5
)

// Fetcher defines the provider operation needed by the loop.
// This allows for easy mocking in tests.
type Fetcher interface {
	FetchCandidates(ctx context.Context) []transfer.Record
}

// Publisher defines the NATS publishing operation needed by the loop.
// This allows for easy mocking in tests.
type Publisher interface {
	PublishTransfer(ctx context.Context, event *natspkg.TransferEvent) error
}

// Deps holds the collaborators of a Loop. Following go-kit pattern, all
// dependencies are explicit. Publisher, Metrics, Logger, Normalizer and
// Tokens are optional.
type Deps struct {
	Fetcher    Fetcher
	Store      dedup.Store
	Notifier   notify.Notifier
	Formatter  notify.Formatter
	Publisher  Publisher
	Normalizer *transfer.Normalizer
	Tokens     transfer.TokenMatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Options tunes a Loop. Zero values select the defaults.
type Options struct {
	ChannelID      string
	SendDelay      time.Duration
	MaxLoggedDrops int
	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// CycleResult summarizes one polling cycle.
type CycleResult struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Fetched      int
	Dropped      int
	Verdicts     map[transfer.Verdict]int
	Notified     int
	SendFailures int
	Persisted    bool
	PersistErr   error
	Err          error // set when the cycle panicked
}

// Status returns "ok", "persist_failed" or "panic".
func (r CycleResult) Status() string {
	switch {
	case r.Err != nil:
		return "panic"
	case r.PersistErr != nil:
		return "persist_failed"
	default:
		return "ok"
	}
}

// Loop owns the seen-set and runs fetch, classify and notify sequentially.
// Only Status may be called from another goroutine.
type Loop struct {
	watch      transfer.WatchConfig
	classifier *transfer.Classifier
	seen       *dedup.SeenSet

	fetcher    Fetcher
	store      dedup.Store
	notifier   notify.Notifier
	formatter  notify.Formatter
	publisher  Publisher
	normalizer *transfer.Normalizer
	tokens     transfer.TokenMatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	channelID      string
	sendDelay      time.Duration
	maxLoggedDrops int
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	status *statusTracker
}

// New creates a Loop for watch. Startup must run before the first cycle.
func New(watch transfer.WatchConfig, deps Deps, opts Options) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = transfer.NewNormalizer()
	}
	formatter := deps.Formatter
	if formatter == nil {
		formatter = notify.NewHTMLFormatter("")
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = 0
	}
	if opts.MaxLoggedDrops <= 0 {
		opts.MaxLoggedDrops = DefaultMaxLoggedDrops
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	l := &Loop{
		watch:          watch,
		seen:           dedup.NewSeenSet(),
		fetcher:        deps.Fetcher,
		store:          deps.Store,
		notifier:       deps.Notifier,
		formatter:      formatter,
		publisher:      deps.Publisher,
		normalizer:     normalizer,
		tokens:         deps.Tokens,
		metrics:        deps.Metrics,
		logger:         logger.With("component", "ingest", "watch_address", watch.WatchedAddress),
		channelID:      opts.ChannelID,
		sendDelay:      opts.SendDelay,
		maxLoggedDrops: opts.MaxLoggedDrops,
		now:            opts.Now,
		sleep:          opts.Sleep,
	}
	l.classifier = transfer.NewClassifier(watch, deps.Tokens)
	l.status = newStatusTracker(watch, l.now())
	return l
}

// Watch returns the active watch config, including the start of interest
// once Startup has run.
func (l *Loop) Watch() transfer.WatchConfig {
	return l.watch
}

// Seen exposes the seen-set. It must only be used from the loop goroutine.
func (l *Loop) Seen() *dedup.SeenSet {
	return l.seen
}

// Status returns the latest published snapshot. Safe for concurrent use.
func (l *Loop) Status() Status {
	return l.status.snapshot()
}

// Run executes Startup and then polls until ctx is cancelled. A failing or
// panicking cycle is logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Startup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		l.RunCycle(ctx)
		if err := l.sleep(ctx, l.watch.PollInterval); err != nil {
			l.logger.InfoContext(ctx, "ingestion loop stopped", "cycles", l.status.snapshot().CyclesRun)
			return nil
		}
	}
}

// Startup loads the dedup state. On the first run ever it records now as the
// start of interest and marks every currently visible transfer as seen
// without classifying it, so only later transfers are ever surfaced. It then
// sends a best-effort startup message.
func (l *Loop) Startup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := l.load(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to load dedup state, starting empty",
			"backend", l.store.Backend(),
			"error", err,
		)
		state = &dedup.State{}
	}

	l.seen = dedup.NewSeenSet(state.IDs...)
	start := state.StartOfInterestMs

	if state.IsEmpty() {
		now := l.now()
		start = now.UnixMilli()
		absorbed, dropped := l.absorb(ctx)
		l.logger.InfoContext(ctx, "first run, absorbed existing history",
			"absorbed", absorbed,
			"dropped", dropped,
			"start_of_interest", now.UTC().Format(time.RFC3339),
		)
		if err := l.persist(ctx, start); err != nil {
			l.logger.ErrorContext(ctx, "failed to persist initial dedup state", "error", err)
		}
	} else {
		l.logger.InfoContext(ctx, "loaded dedup state",
			"seen", l.seen.Len(),
			"start_of_interest_ms", start,
			"last_update", state.LastUpdate,
		)
	}

	// The watch config is replaced, never mutated.
	l.watch = l.watch.WithStartOfInterest(start)
	l.classifier = transfer.NewClassifier(l.watch, l.tokens)

	l.metrics.RecordStartOfInterest(l.watch.WatchedAddress, start)
	l.metrics.RecordSeenSetSize(l.watch.WatchedAddress, l.seen.Len())
	l.status.started(l.watch, l.seen.Len())

	l.sendStartup(ctx)
	return nil
}

// absorb marks every id of the current fetch as seen.
func (l *Loop) absorb(ctx context.Context) (absorbed, dropped int) {
	for _, rec := range l.fetcher.FetchCandidates(ctx) {
		t, err := l.normalizer.Normalize(rec)
		if err != nil {
			dropped++
			continue
		}
		if l.seen.Mark(t.ID) {
			absorbed++
		}
	}
	return absorbed, dropped
}

func (l *Loop) sendStartup(ctx context.Context) {
	if l.notifier == nil {
		return
	}
	start := time.Now()
	err := l.notifier.Send(ctx, l.channelID, l.formatter.Startup(l.watch, l.now()))
	l.metrics.RecordNotification("startup", err, time.Since(start).Seconds())
	if err != nil {
		l.logger.WarnContext(ctx, "failed to send startup message", "error", err)
		return
	}
	l.logger.InfoContext(ctx, "startup message sent", "channel_id", l.channelID)
}

// RunCycle performs one fetch, classify, notify and persist pass. It never
// panics; a panic is recovered and reported through CycleResult.Err.
func (l *Loop) RunCycle(ctx context.Context) (res CycleResult) {
	res = CycleResult{
		ID:        uuid.NewString(),
		StartedAt: l.now(),
		Verdicts:  make(map[transfer.Verdict]int, len(transfer.Verdicts)),
	}
	logger := l.logger.With("cycle_id", res.ID)
	began := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("cycle panicked: %v", r)
			logger.ErrorContext(ctx, "recovered from panic in polling cycle",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		res.Duration = time.Since(began)
		l.metrics.RecordCycle(l.watch.WatchedAddress, res.Status(), res.Duration.Seconds())
		l.metrics.RecordSeenSetSize(l.watch.WatchedAddress, l.seen.Len())
		l.status.cycleDone(res, l.seen.Len())
	}()

	records := l.fetcher.FetchCandidates(ctx)
	res.Fetched = len(records)
	l.metrics.RecordRecordsFetched(l.watch.WatchedAddress, len(records))

	var pending []*transfer.Transfer
	for _, rec := range records {
		t, err := l.normalizer.Normalize(rec)
		if err != nil {
			res.Dropped++
			l.metrics.RecordRecordDropped(l.watch.WatchedAddress, "no_identifier")
			if res.Dropped <= l.maxLoggedDrops {
				logger.WarnContext(ctx, "dropping record without transaction id",
					"keys", rec.Keys(15),
				)
			}
			continue
		}

		v := l.classifier.Classify(t, l.seen)
		res.Verdicts[v]++
		l.metrics.RecordVerdict(l.watch.WatchedAddress, v.String())
		if v == transfer.Notify {
			pending = append(pending, t)
			continue
		}
		if v != transfer.SkipDuplicate {
			logger.DebugContext(ctx, "skipping transfer",
				"txn_id", t.ID,
				"verdict", v.String(),
				"amount", t.FormatAmount(l.watch.Decimals, l.watch.Decimals),
			)
		}
	}

	for i, t := range pending {
		if i > 0 {
			if err := l.sleep(ctx, l.sendDelay); err != nil {
				logger.WarnContext(ctx, "cycle interrupted before all notifications were sent",
					"unsent", len(pending)-i,
				)
				break
			}
		}
		l.deliver(ctx, logger, t, res.ID, &res)
	}

	if l.seen.Dirty() {
		// Persist even when shutting down mid-cycle.
		err := l.persist(context.WithoutCancel(ctx), l.watch.StartOfInterestMs)
		res.Persisted = err == nil
		res.PersistErr = err
		if err != nil {
			logger.ErrorContext(ctx, "failed to persist dedup state, will retry next cycle",
				"backend", l.store.Backend(),
				"error", err,
			)
		}
	}

	if res.Fetched > 0 || res.Notified > 0 || res.SendFailures > 0 {
		logger.InfoContext(ctx, "polling cycle complete",
			"fetched", res.Fetched,
			"dropped", res.Dropped,
			"notified", res.Notified,
			"send_failures", res.SendFailures,
			"seen", l.seen.Len(),
		)
	}
	return res
}

// deliver sends one notification and publishes the outcome. The transfer
// stays marked seen whether or not the send succeeds.
func (l *Loop) deliver(ctx context.Context, logger *slog.Logger, t *transfer.Transfer, cycleID string, res *CycleResult) {
	html := l.formatter.Transfer(t, l.watch)

	start := time.Now()
	err := l.notifier.Send(ctx, l.channelID, html)
	l.metrics.RecordNotification("transfer", err, time.Since(start).Seconds())

	if err != nil {
		res.SendFailures++
		logger.ErrorContext(ctx, "failed to send transfer notification",
			"txn_id", t.ID,
			"error", err,
		)
	} else {
		res.Notified++
		logger.InfoContext(ctx, "transfer notification sent",
			"txn_id", t.ID,
			"amount", t.FormatAmount(l.watch.Decimals, 2),
			"from", t.FromAddress,
		)
	}

	if l.publisher == nil {
		return
	}
	event := natspkg.FromTransfer(t, l.watch, err, cycleID)
	if perr := l.publisher.PublishTransfer(ctx, event); perr != nil {
		logger.WarnContext(ctx, "failed to publish transfer event",
			"txn_id", t.ID,
			"error", perr,
		)
	}
}

func (l *Loop) load(ctx context.Context) (*dedup.State, error) {
	start := time.Now()
	state, err := l.store.Load(ctx)
	l.metrics.RecordStoreOperation(l.store.Backend(), "load", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &dedup.State{}
	}
	return state, nil
}

// persist writes the whole seen-set. The dirty flag is cleared only on success.
func (l *Loop) persist(ctx context.Context, startOfInterestMs int64) error {
	start := time.Now()
	err := l.store.Persist(ctx, l.seen.Snapshot(startOfInterestMs, l.now()))
	l.metrics.RecordStoreOperation(l.store.Backend(), "persist", time.Since(start).Seconds(), err)
	if err != nil {
		return err
	}
	l.seen.ClearDirty()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
