package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/events"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/service"
	"github.com/phrazzld/careminder/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrDispatchSkipped marks an occurrence whose status changed between the due
// query and the transition. It is logged at debug and never surfaced.
var ErrDispatchSkipped = errors.New("occurrence no longer in expected status")

// Config tunes the dispatch loop.
type Config struct {
	TickInterval time.Duration
	// GraceWindow is how long a dispatched occurrence may wait for a check-in
	// before it is marked missed.
	GraceWindow time.Duration
	// BatchSize bounds how many occurrences one tick reads per phase.
	BatchSize   int
	Concurrency int
}

// DefaultConfig returns a one minute tick with a 30 minute grace window.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		GraceWindow:  30 * time.Minute,
		BatchSize:    500,
		Concurrency:  8,
	}
}

// Result counts what a tick did.
type Result struct {
	Dispatched int
	Missed     int
	Skipped    int
	Failed     int
}

type counters struct {
	dispatched, missed, skipped, failed atomic.Int64
}

func (c *counters) result() Result {
	return Result{
		Dispatched: int(c.dispatched.Load()),
		Missed:     int(c.missed.Load()),
		Skipped:    int(c.skipped.Load()),
		Failed:     int(c.failed.Load()),
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the time source Run uses for each tick.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithRetryConfig sets the retry budget for store calls.
func WithRetryConfig(cfg store.RetryConfig) Option {
	return func(d *Dispatcher) { d.retry = cfg }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithHealthReporter registers a callback that receives the outcome of each
// tick's store reads.
func WithHealthReporter(report func(error)) Option {
	return func(d *Dispatcher) { d.report = report }
}

// Dispatcher moves due occurrences to pending_confirmation and expired ones to
// missed.
type Dispatcher struct {
	backend store.Backend
	resched service.Rescheduler
	locker  *service.PatientLocker
	emitter events.EventEmitter
	cfg     Config

	now    func() time.Time
	retry  store.RetryConfig
	logger *slog.Logger
	report func(error)

	// tickMu keeps ticks from overlapping.
	tickMu sync.Mutex
}

// New creates a Dispatcher. Zero config fields take their defaults.
func New(
	backend store.Backend,
	resched service.Rescheduler,
	locker *service.PatientLocker,
	emitter events.EventEmitter,
	cfg Config,
	opts ...Option,
) (*Dispatcher, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if resched == nil {
		return nil, errors.New("rescheduler cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = def.GraceWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	d := &Dispatcher{
		backend: backend,
		resched: resched,
		locker:  locker,
		emitter: emitter,
		cfg:     cfg,
		now:     time.Now,
		retry:   store.DefaultRetryConfig(),
		logger:  slog.Default(),
		report:  func(error) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "dispatcher"))
	return d, nil
}

// Run ticks every TickInterval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		slog.Duration("tick_interval", d.cfg.TickInterval),
		slog.Duration("grace_window", d.cfg.GraceWindow))

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.Tick(ctx, d.now().UTC()); err != nil && ctx.Err() == nil {
				d.logger.Error("dispatch tick failed", slog.Any("error", err))
			}
		}
	}
}

// Tick runs one dispatch pass at now: due scheduled occurrences are
// dispatched, then pending occurrences whose grace window has passed are
// marked missed. The window runs from the later of due and dispatch time.
// A second Tick waits for the first to finish.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) (Result, error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	log := d.logger.With(slog.Time("tick", now))
	ctx = logger.WithLogger(ctx, log)
	var c counters

	due, err := d.dueBefore(ctx, domain.OccurrenceStatusScheduled, now)
	if err != nil {
		return c.result(), fmt.Errorf("failed to load due occurrences: %w", err)
	}
	if err := d.eachPatient(ctx, due, func(ctx context.Context, occ *domain.Occurrence) {
		d.dispatchOne(ctx, occ, now, &c)
	}); err != nil {
		return c.result(), err
	}

	cutoff := now.Add(-d.cfg.GraceWindow)
	pending, err := d.dueBefore(ctx, domain.OccurrenceStatusPendingConfirmation, cutoff)
	if err != nil {
		return c.result(), fmt.Errorf("failed to load expired occurrences: %w", err)
	}
	// late dispatches get the full grace window from when they went out
	expired := pending[:0:0]
	for _, occ := range pending {
		if !occ.GraceFrom().After(cutoff) {
			expired = append(expired, occ)
		}
	}
	if err := d.eachPatient(ctx, expired, func(ctx context.Context, occ *domain.Occurrence) {
		d.missOne(ctx, occ, now, &c)
	}); err != nil {
		return c.result(), err
	}

	res := c.result()
	if res != (Result{}) {
		log.Info("dispatch tick finished",
			slog.Int("dispatched", res.Dispatched),
			slog.Int("missed", res.Missed),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed))
	}
	return res, nil
}

func (d *Dispatcher) dueBefore(
	ctx context.Context,
	status domain.OccurrenceStatus,
	before time.Time,
) ([]*domain.Occurrence, error) {
	var out []*domain.Occurrence
	err := store.Retry(ctx, d.retry, func(ctx context.Context) error {
		var err error
		out, err = d.backend.Stores().Reminders.GetDueBefore(ctx, status, before, d.cfg.BatchSize)
		return err
	})
	d.report(err)
	return out, err
}

// eachPatient groups occurrences by patient and runs fn over each group in
// parallel, one occurrence at a time per patient in due order.
func (d *Dispatcher) eachPatient(
	ctx context.Context,
	occs []*domain.Occurrence,
	fn func(ctx context.Context, occ *domain.Occurrence),
) error {
	if len(occs) == 0 {
		return nil
	}

	var order []uuid.UUID
	groups := make(map[uuid.UUID][]*domain.Occurrence)
	for _, o := range occs {
		if _, ok := groups[o.PatientID]; !ok {
			order = append(order, o.PatientID)
		}
		groups[o.PatientID] = append(groups[o.PatientID], o)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, patientID := range order {
		group := groups[patientID]
		g.Go(func() error {
			for _, occ := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn(gctx, occ)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, occ *domain.Occurrence, now time.Time, c *counters) {
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("patient_id", occ.PatientID.String()),
		slog.String("occurrence_id", occ.ID.String()),
	)

	unlock := d.locker.Lock(occ.PatientID)
	defer unlock()

	var plan *domain.PlanItem
	err := store.Retry(ctx, d.retry, func(ctx context.Context) error {
		return d.backend.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
			err := tx.Reminders.CompareAndSwapStatus(ctx, occ.ID,
				domain.OccurrenceStatusScheduled, domain.OccurrenceStatusPendingConfirmation, now)
			if errors.Is(err, store.ErrStatusConflict) {
				return ErrDispatchSkipped
			}
			if err != nil {
				return err
			}
			plan, err = tx.Steps.GetPlanItem(ctx, occ.PlanItemID)
			return err
		})
	})
	switch {
	case errors.Is(err, ErrDispatchSkipped):
		c.skipped.Add(1)
		log.DebugContext(ctx, "dispatch skipped", slog.Any("error", err))
		return
	case err != nil:
		c.failed.Add(1)
		log.ErrorContext(ctx, "failed to dispatch occurrence", slog.Any("error", err))
		return
	}
	c.dispatched.Add(1)
	log.DebugContext(ctx, "occurrence dispatched", slog.Time("due_at", occ.DueAt))

	d.emit(ctx, log, events.TypeOccurrenceDispatched, occ, plan, nil)
}

func (d *Dispatcher) missOne(ctx context.Context, occ *domain.Occurrence, now time.Time, c *counters) {
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("patient_id", occ.PatientID.String()),
		slog.String("occurrence_id", occ.ID.String()),
	)

	unlock := d.locker.Lock(occ.PatientID)
	defer unlock()

	var (
		plan    *domain.PlanItem
		created []*domain.Occurrence
	)
	err := store.Retry(ctx, d.retry, func(ctx context.Context) error {
		return d.backend.RunInTx(ctx, func(ctx context.Context, tx store.Stores) error {
			err := tx.Reminders.CompareAndSwapStatus(ctx, occ.ID,
				domain.OccurrenceStatusPendingConfirmation, domain.OccurrenceStatusMissed, now)
			if errors.Is(err, store.ErrStatusConflict) {
				return ErrDispatchSkipped
			}
			if err != nil {
				return err
			}

			plan, err = tx.Steps.GetPlanItem(ctx, occ.PlanItemID)
			if err != nil {
				return fmt.Errorf("failed to load plan item: %w", err)
			}
			missed := *occ
			missed.Transition(domain.OccurrenceStatusMissed, now)
			created, err = d.resched.HandleMiss(ctx, tx, plan, &missed, now)
			return err
		})
	})
	switch {
	case errors.Is(err, ErrDispatchSkipped):
		c.skipped.Add(1)
		log.DebugContext(ctx, "miss skipped", slog.Any("error", err))
		return
	case err != nil:
		c.failed.Add(1)
		log.ErrorContext(ctx, "failed to mark occurrence missed", slog.Any("error", err))
		return
	}
	c.missed.Add(1)

	rescheduled := make([]time.Time, 0, len(created))
	for _, o := range created {
		rescheduled = append(rescheduled, o.DueAt)
	}
	d.emit(ctx, log, events.TypeOccurrenceMissed, occ, plan, rescheduled)
}

// emit publishes an occurrence event. Failures are logged: the occurrence
// is already in its new status and the grace window still applies.
func (d *Dispatcher) emit(
	ctx context.Context,
	log *slog.Logger,
	eventType string,
	occ *domain.Occurrence,
	plan *domain.PlanItem,
	rescheduled []time.Time,
) {
	payload := events.OccurrencePayload{
		OccurrenceID: occ.ID,
		PlanItemID:   occ.PlanItemID,
		DueAt:        occ.DueAt,
		Rescheduled:  rescheduled,
	}
	if plan != nil {
		payload.Description = plan.Description
	}

	event, err := events.NewEvent(eventType, occ.PatientID, payload)
	if err != nil {
		log.ErrorContext(ctx, "failed to build event", slog.String("event_type", eventType), slog.Any("error", err))
		return
	}
	if err := d.emitter.EmitEvent(ctx, event); err != nil {
		log.WarnContext(ctx, "event not fully handled",
			slog.String("event_type", eventType),
			slog.Any("error", err))
	}
}
