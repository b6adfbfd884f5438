package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/domain/cadence"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
)

// Rescheduler decides which occurrences a plan item needs next. Every method
// works on the stores of the caller's transaction and returns the occurrences
// it inserted. Inserts skip due times that already have an unresolved
// occurrence, so repeating a call with the same inputs writes nothing.
type Rescheduler interface {
	// Seed inserts what is still due in now's period. When nothing remains
	// today the following day is seeded instead. A plan whose duration has run
	// out is marked completed.
	Seed(ctx context.Context, tx store.Stores, plan *domain.PlanItem, now time.Time) ([]*domain.Occurrence, error)

	// HandleMiss re-plans after missed was marked missed at now.
	//   - FixedTime: no compensation; the next day is seeded once the missed day is exhausted
	//   - Interval: the anchor is rebased to now and one occurrence is due at now+period
	//   - Frequency: the day's shortfall is spread over the rest of today's window;
	//     what cannot be made up is dropped and the next day gets its full count
	HandleMiss(
		ctx context.Context,
		tx store.Stores,
		plan *domain.PlanItem,
		missed *domain.Occurrence,
		now time.Time,
	) ([]*domain.Occurrence, error)

	// Advance schedules what follows a fulfillment: the next Interval
	// occurrence from the existing anchor, or the next day once today has no
	// unresolved occurrence left.
	Advance(
		ctx context.Context,
		tx store.Stores,
		plan *domain.PlanItem,
		fulfilled *domain.Occurrence,
		now time.Time,
	) ([]*domain.Occurrence, error)
}

type rescheduler struct {
	clock  cadence.Clock
	logger *slog.Logger
}

var _ Rescheduler = (*rescheduler)(nil)

// NewRescheduler creates a Rescheduler over the given clock.
func NewRescheduler(clock cadence.Clock, log *slog.Logger) Rescheduler {
	if clock == nil {
		clock = cadence.NewDefaultClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &rescheduler{
		clock:  clock,
		logger: log.With(slog.String("component", "rescheduler")),
	}
}

func (r *rescheduler) Seed(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	now time.Time,
) ([]*domain.Occurrence, error) {
	if !plan.IsActive() {
		return nil, nil
	}
	if plan.ExpiredAt(now) {
		return nil, r.complete(ctx, tx, plan, now)
	}

	if plan.Schedule.Kind == domain.ScheduleKindInterval {
		pending, err := r.hasUnresolved(ctx, tx, plan.ID)
		if err != nil || pending {
			return nil, err
		}
	}

	due, err := r.dueIn(ctx, tx, plan, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		if plan.Schedule.Kind == domain.ScheduleKindInterval {
			// the next interval falls after the plan ends
			return nil, r.complete(ctx, tx, plan, now)
		}
		return r.seedNextPeriod(ctx, tx, plan, now, now)
	}
	return r.insert(ctx, tx, plan, due, now)
}

func (r *rescheduler) HandleMiss(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	missed *domain.Occurrence,
	now time.Time,
) ([]*domain.Occurrence, error) {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("plan_item_id", plan.ID.String()),
		slog.String("occurrence_id", missed.ID.String()),
		slog.String("kind", string(plan.Schedule.Kind)),
	)
	if !plan.IsActive() {
		log.DebugContext(ctx, "plan item no longer active, nothing to re-plan")
		return nil, nil
	}

	switch plan.Schedule.Kind {
	case domain.ScheduleKindFixedTime:
		return r.afterDay(ctx, tx, plan, missed, now)

	case domain.ScheduleKindInterval:
		plan.Schedule.Anchor = now.UTC()
		plan.UpdatedAt = now.UTC()
		if err := tx.Steps.UpdatePlanItem(ctx, plan); err != nil {
			return nil, fmt.Errorf("failed to rebase interval anchor: %w", err)
		}
		next := now.Add(plan.Schedule.Period)
		if plan.ExpiredAt(next) {
			return nil, r.complete(ctx, tx, plan, now)
		}
		log.InfoContext(ctx, "interval rebased after miss", slog.Time("next_due_at", next))
		return r.insert(ctx, tx, plan, []time.Time{next}, now)

	case domain.ScheduleKindFrequency:
		dayStart, dayEnd := r.clock.Day(now)
		if missedStart, _ := r.clock.Day(missed.DueAt); missedStart.Before(dayStart) {
			log.DebugContext(ctx, "missed day already over, no compensation")
			return r.afterDay(ctx, tx, plan, missed, now)
		}
		today, err := tx.Reminders.ListByPlanItem(ctx, plan.ID, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to load today's occurrences: %w", err)
		}
		fulfilled, unresolved := 0, 0
		for _, o := range today {
			switch {
			case o.Status == domain.OccurrenceStatusFulfilled:
				fulfilled++
			case !o.Status.Resolved():
				unresolved++
			}
		}
		shortfall := plan.Schedule.CountPerDay - fulfilled - unresolved
		if shortfall <= 0 {
			log.DebugContext(ctx, "no frequency shortfall",
				slog.Int("fulfilled", fulfilled),
				slog.Int("unresolved", unresolved))
			return r.afterDay(ctx, tx, plan, missed, now)
		}
		start, end := r.clock.Window(now)
		due := r.beforeEnd(plan, r.clock.Frequency(shortfall, start, end))
		if len(due) == 0 {
			log.InfoContext(ctx, "shortfall cannot be made up today", slog.Int("shortfall", shortfall))
			return r.afterDay(ctx, tx, plan, missed, now)
		}
		log.InfoContext(ctx, "compensating frequency shortfall", slog.Int("shortfall", len(due)))
		return r.insert(ctx, tx, plan, due, now)

	default:
		return nil, cadence.ErrUnknownKind
	}
}

func (r *rescheduler) Advance(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	fulfilled *domain.Occurrence,
	now time.Time,
) ([]*domain.Occurrence, error) {
	if !plan.IsActive() {
		return nil, nil
	}

	if plan.Schedule.Kind != domain.ScheduleKindInterval {
		return r.afterDay(ctx, tx, plan, fulfilled, now)
	}

	pending, err := r.hasUnresolved(ctx, tx, plan.ID)
	if err != nil || pending {
		return nil, err
	}
	ref := now
	if fulfilled.DueAt.After(ref) {
		ref = fulfilled.DueAt
	}
	next, err := r.clock.NextInterval(plan.Schedule, ref)
	if err != nil {
		return nil, err
	}
	if !next.After(fulfilled.DueAt) {
		next = next.Add(plan.Schedule.Period)
	}
	if plan.ExpiredAt(next) {
		return nil, r.complete(ctx, tx, plan, now)
	}
	return r.insert(ctx, tx, plan, []time.Time{next}, now)
}

// afterDay schedules past resolved's day once that day has no unresolved
// occurrence left. If now is already on a later day, what is still due today
// comes first.
func (r *rescheduler) afterDay(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	resolved *domain.Occurrence,
	now time.Time,
) ([]*domain.Occurrence, error) {
	dayStart, dayEnd := r.clock.Day(resolved.DueAt)
	day, err := tx.Reminders.ListByPlanItem(ctx, plan.ID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load the day's occurrences: %w", err)
	}
	for _, o := range day {
		if !o.Status.Resolved() {
			return nil, nil
		}
	}

	if todayStart, _ := r.clock.Day(now); dayStart.Before(todayStart) {
		pending, err := r.hasUnresolved(ctx, tx, plan.ID)
		if err != nil || pending {
			return nil, err
		}
		return r.Seed(ctx, tx, plan, now)
	}

	ref := now
	if resolved.DueAt.After(ref) {
		ref = resolved.DueAt
	}
	return r.seedNextPeriod(ctx, tx, plan, ref, now)
}

// seedNextPeriod seeds the day after ref's.
func (r *rescheduler) seedNextPeriod(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	ref, now time.Time,
) ([]*domain.Occurrence, error) {
	next := r.clock.NextPeriodStart(ref)
	if plan.ExpiredAt(next) {
		return nil, r.complete(ctx, tx, plan, now)
	}
	due, err := r.dueIn(ctx, tx, plan, next)
	if err != nil {
		return nil, err
	}
	return r.insert(ctx, tx, plan, due, now)
}

// dueIn returns what the schedule still owes in ref's period, cut at the
// plan's end.
func (r *rescheduler) dueIn(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	ref time.Time,
) ([]time.Time, error) {
	var history []*domain.Occurrence
	if plan.Schedule.Kind == domain.ScheduleKindFrequency {
		dayStart, dayEnd := r.clock.Day(ref)
		var err error
		history, err = tx.Reminders.ListByPlanItem(ctx, plan.ID, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to load occurrence history: %w", err)
		}
	}

	due, err := r.clock.Remaining(plan.Schedule, ref, history)
	if err != nil {
		return nil, err
	}
	return r.beforeEnd(plan, due), nil
}

func (r *rescheduler) beforeEnd(plan *domain.PlanItem, due []time.Time) []time.Time {
	end := plan.EndsAt()
	if end.IsZero() {
		return due
	}
	kept := due[:0:0]
	for _, t := range due {
		if t.Before(end) {
			kept = append(kept, t)
		}
	}
	return kept
}

// insert stores one scheduled occurrence per due time, skipping due times the
// plan already has an unresolved occurrence for. Due times are compared at
// microsecond precision, the finest postgres keeps.
func (r *rescheduler) insert(
	ctx context.Context,
	tx store.Stores,
	plan *domain.PlanItem,
	due []time.Time,
	now time.Time,
) ([]*domain.Occurrence, error) {
	if len(due) == 0 {
		return nil, nil
	}

	first, last := due[0].Truncate(time.Microsecond), due[len(due)-1]
	existing, err := tx.Reminders.ListByPlanItem(ctx, plan.ID, first, last.Add(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing occurrences: %w", err)
	}
	taken := make(map[int64]bool, len(existing))
	for _, o := range existing {
		if !o.Status.Resolved() {
			taken[o.DueAt.Truncate(time.Microsecond).UnixNano()] = true
		}
	}

	var created []*domain.Occurrence
	for _, t := range due {
		key := t.Truncate(time.Microsecond).UnixNano()
		if taken[key] {
			continue
		}
		taken[key] = true
		created = append(created, domain.NewOccurrence(plan, t, now))
	}
	if len(created) == 0 {
		return nil, nil
	}
	if err := tx.Reminders.Put(ctx, created...); err != nil {
		return nil, fmt.Errorf("failed to store occurrences: %w", err)
	}

	logger.FromContextOrDefault(ctx, r.logger).DebugContext(ctx, "occurrences scheduled",
		slog.String("plan_item_id", plan.ID.String()),
		slog.Int("count", len(created)),
		slog.Time("first_due_at", created[0].DueAt))
	return created, nil
}

func (r *rescheduler) hasUnresolved(ctx context.Context, tx store.Stores, planItemID uuid.UUID) (bool, error) {
	_, err := tx.Reminders.GetNext(ctx, planItemID)
	switch {
	case err == nil:
		return true, nil
	case store.IsNotFoundError(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up next occurrence: %w", err)
	}
}

func (r *rescheduler) complete(ctx context.Context, tx store.Stores, plan *domain.PlanItem, now time.Time) error {
	plan.Status = domain.PlanStatusCompleted
	plan.UpdatedAt = now.UTC()
	if err := tx.Steps.UpdatePlanItem(ctx, plan); err != nil {
		return fmt.Errorf("failed to complete plan item: %w", err)
	}
	logger.FromContextOrDefault(ctx, r.logger).InfoContext(ctx, "plan item ran its course",
		slog.String("plan_item_id", plan.ID.String()))
	return nil
}
