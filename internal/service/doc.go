// Package service contains the application use cases of the reminder engine.
// It orchestrates domain objects, the cadence clock and the stores (defined in
// internal/store) to fulfill note submission, check-in and re-planning.
//
// Key components:
//
// 1. StepService:
//   - Supersedes a patient's previous note result and persists the new one
//   - Lists a patient's active checklist and plan
//
// 2. CheckInService:
//   - Records fulfillment of an occurrence or completion of a checklist item
//   - Answers "when is this plan item due next"
//
// 3. Rescheduler:
//   - Seeds occurrences for new plan items and for each following day
//   - Re-plans after a miss according to the schedule kind
//
// 4. PatientLocker:
//   - Serialises all state changes of one patient within the process
//
// Every write happens inside a store transaction run with store.Retry, so
// transient failures are retried with bounded backoff. When the budget runs out
// the caller receives ErrUnavailable.
package service
