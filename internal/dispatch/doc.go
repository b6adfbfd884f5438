// Package dispatch drives occurrences through time.
//
// A Dispatcher ticks on a fixed interval. Each tick moves due occurrences from
// scheduled to pending_confirmation and announces them with an
// occurrence.dispatched event, which the notification pipeline turns into a
// reminder. Occurrences left pending past the grace window are marked missed
// and handed to the rescheduler.
//
// Occurrences are grouped by patient. Groups run in parallel up to the
// configured concurrency; within a group, occurrences are handled one at a
// time under the patient's lock. Every status change is a compare-and-swap,
// so a check-in racing the dispatcher wins or loses cleanly.
package dispatch
