// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing scheduling rules to remain
// independent of specific database technologies or persistence details.
//
// Two stores exist: ActionableStepStore keeps checklist and plan items,
// ReminderStateStore keeps occurrences and their lifecycle. Both are handed
// out together as Stores so a Transactor can run a unit of work against
// transaction-bound copies of each.
package store
