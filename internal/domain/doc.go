// Package domain defines the core entities of the reminder engine: the
// checklist and plan items extracted from a doctor's note, the schedules that
// govern plan items, and the concrete occurrences a patient is reminded about.
//
// Types in this package carry their own validation but perform no I/O.
package domain
