package service

import (
	"sync"

	"github.com/google/uuid"
)

// PatientLocker is a keyed mutex: one lock per patient, created on demand and
// dropped when its last holder or waiter releases it.
type PatientLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*patientLock
}

type patientLock struct {
	mu   sync.Mutex
	refs int
}

// NewPatientLocker creates an empty locker.
func NewPatientLocker() *PatientLocker {
	return &PatientLocker{locks: make(map[uuid.UUID]*patientLock)}
}

// Lock blocks until the patient's lock is held and returns the function that
// releases it.
func (l *PatientLocker) Lock(patientID uuid.UUID) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[patientID]
	if !ok {
		pl = &patientLock{}
		l.locks[patientID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pl.mu.Unlock()

			l.mu.Lock()
			pl.refs--
			if pl.refs == 0 {
				delete(l.locks, patientID)
			}
			l.mu.Unlock()
		})
	}
}

// WithLock runs fn while holding the patient's lock.
func (l *PatientLocker) WithLock(patientID uuid.UUID, fn func() error) error {
	unlock := l.Lock(patientID)
	defer unlock()
	return fn()
}

// size reports how many patients currently have a lock entry.
func (l *PatientLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
