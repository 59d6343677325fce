package scoring

import "sync"

// StudentLocks hands out one mutex per student. Ledger updates for the same
// student serialise; different students never wait on each other. The table
// lock only guards bookkeeping and is never held while a student lock is waited on.
type StudentLocks struct {
	mu    sync.Mutex
	locks map[string]*studentLock
}

type studentLock struct {
	mu   sync.Mutex
	refs int
}

// NewStudentLocks constructs an empty lock table.
func NewStudentLocks() *StudentLocks {
	return &StudentLocks{locks: make(map[string]*studentLock)}
}

// Lock blocks until the student's lock is held and returns its release func.
func (l *StudentLocks) Lock(studentID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[studentID]
	if !ok {
		entry = &studentLock{}
		l.locks[studentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, studentID)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of students with a held or awaited lock.
func (l *StudentLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
