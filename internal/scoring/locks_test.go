package scoring

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStudentLocksSerialiseSameStudent(t *testing.T) {
	locks := NewStudentLocks()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("s-1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.Len())
}

func TestStudentLocksIndependentStudents(t *testing.T) {
	locks := NewStudentLocks()
	unlockA := locks.Lock("s-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("s-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another student blocked")
	}
}

func TestStudentLocksUnlockIsIdempotent(t *testing.T) {
	locks := NewStudentLocks()
	unlock := locks.Lock("s-1")
	unlock()
	unlock()
	assert.Equal(t, 0, locks.Len())
}
