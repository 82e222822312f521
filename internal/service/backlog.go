package service

import (
	"sync"

	"github.com/jengzang/records-tracks-go/internal/models"
)

// userBacklog hands each user's jobs to one goroutine at a time. A job whose
// user is already being served waits in that user's backlog instead of
// holding a worker goroutine.
type userBacklog struct {
	mu      sync.Mutex
	waiting map[int64][]models.Job // present while the user has a runner
}

func newUserBacklog() *userBacklog {
	return &userBacklog{waiting: make(map[int64][]models.Job)}
}

// claim makes the caller the user's runner and reports true, or parks job
// behind the current runner and reports false.
func (b *userBacklog) claim(job models.Job) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if queued, busy := b.waiting[job.UserID]; busy {
		b.waiting[job.UserID] = append(queued, job)
		return false
	}
	b.waiting[job.UserID] = nil
	return true
}

// next pops the user's next parked job. When none is left the runner's claim
// ends and ok is false.
func (b *userBacklog) next(userID int64) (job models.Job, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queued := b.waiting[userID]
	if len(queued) == 0 {
		delete(b.waiting, userID)
		return models.Job{}, false
	}
	b.waiting[userID] = queued[1:]
	return queued[0], true
}

// release ends the runner's claim and drops what was parked. Dropped jobs stay
// pending in the store and are requeued on the next start.
func (b *userBacklog) release(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.waiting[userID])
	delete(b.waiting, userID)
	return n
}
