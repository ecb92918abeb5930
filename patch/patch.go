// Package patch replaces function-typed operations on a connector's
// capability sets.
//
// A capability set is a struct whose fields are functions; callers holding a
// pointer to it see a replacement on their next call. Apply records the
// value it overwrote in an optional Journal so the surrounding test
// lifecycle can put everything back.
package patch

import "sync"

// Apply stores replacement in *target. When j is non-nil the previous value
// is recorded and can be restored with j.Restore.
func Apply[F any](j *Journal, target *F, replacement F) {
	previous := *target
	*target = replacement
	if j != nil {
		j.record(func() { *target = previous })
	}
}

// Journal remembers every replaced field in application order.
type Journal struct {
	mu       sync.Mutex
	restores []func()
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) record(restore func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.restores = append(j.restores, restore)
}

// Len reports how many replacements are pending restoration.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.restores)
}

// Restore undoes every recorded replacement, newest first, and empties the
// journal.
func (j *Journal) Restore() {
	j.mu.Lock()
	restores := j.restores
	j.restores = nil
	j.mu.Unlock()

	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
}
