package coordinator

import (
	"sync"

	"github.com/google/uuid"
)

// stripeCount is the number of lock stripes; enough to keep contention low
// for typical workloads without one mutex per id.
const stripeCount = 256

// idLock is a striped lock keyed by object/relation id: writes (and
// write/read) to the same id are serialized across all three stores,
// while distinct ids proceed in parallel, per spec §5.
type idLock struct {
	stripes [stripeCount]sync.Mutex
}

func newIDLock() *idLock {
	return &idLock{}
}

func (l *idLock) stripe(id uuid.UUID) *sync.Mutex {
	var h uint32
	for _, b := range id {
		h = h*31 + uint32(b)
	}
	return &l.stripes[h%stripeCount]
}

// Lock acquires the stripe for id and returns the unlock function.
func (l *idLock) Lock(id uuid.UUID) func() {
	m := l.stripe(id)
	m.Lock()
	return m.Unlock
}
