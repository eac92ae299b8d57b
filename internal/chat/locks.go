package chat

import "sync"

// roomLocks serializes persistence and fan-out per conversation so that
// broadcast order matches the order writes were accepted.
type roomLocks struct {
	mu    sync.Mutex
	locks map[int64]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[int64]*roomLock)}
}

func (l *roomLocks) lock(conversationID int64) func() {
	l.mu.Lock()
	rl, ok := l.locks[conversationID]
	if !ok {
		rl = &roomLock{}
		l.locks[conversationID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}
