package gqlwsclient

import (
	"sync"

	"github.com/eapache/queue"
)

type command interface{}

type cmdSubscribe struct{ reg *registration }

// cmdUnsubscribe names the registration itself, ids may be reused
type cmdUnsubscribe struct{ reg *registration }

type cmdClose struct{}

// mailbox hands commands from callers to the session loop without blocking
// them. wake holds at most one pending signal.
type mailbox struct {
	lock   sync.Mutex
	queue  *queue.Queue
	wake   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{queue: queue.New(), wake: make(chan struct{}, 1)}
}

// push returns false once the mailbox is closed
func (m *mailbox) push(cmd command) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return false
	}
	m.queue.Add(cmd)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []command {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.drainLocked()
}

// close rejects further pushes and returns whatever was left
func (m *mailbox) close() []command {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	return m.drainLocked()
}

func (m *mailbox) drainLocked() []command {
	cmds := make([]command, 0, m.queue.Length())
	for m.queue.Length() > 0 {
		cmds = append(cmds, m.queue.Remove())
	}
	return cmds
}
