package server

import (
	"errors"
	"sync"

	"simpleserver/protocol"
)

// MailboxCapacity is the maximum number of pending messages per user.
const MailboxCapacity = 5

var (
	ErrRecipientUnknown = errors.New("recipient is not registered in the mailbox")
	ErrMailboxFull      = errors.New("client mailbox is full")
	ErrMailboxEmpty     = errors.New("mailbox is empty")
)

// Mailbox holds a bounded FIFO queue of undelivered messages per user.
// A queue exists exactly while its user is online; the absence of a queue
// is the authoritative signal that the recipient is unreachable.
type Mailbox struct {
	mu     sync.RWMutex
	queues map[string][]protocol.Message
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		queues: make(map[string][]protocol.Message),
	}
}

// AddRecipient creates a fresh empty queue for username. Re-adding
// replaces any stale queue; it is only called at login, after a prior
// disconnect already removed the old one.
func (m *Mailbox) AddRecipient(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[username] = nil
}

// Enqueue appends the message to its receiver's queue. A full queue
// rejects the message unchanged, it is never dropped silently or evicted.
func (m *Mailbox) Enqueue(msg protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue, ok := m.queues[msg.ReceiverID]
	if !ok {
		return ErrRecipientUnknown
	}
	if len(queue) >= MailboxCapacity {
		return ErrMailboxFull
	}

	m.queues[msg.ReceiverID] = append(queue, msg)
	return nil
}

// Dequeue removes and returns the oldest pending message for username.
// This is the only read path: a dequeued message cannot be read again.
func (m *Mailbox) Dequeue(username string) (protocol.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.queues[username]
	if len(queue) == 0 {
		return protocol.Message{}, ErrMailboxEmpty
	}

	msg := queue[0]
	m.queues[username] = queue[1:]
	return msg, nil
}

// RemoveRecipient discards the queue and any unconsumed messages.
func (m *Mailbox) RemoveRecipient(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, username)
}

// Pending returns the number of queued messages for username.
func (m *Mailbox) Pending(username string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues[username])
}
