package db

import (
	"log"
	"sync"
	"time"

	"simpleserver/protocol"
)

const sinkQueueSize = 50

type sinkEntry struct {
	msg       protocol.Message
	timestamp time.Time
}

// MessageSink persists delivered messages asynchronously. Many session
// handlers feed it, a single background goroutine writes, so request
// goroutines never contend on storage I/O.
type MessageSink struct {
	db      *DB
	entries chan sinkEntry
	done    chan struct{}
	once    sync.Once
}

func NewMessageSink(database *DB) *MessageSink {
	s := &MessageSink{
		db:      database,
		entries: make(chan sinkEntry, sinkQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Save queues a message for persistence. Best effort: when the queue is
// full the message is dropped and logged, delivery is unaffected.
func (s *MessageSink) Save(msg protocol.Message) {
	select {
	case s.entries <- sinkEntry{msg: msg, timestamp: time.Now().UTC()}:
	default:
		log.Printf("Message sink queue full, dropping message from %s to %s", msg.SenderID, msg.ReceiverID)
	}
}

// Close stops accepting messages and waits for queued entries to be written.
func (s *MessageSink) Close() {
	s.once.Do(func() {
		close(s.entries)
	})
	<-s.done
}

func (s *MessageSink) run() {
	defer close(s.done)
	for entry := range s.entries {
		if err := s.db.SaveMessage(entry.msg, entry.timestamp); err != nil {
			log.Printf("Failed to save message from %s to %s: %v", entry.msg.SenderID, entry.msg.ReceiverID, err)
		}
	}
}
