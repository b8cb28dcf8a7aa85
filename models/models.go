package models

import "time"

type User struct {
	ID       int64
	Username string
	Password string // bcrypt hash
}

// StoredMessage is a delivered message persisted by the message sink.
type StoredMessage struct {
	ID        int64
	Sender    string
	Recipient string
	Text      string
	Timestamp time.Time
}
