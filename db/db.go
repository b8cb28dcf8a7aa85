package db

import (
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"simpleserver/models"
	"simpleserver/protocol"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrUserNotFound  = errors.New("user not found")
)

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient, timestamp)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// CreateUser adds a new credential record. The username must be unused.
func (db *DB) CreateUser(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	exists, err := db.UserExists(username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUsernameTaken
	}

	_, err = sq.Insert("users").
		Columns("username", "password").
		Values(username, string(hashed)).
		RunWith(db.conn).
		Exec()
	if err != nil {
		// The UNIQUE constraint closes the check-then-insert race.
		taken, existsErr := db.UserExists(username)
		if existsErr == nil && taken {
			return ErrUsernameTaken
		}
	}
	return err
}

// Authenticate reports whether the username/password pair matches a
// registered credential record. An unknown username is not an error.
func (db *DB) Authenticate(username, password string) (bool, error) {
	var hashedPassword string
	err := sq.Select("password").
		From("users").
		Where(sq.Eq{"username": username}).
		RunWith(db.conn).
		QueryRow().
		Scan(&hashedPassword)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil, nil
}

func (db *DB) UserExists(username string) (bool, error) {
	var count int
	err := sq.Select("COUNT(*)").
		From("users").
		Where(sq.Eq{"username": username}).
		RunWith(db.conn).
		QueryRow().
		Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveMessage persists a delivered message. Called by the message sink,
// never from request goroutines.
func (db *DB) SaveMessage(msg protocol.Message, timestamp time.Time) error {
	_, err := sq.Insert("messages").
		Columns("sender", "recipient", "text", "timestamp").
		Values(msg.SenderID, msg.ReceiverID, msg.Message, timestamp.UTC().Format(time.RFC3339)).
		RunWith(db.conn).
		Exec()
	return err
}

// Messages returns all persisted messages for a recipient in save order.
func (db *DB) Messages(recipient string) ([]models.StoredMessage, error) {
	rows, err := sq.Select("id", "sender", "recipient", "text", "timestamp").
		From("messages").
		Where(sq.Eq{"recipient": recipient}).
		OrderBy("id ASC").
		RunWith(db.conn).
		Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.StoredMessage
	for rows.Next() {
		var m models.StoredMessage
		var timestampStr string
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Text, &timestampStr); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, err
		}
		m.Timestamp = timestamp

		messages = append(messages, m)
	}

	return messages, rows.Err()
}
