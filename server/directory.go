package server

import (
	"errors"
	"net"
	"sync"
)

var ErrAlreadyLoggedIn = errors.New("user already logged in")

// Directory is the single source of truth for who is online. It maps live
// connections to usernames and keeps the mailbox in lockstep: a username
// has a directory entry if and only if it has a mailbox queue. Register
// and Remove maintain both under the directory lock, so concurrent logins
// for the same username see the pairing as atomic.
type Directory struct {
	mu      sync.RWMutex
	byUser  map[string]net.Conn
	byConn  map[net.Conn]string
	mailbox *Mailbox
}

func NewDirectory(mailbox *Mailbox) *Directory {
	return &Directory{
		byUser:  make(map[string]net.Conn),
		byConn:  make(map[net.Conn]string),
		mailbox: mailbox,
	}
}

// Register associates the connection with the username and creates its
// mailbox queue. Exactly one of several concurrent registrations for the
// same username wins; the rest get ErrAlreadyLoggedIn.
func (d *Directory) Register(conn net.Conn, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byUser[username]; ok && existing != conn {
		return ErrAlreadyLoggedIn
	}

	d.byUser[username] = conn
	d.byConn[conn] = username
	d.mailbox.AddRecipient(username)
	return nil
}

func (d *Directory) Lookup(username string) (net.Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.byUser[username]
	return conn, ok
}

func (d *Directory) LookupByConnection(conn net.Conn) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	username, ok := d.byConn[conn]
	return username, ok
}

// Remove detaches the connection and drops its mailbox queue. Safe to
// call for connections that never logged in.
func (d *Directory) Remove(conn net.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	username, ok := d.byConn[conn]
	if !ok {
		return
	}

	delete(d.byConn, conn)
	delete(d.byUser, username)
	d.mailbox.RemoveRecipient(username)
}

// Online returns the usernames of all logged-in users.
func (d *Directory) Online() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]string, 0, len(d.byUser))
	for username := range d.byUser {
		users = append(users, username)
	}
	return users
}

// Snapshot returns a copy of the current username to connection mapping.
func (d *Directory) Snapshot() map[string]net.Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := make(map[string]net.Conn, len(d.byUser))
	for username, conn := range d.byUser {
		entries[username] = conn
	}
	return entries
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}
