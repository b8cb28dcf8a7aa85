package server

import (
	"errors"
	"net"
	"sync"
	"testing"

	"simpleserver/protocol"
)

func testConn(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server
}

func TestDirectoryRegisterAndLookup(t *testing.T) {
	mailbox := NewMailbox()
	directory := NewDirectory(mailbox)
	conn := testConn(t)

	if err := directory.Register(conn, "alice"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	got, ok := directory.Lookup("alice")
	if !ok || got != conn {
		t.Error("Expected lookup to return the registered connection")
	}

	username, ok := directory.LookupByConnection(conn)
	if !ok || username != "alice" {
		t.Errorf("Expected reverse lookup to return alice, got %q", username)
	}
}

func TestDirectoryRejectsSecondLogin(t *testing.T) {
	directory := NewDirectory(NewMailbox())
	first := testConn(t)
	second := testConn(t)

	if err := directory.Register(first, "alice"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// The second connection must be rejected, not overwrite the first.
	if err := directory.Register(second, "alice"); !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Errorf("Expected ErrAlreadyLoggedIn, got %v", err)
	}

	got, _ := directory.Lookup("alice")
	if got != first {
		t.Error("Expected the first connection to keep the username")
	}
}

func TestDirectoryMailboxLockstep(t *testing.T) {
	mailbox := NewMailbox()
	directory := NewDirectory(mailbox)
	conn := testConn(t)

	if err := directory.Register(conn, "alice"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	msg := protocol.Message{ReceiverID: "alice", SenderID: "bob", Message: "hi"}
	if err := mailbox.Enqueue(msg); err != nil {
		t.Fatalf("Expected mailbox queue to exist after register, got %v", err)
	}

	directory.Remove(conn)

	if _, ok := directory.Lookup("alice"); ok {
		t.Error("Expected directory entry to be gone after remove")
	}
	if err := mailbox.Enqueue(msg); !errors.Is(err, ErrRecipientUnknown) {
		t.Errorf("Expected mailbox queue to be gone after remove, got %v", err)
	}
}

func TestDirectoryRemoveUnknownConnection(t *testing.T) {
	directory := NewDirectory(NewMailbox())
	conn := testConn(t)

	// Disconnect during the unauthenticated phase: nothing to detach.
	directory.Remove(conn)

	if directory.Count() != 0 {
		t.Errorf("Expected empty directory, got %d entries", directory.Count())
	}
}

func TestDirectoryConcurrentRegisterSingleWinner(t *testing.T) {
	directory := NewDirectory(NewMailbox())

	const attempts = 16
	conns := make([]net.Conn, attempts)
	for i := range conns {
		conns[i] = testConn(t)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = directory.Register(conns[i], "carol")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrAlreadyLoggedIn) {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestDirectoryOnline(t *testing.T) {
	directory := NewDirectory(NewMailbox())

	if err := directory.Register(testConn(t), "alice"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if err := directory.Register(testConn(t), "bob"); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	users := directory.Online()
	if len(users) != 2 {
		t.Fatalf("Expected 2 online users, got %d", len(users))
	}
	if directory.Count() != 2 {
		t.Errorf("Expected count 2, got %d", directory.Count())
	}
}
