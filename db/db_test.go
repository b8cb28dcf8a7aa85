package db

import (
	"errors"
	"os"
	"testing"
	"time"

	"simpleserver/protocol"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	os.Remove(tmpfile.Name())

	database, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tmpfile.Name())
	}

	return database, cleanup
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "p1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	valid, err := database.Authenticate("alice", "p1")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !valid {
		t.Error("Expected valid credentials to authenticate")
	}

	valid, err = database.Authenticate("alice", "wrong")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if valid {
		t.Error("Expected wrong password to be rejected")
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	valid, err := database.Authenticate("nobody", "p1")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if valid {
		t.Error("Expected unknown user to be rejected")
	}
}

func TestCreateUserTaken(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "p1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	err := database.CreateUser("alice", "p2")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Expected ErrUsernameTaken, got %v", err)
	}
}

func TestUserExists(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	exists, err := database.UserExists("alice")
	if err != nil {
		t.Fatalf("UserExists failed: %v", err)
	}
	if exists {
		t.Error("Expected alice to not exist yet")
	}

	if err := database.CreateUser("alice", "p1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	exists, err = database.UserExists("alice")
	if err != nil {
		t.Fatalf("UserExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected alice to exist")
	}
}

func TestSaveAndReadMessages(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	first := protocol.Message{ReceiverID: "alice", SenderID: "bob", Message: "first"}
	second := protocol.Message{ReceiverID: "alice", SenderID: "bob", Message: "second"}

	if err := database.SaveMessage(first, time.Now()); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}
	if err := database.SaveMessage(second, time.Now()); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}

	messages, err := database.Messages("alice")
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Text != "first" || messages[1].Text != "second" {
		t.Errorf("Expected messages in save order, got %q then %q", messages[0].Text, messages[1].Text)
	}
	if messages[0].Sender != "bob" || messages[0].Recipient != "alice" {
		t.Errorf("Unexpected message fields: %+v", messages[0])
	}
}

func TestMessageSink(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	sink := NewMessageSink(database)

	for i := 0; i < 3; i++ {
		sink.Save(protocol.Message{ReceiverID: "alice", SenderID: "bob", Message: "hi"})
	}

	// Close drains the queue before returning.
	sink.Close()

	messages, err := database.Messages("alice")
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}
	if len(messages) != 3 {
		t.Errorf("Expected 3 persisted messages, got %d", len(messages))
	}
}
