package server

import (
	"errors"
	"log"
	"time"

	"simpleserver/db"
	"simpleserver/protocol"
)

type command struct {
	requiresAuth bool
	handle       func(*Session, *protocol.Request)
}

// commandTable maps request names to handlers. Unknown requests fall
// through to the explicit "unknown server command" response in dispatch.
func (s *Server) commandTable() map[string]command {
	return map[string]command{
		"login":    {false, s.handleLogin},
		"register": {false, s.handleRegister},
		"message":  {true, s.handleMessage},
		"open":     {true, s.handleOpen},
		"ping":     {false, s.handlePing},
		"uptime":   {false, s.handleUptime},
		"info":     {false, s.handleInfo},
		"help":     {false, s.handleHelp},
		"stop":     {false, s.handleStop},
	}
}

// login registers the session in the directory, which creates the mailbox
// queue under the same lock. On success the session becomes authenticated.
func (s *Server) login(session *Session, username string) error {
	if err := s.directory.Register(session.Conn, username); err != nil {
		return err
	}
	session.Username = username
	session.LoggedIn = true
	return nil
}

func (s *Server) handleLogin(session *Session, req *protocol.Request) {
	if session.LoggedIn {
		s.send(session, protocol.Error("Already logged in"))
		return
	}

	if req.LoginUsername == "" || req.LoginPassword == "" {
		s.send(session, protocol.Error("Message not formatted properly. check API docs"))
		return
	}

	valid, err := s.db.Authenticate(req.LoginUsername, req.LoginPassword)
	if err != nil {
		log.Printf("Login error for %s: %v", req.LoginUsername, err)
		s.send(session, protocol.Error("Internal error"))
		return
	}

	if !valid {
		s.send(session, protocol.Error("user not found"))
		return
	}

	if err := s.login(session, req.LoginUsername); err != nil {
		s.send(session, protocol.Error("user already logged in"))
		return
	}

	resp := protocol.Success("Successfully Logged In")
	resp.LoginUsername = req.LoginUsername
	resp.LoginPassword = req.LoginPassword
	s.send(session, resp)
	log.Printf("Client %s logged in (session %s)", session.Username, session.ID)
}

func (s *Server) handleRegister(session *Session, req *protocol.Request) {
	if session.LoggedIn {
		s.send(session, protocol.Error("Already logged in"))
		return
	}

	if req.RegisterUsername == "" || req.RegisterPassword == "" {
		s.send(session, protocol.Error("Error during registration, check API docs"))
		return
	}

	err := s.db.CreateUser(req.RegisterUsername, req.RegisterPassword)
	if errors.Is(err, db.ErrUsernameTaken) {
		s.send(session, protocol.Error("User already registered with this username"))
		return
	}
	if err != nil {
		log.Printf("Register error for %s: %v", req.RegisterUsername, err)
		s.send(session, protocol.Error("Internal error"))
		return
	}

	// Registration immediately performs the login step.
	if err := s.login(session, req.RegisterUsername); err != nil {
		log.Printf("Client %s registered but unable to login: %v", req.RegisterUsername, err)
		s.send(session, protocol.Error("user registered but unable to login"))
		return
	}

	resp := protocol.Success("Successfully registered and logged in as new user")
	resp.RegisterUsername = req.RegisterUsername
	resp.RegisterPassword = req.RegisterPassword
	s.send(session, resp)
	log.Printf("Client %s registered (session %s)", session.Username, session.ID)
}

func (s *Server) handleMessage(session *Session, req *protocol.Request) {
	if req.MessageObject == nil {
		s.send(session, protocol.Error("The server could not parse this message"))
		return
	}

	msg := *req.MessageObject
	if msg.SenderID != session.Username {
		log.Printf("Session %s claimed sender %q but is logged in as %q", session.ID, msg.SenderID, session.Username)
		s.send(session, protocol.Error("Claimed sender does not match session user"))
		return
	}

	switch err := s.mailbox.Enqueue(msg); {
	case errors.Is(err, ErrRecipientUnknown):
		s.send(session, protocol.Error("Recipient is not logged in or registered"))
	case errors.Is(err, ErrMailboxFull):
		s.send(session, protocol.Error("Client Mailbox is full"))
	case err != nil:
		log.Printf("Message error from %s: %v", session.Username, err)
		s.send(session, protocol.Error("Internal error"))
	default:
		s.sink.Save(msg)
		s.send(session, protocol.Success("Message sent successfully"))
	}
}

func (s *Server) handleOpen(session *Session, req *protocol.Request) {
	msg, err := s.mailbox.Dequeue(session.Username)
	if errors.Is(err, ErrMailboxEmpty) {
		// An empty mailbox is a normal condition, not a failure.
		s.send(session, protocol.Success("No new messages"))
		return
	}

	resp := protocol.Success("New message")
	resp.MessageObject = &msg
	s.send(session, resp)
}

func (s *Server) handlePing(session *Session, req *protocol.Request) {
	s.send(session, protocol.Success("PONG"))
}

func (s *Server) handleUptime(session *Session, req *protocol.Request) {
	resp := protocol.Success("Server uptime command")
	resp.Seconds = int64(time.Since(s.startup).Seconds())
	s.send(session, resp)
}

func (s *Server) handleInfo(session *Session, req *protocol.Request) {
	resp := protocol.Success("info request")
	resp.ServerVersion = Version
	resp.CreationDate = s.startup.Format("2006-01-02")
	s.send(session, resp)
}

func (s *Server) handleHelp(session *Session, req *protocol.Request) {
	resp := protocol.Success("available commands")
	resp.Commands = []string{
		"help",
		"info",
		"ping",
		"uptime",
		"message (username) (message of any length)",
		"open",
		"login (username) (password)",
		"register (username) (password)",
		"stop",
	}
	s.send(session, resp)
}

// handleStop acknowledges a voluntary disconnect. The read loop exits
// after this response and the deferred cleanup tears the session down.
func (s *Server) handleStop(session *Session, req *protocol.Request) {
	s.send(session, protocol.Success("Ending connection"))
}
