package server

import (
	"bufio"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"simpleserver/db"
	"simpleserver/protocol"
)

const Version = "1.0.0"

type Server struct {
	db        *db.DB
	sink      *db.MessageSink
	config    *ServerConfig
	mailbox   *Mailbox
	directory *Directory
	commands  map[string]command
	startup   time.Time
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session is the per-connection protocol state. It is owned by the
// connection's handler goroutine and never shared.
type Session struct {
	ID        string
	Conn      net.Conn
	Username  string
	Authority string
	LoggedIn  bool
}

func New(database *db.DB, sink *db.MessageSink, config *ServerConfig) *Server {
	mailbox := NewMailbox()

	s := &Server{
		db:        database,
		sink:      sink,
		config:    config,
		mailbox:   mailbox,
		directory: NewDirectory(mailbox),
		startup:   time.Now(),
	}
	s.commands = s.commandTable()
	return s
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	defer listener.Close()

	log.Printf("Server started on port %d", s.config.Port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	session := &Session{
		ID:        uuid.NewString(),
		Conn:      conn,
		Authority: "USER",
	}

	remoteAddr := conn.RemoteAddr().String()
	log.Printf("New client connected from %s (session %s)", remoteAddr, session.ID)

	// Cleanup runs exactly once, whatever ends the loop: protocol stop,
	// read error, or idle timeout. Remove drops the directory entry and
	// the mailbox queue together.
	defer func() {
		s.directory.Remove(conn)
		conn.Close()
		if session.LoggedIn {
			log.Printf("Client %s disconnected from %s", session.Username, remoteAddr)
		} else {
			log.Printf("Client disconnected from %s", remoteAddr)
		}
	}()

	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				log.Printf("Client from %s idle for %v, closing", remoteAddr, s.config.ReadTimeout)
				break
			}
			if err != io.EOF && !strings.Contains(err.Error(), "use of closed network connection") {
				log.Printf("Error reading from %s: %v", remoteAddr, err)
			}
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		req, err := protocol.ParseRequest(line)
		if err != nil {
			// Malformed input is not fatal, the client may try again.
			s.send(session, protocol.Error("The server could not parse this message"))
			continue
		}

		s.dispatch(session, req)

		if req.Request == "stop" {
			return
		}
	}
}

func (s *Server) dispatch(session *Session, req *protocol.Request) {
	cmd, ok := s.commands[req.Request]
	if !ok {
		s.send(session, protocol.Error("unknown server command"))
		return
	}

	if cmd.requiresAuth {
		if !session.LoggedIn {
			s.send(session, protocol.Error("Register or login to query the server"))
			return
		}
		if !s.verifyClaimedIdentity(session, req) {
			return
		}
	}

	cmd.handle(session, req)
}

// verifyClaimedIdentity checks the identity descriptor clients resend on
// requests against the server-side session. The descriptor is never
// trusted on its own.
func (s *Server) verifyClaimedIdentity(session *Session, req *protocol.Request) bool {
	if req.User == "" {
		return true
	}

	user, err := req.ParseUser()
	if err != nil {
		s.send(session, protocol.Error("The server could not parse this message"))
		return false
	}

	if user.Username != session.Username {
		log.Printf("Session %s claimed identity %q but is logged in as %q", session.ID, user.Username, session.Username)
		s.send(session, protocol.Error("Claimed identity does not match session user"))
		return false
	}

	return true
}

func (s *Server) send(session *Session, resp *protocol.Response) {
	session.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := session.Conn.Write(resp.Marshal()); err != nil {
		log.Printf("Error writing to session %s: %v", session.ID, err)
	}
}

// Shutdown notifies all connected clients and closes their connections.
func (s *Server) Shutdown(reason string) {
	for username, conn := range s.directory.Snapshot() {
		session := &Session{Conn: conn, Username: username, LoggedIn: true}
		s.send(session, protocol.Error("Server shutting down: "+reason))
		conn.Close()
		s.directory.Remove(conn)
	}
}

// GetStats returns server statistics as a formatted string.
func (s *Server) GetStats() string {
	users := s.directory.Online()
	return "connections=" + strconv.Itoa(len(users)) + ",users=" + strings.Join(users, ";")
}
