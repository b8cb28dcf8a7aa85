package protocol

import (
	"encoding/json"
	"errors"
)

var ErrBadRequest = errors.New("malformed request")

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Message is a private message between two users. Two messages with the
// same fields are the same message.
type Message struct {
	ReceiverID string `json:"receiverId"`
	SenderID   string `json:"senderId"`
	Message    string `json:"message"`
}

// UserDescriptor is the identity blob clients resend on most requests.
// The server never trusts it outright: it is checked against the session.
type UserDescriptor struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Authority  string `json:"authority"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// Request is one client envelope, a single JSON object per line.
// The User field carries a JSON-encoded UserDescriptor.
type Request struct {
	Request          string   `json:"request"`
	LoginUsername    string   `json:"loginUsername,omitempty"`
	LoginPassword    string   `json:"loginPassword,omitempty"`
	RegisterUsername string   `json:"registerUsername,omitempty"`
	RegisterPassword string   `json:"registerPassword,omitempty"`
	MessageObject    *Message `json:"messageObject,omitempty"`
	User             string   `json:"user,omitempty"`
}

// Response is one server envelope. Optional fields are set per command.
type Response struct {
	Status           string   `json:"status"`
	Message          string   `json:"message"`
	MessageObject    *Message `json:"messageObject,omitempty"`
	LoginUsername    string   `json:"loginUsername,omitempty"`
	LoginPassword    string   `json:"loginPassword,omitempty"`
	RegisterUsername string   `json:"registerUsername,omitempty"`
	RegisterPassword string   `json:"registerPassword,omitempty"`
	Seconds          int64    `json:"seconds,omitempty"`
	Commands         []string `json:"commands,omitempty"`
	ServerVersion    string   `json:"serverVersion,omitempty"`
	CreationDate     string   `json:"creationDate,omitempty"`
}

func ParseRequest(line string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return nil, ErrBadRequest
	}
	if req.Request == "" {
		return nil, ErrBadRequest
	}
	return &req, nil
}

// ParseUser decodes the JSON-encoded user descriptor resent by the client.
func (r *Request) ParseUser() (*UserDescriptor, error) {
	if r.User == "" {
		return nil, ErrBadRequest
	}
	var user UserDescriptor
	if err := json.Unmarshal([]byte(r.User), &user); err != nil {
		return nil, ErrBadRequest
	}
	return &user, nil
}

// Marshal encodes the response as a single newline-terminated JSON line.
func (r *Response) Marshal() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// Response contains only marshalable fields, this is unreachable.
		data = []byte(`{"status":"error","message":"Internal error"}`)
	}
	return append(data, '\n')
}

func Success(message string) *Response {
	return &Response{Status: StatusSuccess, Message: message}
}

func Error(message string) *Response {
	return &Response{Status: StatusError, Message: message}
}
