// Package ipc defines the request/reply document exchanged over the
// control channel.
//
// A Message is a flat document of named typed parameters plus a message
// value naming the operation and a target identifier. The shape follows
// the cmd/ack/nack convention of the acquisition control protocol:
// every request is a "cmd", every reply echoes the request id as an
// "ack" on success or a "nack" on failure.
package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MsgType discriminates requests from replies.
type MsgType string

const (
	MsgTypeCmd  MsgType = "cmd"
	MsgTypeAck  MsgType = "ack"
	MsgTypeNack MsgType = "nack"
)

// Recognised operation values.
const (
	OpLoad       = "load"
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpConfigure  = "configure"
	OpStatus     = "status"
	OpStart      = "start"
	OpStop       = "stop"
	OpShutdown   = "shutdown"
)

// Message is one control-channel document. Params values are restricted
// to string, int, float64 and bool (and nested maps for aggregated
// status replies).
type Message struct {
	Type      MsgType                `json:"msg_type"`
	Value     string                 `json:"msg_val"`
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Target    string                 `json:"target,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// NewRequest creates a cmd Message for the given operation with a fresh
// message id.
func NewRequest(op string) *Message {
	return &Message{
		Type:      MsgTypeCmd,
		Value:     op,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// AckReply creates a successful reply echoing the request's operation
// and id.
func AckReply(req *Message) *Message {
	return &Message{
		Type:      MsgTypeAck,
		Value:     req.Value,
		ID:        req.ID,
		Timestamp: time.Now().UTC(),
	}
}

// NackReply creates a failure reply carrying the rejection reason under
// the "error" parameter.
func NackReply(req *Message, reason string) *Message {
	m := &Message{
		Type:      MsgTypeNack,
		Value:     req.Value,
		ID:        req.ID,
		Timestamp: time.Now().UTC(),
	}
	m.SetParam("error", reason)
	return m
}

// HasParam reports whether the named parameter is present.
func (m *Message) HasParam(key string) bool {
	_, ok := m.Params[key]
	return ok
}

// SetParam stores a parameter value.
func (m *Message) SetParam(key string, value interface{}) {
	if m.Params == nil {
		m.Params = make(map[string]interface{})
	}
	m.Params[key] = value
}

// GetString returns the named parameter as a string.
func (m *Message) GetString(key string) (string, bool) {
	v, ok := m.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the named parameter as an int. JSON decoding yields
// float64 for numbers, so both forms are accepted.
func (m *Message) GetInt(key string) (int, bool) {
	v, ok := m.Params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetFloat returns the named parameter as a float64.
func (m *Message) GetFloat(key string) (float64, bool) {
	v, ok := m.Params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool returns the named parameter as a bool.
func (m *Message) GetBool(key string) (bool, bool) {
	v, ok := m.Params[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// SetWarning records a clamped-parameter warning for the named field
// under the documented "warning:<field>" key.
func (m *Message) SetWarning(field, text string) {
	m.SetParam("warning:"+field, text)
}

// Warning returns the clamp warning recorded for the named field.
func (m *Message) Warning(field string) (string, bool) {
	return m.GetString("warning:" + field)
}

// Encode serialises the Message to JSON.
func (m *Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode message: %w", err)
	}
	return b, nil
}

// Decode parses a JSON control message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ipc: decode message: %w", err)
	}
	return &m, nil
}
