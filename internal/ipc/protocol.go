// Package ipc provides inter-process communication between the revisiond
// daemon and client applications (revisionctl, third-party tools).
//
// The protocol is a fixed 16-byte framed header followed by a JSON payload,
// carried over a Unix socket. Requests and responses correlate through a
// request ID; the protocol is versioned for compatibility.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"revisiond/internal/store"
)

// Protocol version for compatibility checking.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x52565043 // "RVPC"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Target management (0x02xx)
	MsgAddTarget        MessageType = 0x0200
	MsgAddTargetResp    MessageType = 0x0201
	MsgRemoveTarget     MessageType = 0x0202
	MsgRemoveTargetResp MessageType = 0x0203
	MsgListTargets      MessageType = 0x0204
	MsgListTargetsResp  MessageType = 0x0205

	// Batch operations (0x03xx)
	MsgImportTargets     MessageType = 0x0300
	MsgImportTargetsResp MessageType = 0x0301
	MsgExportTargets     MessageType = 0x0302
	MsgExportTargetsResp MessageType = 0x0303

	// History (0x04xx)
	MsgGetHistory     MessageType = 0x0400
	MsgGetHistoryResp MessageType = 0x0401
)

// Header is the fixed-size message header (16 bytes).
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Reserved
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// MaxPayload caps a message payload at 16MB.
const MaxPayload = 16 * 1024 * 1024

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/response payloads.

// HandshakeRequest is sent by the client to initiate a connection.
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge a connection.
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrInternalError  = 4
)

// AddTargetRequest adds or updates a watched target.
type AddTargetRequest struct {
	Path        string `json:"path"`
	RevisionDir string `json:"revision_dir"`
}

// AckResponse acknowledges a mutating operation.
type AckResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RemoveTargetRequest removes a watched target.
type RemoveTargetRequest struct {
	Path string `json:"path"`
}

// TargetInfo describes one watched target.
type TargetInfo struct {
	Path            string `json:"path"`
	RevisionDir     string `json:"revision_dir"`
	LastFingerprint string `json:"last_fingerprint,omitempty"`
}

// ListTargetsResponse contains the ordered target list.
type ListTargetsResponse struct {
	Targets []TargetInfo `json:"targets"`
}

// ImportTargetsRequest applies a record batch.
type ImportTargetsRequest struct {
	Records []store.Record `json:"records"`
}

// ImportTargetsResponse reports the batch outcome.
type ImportTargetsResponse struct {
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// ExportTargetsResponse contains the exported record batch.
type ExportTargetsResponse struct {
	Records []store.Record `json:"records"`
}

// GetHistoryRequest requests recorded revisions for a path.
type GetHistoryRequest struct {
	Path  string `json:"path"`
	Limit int    `json:"limit,omitempty"`
}

// RevisionInfo describes one recorded revision.
type RevisionInfo struct {
	StoredName  string    `json:"stored_name"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetHistoryResponse contains a path's revision history, newest first.
type GetHistoryResponse struct {
	Path      string         `json:"path"`
	Revisions []RevisionInfo `json:"revisions"`
}

// StatusResponse contains daemon status.
type StatusResponse struct {
	Version    string            `json:"version"`
	StartedAt  time.Time         `json:"started_at"`
	Uptime     time.Duration     `json:"uptime"`
	Targets    int               `json:"targets"`
	Watches    int               `json:"watches"`
	Pending    int               `json:"pending"`
	Revisions  int64             `json:"revisions"`
	LastErrors map[string]string `json:"last_errors,omitempty"`
}

// Encode encodes a payload to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
