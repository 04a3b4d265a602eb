package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Common client errors.
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// ClientConfig configures the IPC client.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults for a control client.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "revisionctl",
		ClientVersion:  "1.0.0",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client is a synchronous IPC client. Requests are serialized; one
// request is in flight at a time.
type Client struct {
	cfg ClientConfig

	mu        sync.Mutex
	conn      net.Conn
	nextReqID atomic.Uint32
}

// NewClient creates a new IPC client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect dials the daemon socket and performs the protocol handshake.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", c.cfg.SocketPath, c.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	c.conn = conn

	var resp HandshakeResponse
	if err := c.requestLocked(MsgHandshake, &HandshakeRequest{
		ClientVersion:   c.cfg.ClientVersion,
		ClientName:      c.cfg.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, MsgHandshakeAck, &resp); err != nil {
		conn.Close()
		c.conn = nil
		return fmt.Errorf("handshake: %w", err)
	}

	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Request sends a typed request and decodes the expected response type. A
// MsgError response is surfaced as an error.
func (c *Client) Request(reqType MessageType, req any, respType MessageType, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.requestLocked(reqType, req, respType, resp)
}

func (c *Client) requestLocked(reqType MessageType, req any, respType MessageType, resp any) error {
	var payload []byte
	if req != nil {
		var err error
		payload, err = Encode(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	id := c.nextReqID.Add(1)
	msg := NewMessage(reqType, id, payload)

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	c.conn.SetDeadline(deadline)

	if err := msg.Write(c.conn); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	reply, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if reply.Header.RequestID != id {
		return fmt.Errorf("response id %d does not match request id %d", reply.Header.RequestID, id)
	}

	if reply.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(reply.Payload, &errResp); err != nil {
			return fmt.Errorf("daemon error (undecodable)")
		}
		return fmt.Errorf("daemon error %d: %s", errResp.Code, errResp.Message)
	}
	if reply.Header.Type != respType {
		return fmt.Errorf("unexpected response type %#x", uint16(reply.Header.Type))
	}

	if resp != nil {
		if err := Decode(reply.Payload, resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	return c.Request(MsgPing, nil, MsgPong, nil)
}

// Status fetches daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.Request(MsgStatus, nil, MsgStatusResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddTarget adds or updates a watched target.
func (c *Client) AddTarget(path, revisionDir string) error {
	var resp AckResponse
	err := c.Request(MsgAddTarget, &AddTargetRequest{Path: path, RevisionDir: revisionDir}, MsgAddTargetResp, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// RemoveTarget removes a watched target.
func (c *Client) RemoveTarget(path string) error {
	var resp AckResponse
	err := c.Request(MsgRemoveTarget, &RemoveTargetRequest{Path: path}, MsgRemoveTargetResp, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// ListTargets fetches the ordered target list.
func (c *Client) ListTargets() ([]TargetInfo, error) {
	var resp ListTargetsResponse
	if err := c.Request(MsgListTargets, nil, MsgListTargetsResp, &resp); err != nil {
		return nil, err
	}
	return resp.Targets, nil
}

// ImportTargets applies a record batch.
func (c *Client) ImportTargets(req *ImportTargetsRequest) (*ImportTargetsResponse, error) {
	var resp ImportTargetsResponse
	if err := c.Request(MsgImportTargets, req, MsgImportTargetsResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportTargets fetches the target set as records.
func (c *Client) ExportTargets() (*ExportTargetsResponse, error) {
	var resp ExportTargetsResponse
	if err := c.Request(MsgExportTargets, nil, MsgExportTargetsResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHistory fetches recorded revisions for a path, newest first.
func (c *Client) GetHistory(path string, limit int) (*GetHistoryResponse, error) {
	var resp GetHistoryResponse
	if err := c.Request(MsgGetHistory, &GetHistoryRequest{Path: path, Limit: limit}, MsgGetHistoryResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
