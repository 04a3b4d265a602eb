//go:build !linux && !darwin

package ipc

import "net"

// PeerCredentials identifies the process on the far side of a Unix socket.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// GetPeerCredentials is unavailable on this platform.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	return nil, nil
}

// VerifyPeerIsCurrentUser accepts all peers where credential checks are
// unavailable; the socket's file permissions remain the access control.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}
