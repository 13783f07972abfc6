// Package netio holds the native side of the async I/O adapters: resource
// tables for sockets and listeners, dial/listen helpers used by background
// tasks, and typed DNS resolution. Promise plumbing lives in the ops
// layer; everything here is plain blocking I/O.
package netio

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/andromeda-rt/andromeda/internal/core"
)

const (
	// DialTimeout bounds connect and handshake time.
	DialTimeout = 30 * time.Second
	// MaxReadChunk caps a single read op's buffer.
	MaxReadChunk = 1 << 20
)

// State is the net extension's storage: one table per resource kind.
// RIDs from one table are never valid in another.
type State struct {
	Conns     *core.ResourceTable[net.Conn]       // TCP, TLS, Unix streams
	Listeners *core.ResourceTable[net.Listener]   // TCP, Unix listeners
	Packets   *core.ResourceTable[net.PacketConn] // UDP sockets
}

// NewState creates empty socket tables.
func NewState() *State {
	return &State{
		Conns:     core.NewResourceTable[net.Conn](),
		Listeners: core.NewResourceTable[net.Listener](),
		Packets:   core.NewResourceTable[net.PacketConn](),
	}
}

// DialStream connects a stream socket. network is "tcp" or "unix".
func DialStream(network, addr string) (net.Conn, error) {
	conn, err := net.DialTimeout(network, addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting %s %s: %w", network, addr, err)
	}
	return conn, nil
}

// DialTLS connects TCP and completes a TLS handshake. serverName
// overrides SNI; empty derives it from addr.
func DialTLS(addr, serverName string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if serverName == "" {
		serverName = host
	}
	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: serverName})
	if err != nil {
		return nil, fmt.Errorf("tls connect %s: %w", addr, err)
	}
	return conn, nil
}

// Listen opens a stream listener. network is "tcp" or "unix".
func Listen(network, addr string) (net.Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("listening %s %s: %w", network, addr, err)
	}
	return ln, nil
}

// ListenPacket binds a UDP socket.
func ListenPacket(addr string) (net.PacketConn, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding udp %s: %w", addr, err)
	}
	return pc, nil
}

// ReadChunk reads up to max bytes from conn. A zero-byte read with EOF
// yields (nil, io.EOF), which the read op maps to a null resolution.
func ReadChunk(conn net.Conn, max int) ([]byte, error) {
	if max <= 0 || max > MaxReadChunk {
		max = MaxReadChunk
	}
	buf := make([]byte, max)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}
