// Package core holds the in-memory realtime state: who is connected
// where, what their status is, and which calls are running. Stores are
// safe for concurrent use and carry no transport or storage concerns.
package core

import "errors"

// Frame is one outbound wire frame, already encoded.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Conn is a live client transport as the core sees it. TrySend must
// never block: it either hands the frame to the transport's queue or
// fails immediately. Close must be idempotent.
type Conn interface {
	TrySend(Frame) error
	Close()
}
