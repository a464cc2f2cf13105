package fastcgi

import (
	"time"

	"github.com/gaxiaowei/fastcgisrv/internal/wire"
)

// Role re-exports wire.Role so callers never need to import internal/wire.
type Role = wire.Role

const (
	RoleResponder  = wire.RoleResponder
	RoleAuthorizer = wire.RoleAuthorizer
	RoleFilter     = wire.RoleFilter
)

// ProtocolStatus re-exports wire.ProtocolStatus.
type ProtocolStatus = wire.ProtocolStatus

const (
	ProtoRequestComplete = wire.StatusRequestComplete
	ProtoCantMultiplex   = wire.StatusCantMultiplex
	ProtoOverloaded      = wire.StatusOverloaded
	ProtoUnknownRole     = wire.StatusUnknownRole
)

// Context is the per-cycle state of spec.md §3: the descriptor, the
// absolute deadline, the current request id, the write type, the
// application and protocol status, the decoded role and flags, and a
// staging slot for the most recently read header. One Context is allocated
// per Handle caller and Reset at the start of every Handle call.
type Context struct {
	fd       int
	deadline time.Time

	RequestID      uint16
	WriteType      wire.RecType
	AppStatus      int32
	ProtocolStatus ProtocolStatus
	Role           Role
	Flags          uint8

	header wire.Header
}

// NewContext allocates a zeroed Context. Callers reuse one Context (and one
// Reader, one Writer) across many Handle invocations on different
// descriptors — only Reset is called per cycle (spec.md "Lifecycle").
func NewContext() *Context {
	return &Context{}
}

// Reset reinitializes the context for a new Handle call against fd with an
// absolute deadline of now+timeout, per spec.md §4.5 "Initial state".
func (c *Context) Reset(fd int, timeout time.Duration) {
	c.fd = fd
	c.deadline = time.Now().Add(timeout)
	c.RequestID = 0
	c.WriteType = wire.TypeStdout
	c.AppStatus = int32(StatusOK)
	c.ProtocolStatus = ProtoRequestComplete
	c.Role = 0
	c.Flags = 0
	c.header = wire.Header{}
}

// Deadline returns the absolute monotonic point past which any pending I/O
// must fail with StatusTimeout.
func (c *Context) Deadline() time.Time { return c.deadline }

// Fd returns the descriptor this cycle is driving.
func (c *Context) Fd() int { return c.fd }

// KeepConn reports bit 0 of Flags: the client requested the connection
// remain open after END_REQUEST.
func (c *Context) KeepConn() bool { return c.Flags&wire.FlagKeepConn != 0 }
