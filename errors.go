package framelink

import (
	"fmt"
	"net"
	"os"

	"github.com/pkg/errors"
)

// CodeBrokenLink is the error code delivered to listeners when the
// watchdog threshold is exceeded.
const CodeBrokenLink = 1

// DescBrokenLink is the description delivered with CodeBrokenLink.
const DescBrokenLink = "broken link (max error limit reached)"

var (
	// ErrAlreadyRunning is returned when starting a server or connecting a
	// client that is already running.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotRunning is returned by Send when the connection is not running.
	ErrNotRunning = errors.New("connection not running")
	// ErrFrameTooLarge is wrapped in a FramingError when a frame header
	// announces more bytes than the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ConnectError reports that a client socket could not be opened.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// BindError reports that the server could not listen on its address.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// FramingError reports a frame that could not be read completely.
// Read is the number of bytes received for the part being read (header or
// payload) and Want the number that was expected.
type FramingError struct {
	Read int
	Want int
	Err  error
}

func (e *FramingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("framing: short read %d/%d", e.Read, e.Want)
	}
	return fmt.Sprintf("framing: short read %d/%d: %v", e.Read, e.Want, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// BrokenLinkError is the terminal error of a connection whose watchdog
// counter went past its limit.
type BrokenLinkError struct {
	Code        int
	Description string
	Failures    int
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("%s (code %d, %d failures)", e.Description, e.Code, e.Failures)
}

// isTimeout reports whether err is a read or write deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsFramingError reports whether err is or wraps a FramingError.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}
