//go:build !unix

package framelink

import "net"

// setBacklog is a no-op where the accept queue cannot be resized; the
// operating system default applies.
func setBacklog(ln *net.TCPListener, backlog int) error {
	return nil
}
