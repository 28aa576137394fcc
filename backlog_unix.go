//go:build unix

package framelink

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setBacklog resizes the accept queue of a listening socket by calling
// listen(2) on it again, which Linux and the BSDs honor.
func setBacklog(ln *net.TCPListener, backlog int) error {
	raw, err := ln.SyscallConn()
	if err != nil {
		return errors.Wrap(err, "listener raw conn")
	}

	var listenErr error
	err = raw.Control(func(fd uintptr) {
		listenErr = unix.Listen(int(fd), backlog)
	})
	if err != nil {
		return errors.Wrap(err, "listener control")
	}

	return errors.Wrap(listenErr, "listen backlog")
}
