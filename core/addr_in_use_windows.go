//go:build windows

package core

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// isAddrInUse reports whether a listen failed because the port is taken.
// Winsock reports WSAEADDRINUSE rather than the POSIX errno.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE) || errors.Is(err, syscall.EADDRINUSE)
}
