package core

import (
	"fmt"
	"net"
	"strconv"
)

// ListenTCP binds host:port. When the port is taken it walks up to scan
// following ports and returns the listener together with the port it got.
// Errors other than "address in use" are returned immediately.
func ListenTCP(host string, port, scan int) (net.Listener, int, error) {
	var lastErr error
	for p := port; p <= port+scan && p <= 65535; p++ {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return listener, p, nil
		}
		if !isAddrInUse(err) {
			return nil, 0, err
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", port, port+scan, lastErr)
}
