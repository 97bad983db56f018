// Package port implements host-port availability scanning used as a
// preflight before launching a serving container.
//
// The Docker daemon only reports a port conflict after container start,
// with an error message that buries the actual cause. Scanning first lets
// the CLI fail with a clear "port 8000 is already in use" before any
// container is created.
package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific TCP ports are available on the host.
//
// It uses the operating system's network stack (net.Listen) to determine
// if a port is free. This is the most reliable method because it asks the
// OS directly, rather than parsing /proc/net/* or shelling out to tools
// that may require elevated permissions.
//
// The struct is currently stateless, but is defined as a struct (rather
// than bare functions) so future options (bind address, timeout) can be
// added without breaking the API, and so it stays injectable for tests.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single TCP port is free on the host.
//
// It attempts net.Listen(":port"); if the bind succeeds the port is
// available and the listener is closed immediately. Binding uses all
// interfaces (":port" rather than "127.0.0.1:port") because Docker
// publishes ports on 0.0.0.0, so the same address space must be checked
// to avoid false positives.
func (s *Scanner) IsPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	defer func() { _ = listener.Close() }()
	return true
}

// FindAvailablePort scans [startPort, endPort] (inclusive) and returns
// the first available TCP port. The sequential search gives deterministic
// selection of the same free port across invocations.
//
// Returns an error if no port in the range is free.
func (s *Scanner) FindAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, endPort)
}
