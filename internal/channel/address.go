// internal/channel/address.go
//
// Endpoint addresses are websocket URLs of the form ws://host:port. A bind
// address may use the wildcard host "*" (or 0.0.0.0) and port 0; the concrete
// address is only known after the listener is up, and is rewritten to a
// loopback-routable host so it can be handed to spawned helper processes.

package channel

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Scheme is the address prefix every endpoint understands.
const Scheme = "ws://"

// ErrBind marks a failure to claim a bind address. Binding is never retried;
// an address already in use is a configuration problem for the caller.
var ErrBind = errors.New("channel: bind failed")

// splitAddress strips the scheme and validates the host:port shape.
func splitAddress(addr string) (host, port string, err error) {
	rest, ok := strings.CutPrefix(addr, Scheme)
	if !ok {
		return "", "", fmt.Errorf("channel: address %q must start with %q", addr, Scheme)
	}
	host, port, err = net.SplitHostPort(rest)
	if err != nil {
		return "", "", fmt.Errorf("channel: address %q: %w", addr, err)
	}
	return host, port, nil
}

// bindListener claims a TCP listener for bind and returns it together with
// the concrete connect address peers can dial.
func bindListener(bind string) (net.Listener, string, error) {
	host, port, err := splitAddress(bind)
	if err != nil {
		return nil, "", err
	}
	if host == "*" {
		host = "0.0.0.0"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrBind, bind, err)
	}
	_, boundPort, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, "", fmt.Errorf("channel: resolve bound address: %w", err)
	}
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return ln, Scheme + net.JoinHostPort(host, boundPort), nil
}
