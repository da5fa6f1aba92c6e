package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNoFreePort is returned when the search runs past the last TCP port.
var ErrNoFreePort = errors.New("no free port")

// BindProbe reports whether a listening socket can be opened on port.
type BindProbe func(port uint16) bool

// CanBind opens and immediately closes a loopback listener on port.
func CanBind(port uint16) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// CoordinatorURL is the loopback base URL of the coordinator on port.
func CoordinatorURL(port uint16) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Ping reports whether a coordinator answers on port.
func Ping(ctx context.Context, port uint16) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return PostJSON(ctx, CoordinatorURL(port)+"/ping", nil, nil) == nil
}

// ListPorts fetches the coordinator's registry snapshot.
func ListPorts(ctx context.Context, port uint16) ([]PortEntry, error) {
	var entries []PortEntry
	if err := PostJSON(ctx, CoordinatorURL(port)+"/ports", nil, &entries); err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return entries, nil
}

// FreePort returns the first port above base that no loopback entry
// advertises and that canBind accepts. The answer is best effort: another
// process may take the port before the caller binds it.
func FreePort(base uint16, taken []PortEntry, canBind BindProbe) (uint16, error) {
	if canBind == nil {
		canBind = CanBind
	}
	used := make(map[uint16]bool, len(taken))
	for _, e := range taken {
		if p, ok := loopbackPort(e.URL()); ok {
			used[p] = true
		}
	}
	for candidate := uint32(base) + 1; candidate <= 65535; candidate++ {
		p := uint16(candidate)
		if used[p] || !canBind(p) {
			continue
		}
		return p, nil
	}
	return 0, ErrNoFreePort
}

// AllocatePort asks the coordinator on base which ports are taken and picks
// the next free one.
func AllocatePort(ctx context.Context, base uint16, canBind BindProbe) (uint16, error) {
	entries, err := ListPorts(ctx, base)
	if err != nil {
		return 0, err
	}
	return FreePort(base, entries, canBind)
}

// Announce registers a preview server with the coordinator on base. The
// coordinator may still decline silently if its probe fails; Announce only
// retries transport errors.
func Announce(ctx context.Context, base uint16, req RegisterRequest) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(400*time.Millisecond), 10),
		ctx,
	)
	return backoff.Retry(func() error {
		return PostJSON(ctx, CoordinatorURL(base)+"/register", req, nil)
	}, b)
}

func loopbackPort(raw string) (uint16, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return 0, false
		}
	}
	p, err := strconv.ParseUint(u.Port(), 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}
