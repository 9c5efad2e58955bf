package security

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// NewDialer returns a dialer that refuses connections to loopback and private
// peers unless the policy bound to the dial context allows local hosts for
// the scheme bound with WithScheme.
// The check runs on the resolved address, after DNS, so names that resolve
// into private ranges are caught too.
func NewDialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout:        timeout,
		KeepAlive:      30 * time.Second,
		ControlContext: guardPeer,
	}
}

func guardPeer(ctx context.Context, _, address string, _ syscall.RawConn) error {
	p, ok := PolicyFrom(ctx)
	if !ok {
		p = DefaultPolicy()
	}
	if p.allowsLocalPeer(schemeFrom(ctx)) {
		return nil
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if IsPrivateAddr(addr) {
		return geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(ReasonPrivateAddress),
			geoerr.WithMessage("peer %s is local or private", addr))
	}

	return nil
}

// hop holds the scheme of the request currently being dialed. Redirects
// replace it, so it is shared by pointer across the request chain.
type hop struct {
	scheme atomic.Pointer[string]
}

type hopKey struct{}

// WithScheme binds the scheme of the outgoing request to ctx for the dial
// guard. CheckRedirect moves it along when a redirect changes scheme.
func WithScheme(ctx context.Context, scheme string) context.Context {
	h := &hop{}
	h.set(scheme)
	return context.WithValue(ctx, hopKey{}, h)
}

func (h *hop) set(scheme string) {
	s := strings.ToLower(scheme)
	h.scheme.Store(&s)
}

func setScheme(ctx context.Context, scheme string) {
	if h, ok := ctx.Value(hopKey{}).(*hop); ok {
		h.set(scheme)
	}
}

// schemeFrom returns "" when nothing was bound.
func schemeFrom(ctx context.Context) string {
	h, ok := ctx.Value(hopKey{}).(*hop)
	if !ok {
		return ""
	}
	if s := h.scheme.Load(); s != nil {
		return *s
	}

	return ""
}
