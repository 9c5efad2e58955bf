package security

import (
	"mime"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Rejection reasons. Each policy rule has its own reason.
const (
	ReasonInvalidURL       = "invalid_url"
	ReasonProtocol         = "protocol_not_allowed"
	ReasonHTTPSRequired    = "https_required"
	ReasonCredentials      = "credentials_in_url"
	ReasonLocalhost        = "localhost_not_allowed"
	ReasonPrivateAddress   = "private_address"
	ReasonContentType      = "content_type_not_allowed"
	ReasonResponseTooLarge = "response_too_large"
	ReasonTimeout          = "timeout"
	ReasonTooManyRedirects = "redirect_limit"
)

const (
	maxRedirects    = 5
	localhostName   = "localhost"
	localhostSuffix = ".localhost"
)

// CheckURL screens raw against p. Rules run in order and the first failure
// wins: protocol allow-list, strict https, embedded credentials, local hosts.
func CheckURL(raw string, p Policy) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, reject(raw, ReasonInvalidURL, "not an absolute URL")
	}

	scheme := strings.ToLower(u.Scheme)
	local := IsLocalHost(u.Hostname())
	httpLocal := scheme == "http" && local && p.AllowHTTPLocalhost

	if !p.allowsProtocol(scheme) && !httpLocal {
		return nil, reject(raw, ReasonProtocol, "protocol %q is not allowed", scheme)
	}
	if p.StrictHTTPSOnly && scheme != "https" {
		return nil, reject(raw, ReasonHTTPSRequired, "strict https mode rejects %q", scheme)
	}
	if u.User != nil {
		return nil, reject(raw, ReasonCredentials, "URL carries user credentials")
	}
	if local && !p.AllowLocalhost && !httpLocal {
		return nil, reject(raw, ReasonLocalhost, "host %q is local or private", u.Hostname())
	}

	return u, nil
}

// CheckResponse screens response headers: content type first, then the
// declared length. Streamed length is enforced separately by LimitReader.
func CheckResponse(h http.Header, p Policy) error {
	ct := h.Get("Content-Type")
	media, _, err := mime.ParseMediaType(ct)
	if err != nil || !contentTypeAllowed(media, p) {
		return reject("", ReasonContentType, "content type %q is not allowed", ct)
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > p.MaxResponseSize {
			return geoerr.New(geoerr.KindSecurity, "",
				geoerr.WithReason(ReasonResponseTooLarge),
				geoerr.WithMessage("declared length %d exceeds %d bytes", n, p.MaxResponseSize),
				geoerr.WithDetail("limit", p.MaxResponseSize))
		}
	}

	return nil
}

func contentTypeAllowed(media string, p Policy) bool {
	media = strings.ToLower(media)
	for _, allowed := range p.AllowedContentTypes {
		if strings.ToLower(strings.TrimSpace(allowed)) == media {
			return true
		}
	}

	return false
}

// IsLocalHost reports whether host names the local machine or an address in
// a loopback, private, link-local or unspecified range.
func IsLocalHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	if h == localhostName || strings.HasSuffix(h, localhostSuffix) {
		return true
	}

	addr, err := netip.ParseAddr(strings.Trim(h, "[]"))
	if err != nil {
		return false
	}

	return IsPrivateAddr(addr)
}

// IsPrivateAddr reports whether addr is not publicly routable.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

// CheckRedirect is an http.Client redirect hook that re-screens every hop
// with the policy bound to the request context. An accepted hop also
// updates the scheme seen by the dial guard.
func CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return reject(req.URL.String(), ReasonTooManyRedirects, "stopped after %d redirects", len(via))
	}

	p, ok := PolicyFrom(req.Context())
	if !ok {
		p = DefaultPolicy()
	}
	u, err := CheckURL(req.URL.String(), p)
	if err != nil {
		return err
	}
	setScheme(req.Context(), u.Scheme)

	return nil
}

func reject(raw, reason, format string, args ...any) error {
	return geoerr.New(geoerr.KindSecurity, raw,
		geoerr.WithReason(reason), geoerr.WithMessage(format, args...))
}
