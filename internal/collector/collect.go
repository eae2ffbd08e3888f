package collector

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/version"
)

// anonymousUserID replaces the network user id when the tracker asked not to
// be identified.
const anonymousUserID = "00000000-0000-0000-0000-000000000000"

// headerFilter lists headers never stored on a payload; they are transport
// artifacts, not tracker data.
var headerFilter = map[string]bool{
	"remote-address":  true,
	"raw-request-uri": true,
	"timeout-access":  true,
}

// anonymousHeaderFilter additionally drops the identifying headers when the
// request is anonymous.
var anonymousHeaderFilter = map[string]bool{
	"cookie":          true,
	"x-forwarded-for": true,
	"x-real-ip":       true,
}

// isAnonymous reports whether the tracker requested anonymous tracking.
func isAnonymous(r *http.Request) bool {
	return r.Header.Get("SP-Anonymous") != "" || r.Header.Get("Anonymous") != ""
}

// collectHeaders flattens the request headers into "Name: Value" pairs,
// minus the filtered ones.
func collectHeaders(r *http.Request, anonymous bool) []string {
	var out []string
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if headerFilter[lower] {
			continue
		}
		if anonymous && anonymousHeaderFilter[lower] {
			continue
		}
		for _, v := range values {
			out = append(out, name+": "+v)
		}
	}
	return out
}

// trackingCookie returns the value of the tracking cookie, or "".
func (s *Server) trackingCookie(r *http.Request) string {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// networkUserID resolves the network user id: the anonymous placeholder, the
// nuid query parameter, the tracking cookie, or a fresh UUID, in that order.
func (s *Server) networkUserID(r *http.Request, anonymous bool) string {
	if anonymous {
		return anonymousUserID
	}
	if nuid := r.URL.Query().Get("nuid"); nuid != "" {
		return nuid
	}
	if cookie := s.trackingCookie(r); cookie != "" {
		return cookie
	}
	return uuid.NewString()
}

// clientIP is the peer address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestHostname is the Host header without the port.
func requestHostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// hostFromURL extracts the hostname from a URL, for cookie domain matching.
func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// buildPayload assembles the raw envelope from the request.
func (s *Server) buildPayload(r *http.Request, body []byte, anonymous bool) *payload.CollectorPayload {
	p := &payload.CollectorPayload{
		IPAddress: clientIP(r),
		Timestamp: s.clk.Now().UnixMilli(),
		Encoding:  "UTF-8",
		Collector: version.CollectorName,

		UserAgent:     r.UserAgent(),
		RefererURI:    r.Referer(),
		Path:          r.URL.Path,
		Querystring:   r.URL.RawQuery,
		ContentType:   r.Header.Get("Content-Type"),
		Hostname:      requestHostname(r),
		NetworkUserID: s.networkUserID(r, anonymous),
		Headers:       collectHeaders(r, anonymous),
	}
	if len(body) > 0 {
		p.Body = body
	}
	return p
}
