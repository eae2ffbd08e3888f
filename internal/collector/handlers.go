package collector

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datenstrom/datenstrom/internal/metrics"
	"github.com/datenstrom/datenstrom/internal/payload"
)

// pixelGIF is a transparent 1x1 GIF, the classic tracking pixel.
var pixelGIF = []byte(
	"GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04" +
		"\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

// maxRequestBody caps tracker POST bodies well above any sane batch.
const maxRequestBody = 10 << 20

// remoteCollectorConfig is the per-hostname collector configuration served
// by the remote config endpoint. Nil means the endpoint is not configured or
// had nothing for this hostname.
type remoteCollectorConfig struct {
	EnableCookies bool `json:"enable_cookies"`
}

func (s *Server) remoteConfigFor(hostname string) *remoteCollectorConfig {
	if s.cfg.RemoteConfigEndpoint == "" || hostname == "" {
		return nil
	}
	var rc remoteCollectorConfig
	if !s.remote.GetJSON(s.cfg.RemoteConfigEndpoint, map[string]string{"hostname": hostname}, &rc) {
		return nil
	}
	return &rc
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "\U0001F44B Hello, I am your friendly neighborhood datenstrom collector")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"i am":     "ok",
		"hostname": requestHostname(r),
	})
}

// handleTrack is the POST endpoint behind tp2, /event and the vendor paths.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	rc := s.remoteConfigFor(requestHostname(r))
	anonymous := isAnonymous(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.respond(w, r, response{status: http.StatusBadRequest})
		return
	}

	p := s.buildPayload(r, body, anonymous)
	s.writeToSink(r, p)
	s.respond(w, r, response{
		anonymous: anonymous,
		userID:    p.NetworkUserID,
		remote:    rc,
	})
}

// handlePixel serves the GET tracking routes with a 1x1 GIF.
func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	rc := s.remoteConfigFor(requestHostname(r))
	anonymous := isAnonymous(r)

	p := s.buildPayload(r, nil, anonymous)
	s.writeToSink(r, p)
	s.respond(w, r, response{
		pixel:     true,
		anonymous: anonymous,
		userID:    p.NetworkUserID,
		remote:    rc,
	})
}

// handleRedirect records the event and bounces the client to the u query
// parameter. Only absolute URLs are accepted.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	rc := s.remoteConfigFor(requestHostname(r))

	target := r.URL.Query().Get("u")
	if target == "" {
		s.respond(w, r, response{status: http.StatusBadRequest})
		return
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" {
		s.respond(w, r, response{status: http.StatusBadRequest})
		return
	}

	anonymous := isAnonymous(r)
	p := s.buildPayload(r, nil, anonymous)
	s.writeToSink(r, p)
	s.respond(w, r, response{
		redirect:  u.String(),
		anonymous: anonymous,
		userID:    p.NetworkUserID,
		remote:    rc,
	})
}

// writeToSink frames the payload for the raw lane and writes it. Failures
// are logged, never surfaced to the tracker; the response stays 200.
func (s *Server) writeToSink(r *http.Request, p *payload.CollectorPayload) {
	frames, err := payload.SplitAndSerialize(p, s.cfg.RecordFormat, s.cfg.MaxBytes)
	if err != nil {
		slog.Warn("framing payload failed", "path", r.URL.Path, "error", err)
		return
	}
	if err := s.sink.Write(r.Context(), frames); err != nil {
		slog.Warn("writing raw frames failed", "frames", len(frames), "error", err)
		return
	}
	metrics.PayloadsWritten.Add(float64(len(frames)))
	if len(frames) > 1 {
		metrics.PayloadsSplit.Inc()
	}
}

// response describes what a tracking route sends back.
type response struct {
	status    int
	pixel     bool
	redirect  string
	anonymous bool
	userID    string
	remote    *remoteCollectorConfig
}

// respond writes the response, setting the tracking cookie when cookies are
// enabled for this hostname and the request is not anonymous. The remote
// per-hostname setting wins over the static configuration.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, resp response) {
	cookiesEnabled := s.cfg.CookieEnabled
	if resp.remote != nil {
		cookiesEnabled = resp.remote.EnableCookies
	}
	if cookiesEnabled && !resp.anonymous && resp.userID != "" && resp.status == 0 {
		s.setTrackingCookie(w, r, resp.userID)
	}

	switch {
	case resp.status != 0:
		w.WriteHeader(resp.status)
	case resp.redirect != "":
		w.Header().Set("Location", resp.redirect)
		w.WriteHeader(http.StatusFound)
	case resp.pixel:
		w.Header().Set("Content-Type", "image/gif")
		w.WriteHeader(http.StatusOK)
		w.Write(pixelGIF)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) setTrackingCookie(w http.ResponseWriter, r *http.Request, userID string) {
	domain := ""
	if origin := hostFromURL(r.Header.Get("Origin")); origin != "" {
		for _, candidate := range s.cfg.CookieDomains {
			if strings.HasSuffix(origin, candidate) {
				domain = origin
				break
			}
		}
	}
	if domain == "" {
		domain = s.cfg.CookieFallbackDomain
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    userID,
		Expires:  s.clk.Now().Add(time.Duration(s.cfg.CookieExpirationDays) * 24 * time.Hour),
		Domain:   domain,
		Secure:   s.cfg.CookieSecure,
		HttpOnly: s.cfg.CookieHTTPOnly,
		SameSite: parseSameSite(s.cfg.CookieSameSite),
	})
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	}
	return http.SameSiteDefaultMode
}
