package service

import (
	"net"
	"net/http"
	"strings"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// RequestSource is the read-only view of an inbound request the recorder extracts context from.
// *fiber.Ctx satisfies it; HTTPRequestSource adapts *http.Request.
type RequestSource interface {
	IP() string
	Get(key string, defaultValue ...string) string
	Method(override ...string) string
	OriginalURL() string
	GetReqHeaders() map[string][]string
}

// SnapshotRequest copies ip, user agent, method, url and headers out of the request. The client
// address prefers X-Forwarded-For, then X-Real-IP, then the connection address.
func SnapshotRequest(src RequestSource) models.RequestSnapshot {
	ip := firstForwardedFor(src.Get("X-Forwarded-For"))
	if ip == "" {
		ip = strings.TrimSpace(src.Get("X-Real-IP"))
	}
	if ip == "" {
		ip = strings.TrimSpace(src.IP())
	}
	if ip == "" {
		ip = models.UnknownIPAddress
	}

	headers := make(map[string]interface{})
	for key, values := range src.GetReqHeaders() {
		headers[key] = strings.Join(values, ", ")
	}

	return models.RequestSnapshot{
		IPAddress: ip,
		UserAgent: src.Get("User-Agent"),
		Method:    src.Method(),
		URL:       src.OriginalURL(),
		Headers:   headers,
	}
}

func firstForwardedFor(value string) string {
	if value == "" {
		return ""
	}
	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}

type httpRequestSource struct {
	req *http.Request
}

// HTTPRequestSource adapts a net/http request for callers outside fiber.
func HTTPRequestSource(req *http.Request) RequestSource {
	return httpRequestSource{req: req}
}

func (s httpRequestSource) IP() string {
	host, _, err := net.SplitHostPort(s.req.RemoteAddr)
	if err != nil {
		return s.req.RemoteAddr
	}
	return host
}

func (s httpRequestSource) Get(key string, defaultValue ...string) string {
	value := s.req.Header.Get(key)
	if value == "" && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func (s httpRequestSource) Method(override ...string) string {
	return s.req.Method
}

func (s httpRequestSource) OriginalURL() string {
	if s.req.URL == nil {
		return ""
	}
	return s.req.URL.RequestURI()
}

func (s httpRequestSource) GetReqHeaders() map[string][]string {
	headers := make(map[string][]string, len(s.req.Header))
	for key, values := range s.req.Header {
		headers[key] = append([]string(nil), values...)
	}
	return headers
}
