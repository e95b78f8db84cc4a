package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HandshakeMeta is the client metadata captured off a websocket handshake.
type HandshakeMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

// MetaFromHandshake reads X-Device-Id and X-Request-Id plus the client
// address, preferring the first X-Forwarded-For hop. A missing request id
// gets a generated one so audit envelopes always correlate.
func MetaFromHandshake(r *http.Request) HandshakeMeta {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return HandshakeMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: requestID,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
