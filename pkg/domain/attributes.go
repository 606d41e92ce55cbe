package domain

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AttributeContext is the normalized snapshot of one inbound request presented to the
// policy pipeline. It is built once per check and never mutated afterwards.
type AttributeContext struct {
	Request           HTTPRequest
	Source            *Peer
	Destination       *Peer
	TLSSession        *TLSSession
	ContextExtensions map[string]string
}

// HTTPRequest carries the HTTP attributes of the request being authorized.
type HTTPRequest struct {
	ID         string
	Method     string
	Path       string
	Host       string
	Scheme     string
	Protocol   string
	Size       int64
	Body       string
	Headers    map[string]string
	ReceivedAt time.Time
}

// Peer identifies one side of the downstream connection. It is only used for logging.
type Peer struct {
	Address   string
	Port      uint32
	Principal string
}

// TLSSession holds the TLS metadata of the downstream connection.
type TLSSession struct {
	SNI string
}

// Header returns the value of the named header. Names are matched lower-cased.
func (a AttributeContext) Header(name string) (string, bool) {
	if a.Request.Headers == nil {
		return "", false
	}
	value, ok := a.Request.Headers[strings.ToLower(name)]
	return value, ok
}

// Extension returns the named context extension. Absence is reported as not set.
func (a AttributeContext) Extension(key string) (string, bool) {
	if a.ContextExtensions == nil {
		return "", false
	}
	value, ok := a.ContextExtensions[key]
	return value, ok
}

// SNI returns the server name indication, or "" on plaintext connections.
func (a AttributeContext) SNI() string {
	if a.TLSSession == nil {
		return ""
	}
	return a.TLSSession.SNI
}

// maskedHeaders never appear in clear text in log output.
var maskedHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
}

// LogValue renders the context as a structured log group.
func (a AttributeContext) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("method", a.Request.Method),
		slog.String("path", a.Request.Path),
		slog.String("host", a.Request.Host),
		slog.String("scheme", a.Request.Scheme),
		slog.Int64("body_size", a.Request.Size),
		slog.Any("headers", headerList(a.Request.Headers)),
	}
	if len(a.ContextExtensions) > 0 {
		attrs = append(attrs, slog.Any("context_extensions", pairList(a.ContextExtensions)))
	}
	if !a.Request.ReceivedAt.IsZero() {
		attrs = append(attrs, slog.Time("request_time", a.Request.ReceivedAt))
	}
	if a.Source != nil {
		attrs = append(attrs, slog.String("source", a.Source.String()))
	}
	if a.Destination != nil {
		attrs = append(attrs, slog.String("destination", a.Destination.String()))
	}
	if sni := a.SNI(); sni != "" {
		attrs = append(attrs, slog.String("tls_sni", sni))
	}
	return slog.GroupValue(attrs...)
}

func (p *Peer) String() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Address)
	if p.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(p.Port), 10))
	}
	if p.Principal != "" {
		b.WriteString(" (")
		b.WriteString(p.Principal)
		b.WriteByte(')')
	}
	return b.String()
}

func headerList(headers map[string]string) []string {
	out := make([]string, 0, len(headers))
	for _, key := range sortedKeys(headers) {
		value := headers[key]
		if _, masked := maskedHeaders[key]; masked && value != "" {
			value = "[REDACTED]"
		}
		out = append(out, key+": "+value)
	}
	return out
}

func pairList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, key := range sortedKeys(m) {
		out = append(out, key+"="+m[key])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
