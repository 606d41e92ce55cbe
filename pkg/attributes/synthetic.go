package attributes

import (
	"time"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Synthetic describes a request for offline evaluation and tests.
type Synthetic struct {
	Method     string
	Path       string
	Host       string
	Scheme     string
	Headers    map[string]string
	Extensions map[string]string
	SNI        string
	Source     string
	SourcePort uint32
	Time       time.Time
}

// CheckRequest renders the synthetic request in envoy wire form.
func (s Synthetic) CheckRequest() *authv3.CheckRequest {
	method := s.Method
	if method == "" {
		method = "GET"
	}
	scheme := s.Scheme
	if scheme == "" {
		scheme = "http"
	}

	req := &authv3.AttributeContext_Request{
		Http: &authv3.AttributeContext_HttpRequest{
			Method:  method,
			Path:    s.Path,
			Host:    s.Host,
			Scheme:  scheme,
			Headers: s.Headers,
		},
	}
	if !s.Time.IsZero() {
		req.Time = timestamppb.New(s.Time)
	}

	attrs := &authv3.AttributeContext{
		Request:           req,
		ContextExtensions: s.Extensions,
	}
	if s.Source != "" {
		attrs.Source = socketPeer(s.Source, s.SourcePort)
	}
	if s.SNI != "" {
		attrs.TlsSession = &authv3.AttributeContext_TLSSession{Sni: s.SNI}
	}

	return &authv3.CheckRequest{Attributes: attrs}
}

func socketPeer(address string, port uint32) *authv3.AttributeContext_Peer {
	return &authv3.AttributeContext_Peer{
		Address: &corev3.Address{
			Address: &corev3.Address_SocketAddress{
				SocketAddress: &corev3.SocketAddress{
					Address:       address,
					PortSpecifier: &corev3.SocketAddress_PortValue{PortValue: port},
				},
			},
		},
	}
}
