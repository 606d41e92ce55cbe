// Package attributes builds the normalized request snapshot the policy pipeline reads
// from an envoy ext_authz CheckRequest.
package attributes

import (
	"strings"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"

	"github.com/polisai/polis-authz/pkg/domain"
)

// FromCheckRequest validates the check request and converts it into an
// AttributeContext. It fails with domain.ErrMissingAttributes when the attribute
// bundle is absent and domain.ErrMissingHTTPRequest when the HTTP request is absent.
// Every other field is optional.
func FromCheckRequest(req *authv3.CheckRequest) (domain.AttributeContext, error) {
	attrs := req.GetAttributes()
	if attrs == nil {
		return domain.AttributeContext{}, domain.ErrMissingAttributes
	}

	httpReq := attrs.GetRequest().GetHttp()
	if httpReq == nil {
		return domain.AttributeContext{}, domain.ErrMissingHTTPRequest
	}

	ac := domain.AttributeContext{
		Request: domain.HTTPRequest{
			ID:       httpReq.GetId(),
			Method:   httpReq.GetMethod(),
			Path:     httpReq.GetPath(),
			Host:     httpReq.GetHost(),
			Scheme:   httpReq.GetScheme(),
			Protocol: httpReq.GetProtocol(),
			Size:     httpReq.GetSize(),
			Body:     requestBody(httpReq),
			Headers:  normalizeHeaders(httpReq.GetHeaders()),
		},
		Source:            peer(attrs.GetSource()),
		Destination:       peer(attrs.GetDestination()),
		ContextExtensions: copyMap(attrs.GetContextExtensions()),
	}

	if ts := attrs.GetRequest().GetTime(); ts != nil {
		ac.Request.ReceivedAt = ts.AsTime()
	}
	if tlsSession := attrs.GetTlsSession(); tlsSession != nil {
		ac.TLSSession = &domain.TLSSession{SNI: tlsSession.GetSni()}
	}

	return ac, nil
}

// normalizeHeaders lower-cases header names. Envoy already sends lower-case keys for
// HTTP/2 but not every gateway does; later duplicates of a folded name win.
func normalizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[strings.ToLower(key)] = value
	}
	return out
}

func requestBody(httpReq *authv3.AttributeContext_HttpRequest) string {
	if body := httpReq.GetBody(); body != "" {
		return body
	}
	return string(httpReq.GetRawBody())
}

func peer(p *authv3.AttributeContext_Peer) *domain.Peer {
	if p == nil {
		return nil
	}
	out := &domain.Peer{Principal: p.GetPrincipal()}
	if sock := p.GetAddress().GetSocketAddress(); sock != nil {
		out.Address = sock.GetAddress()
		out.Port = sock.GetPortValue()
	} else if pipe := p.GetAddress().GetPipe(); pipe != nil {
		out.Address = pipe.GetPath()
	}
	return out
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
