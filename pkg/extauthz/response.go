package extauthz

import (
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/genproto/googleapis/rpc/code"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"

	"github.com/polisai/polis-authz/pkg/domain"
)

// Diagnostic headers attached to denied responses.
const (
	HeaderAuthDenied = "x-auth-denied"
	HeaderAuthReason = "x-auth-reason"

	deniedBodyPrefix = "Access Denied: "
)

// Translate maps a decision to exactly one of the two ext_authz response shapes.
func Translate(decision domain.Decision) *authv3.CheckResponse {
	if decision.Allowed {
		return AllowResponse(decision)
	}
	return DenyResponse(decision)
}

// AllowResponse builds the OK response: every header to set replaces any existing
// value, and the headers to remove are stripped before forwarding.
func AllowResponse(decision domain.Decision) *authv3.CheckResponse {
	names := decision.SetHeaderNames()
	headers := make([]*corev3.HeaderValueOption, 0, len(names))
	for _, name := range names {
		headers = append(headers, overwrite(name, decision.HeadersToSet[name]))
	}

	return &authv3.CheckResponse{
		Status: &rpcstatus.Status{
			Code:    int32(code.Code_OK),
			Message: decision.Reason,
		},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers:         headers,
				HeadersToRemove: append([]string(nil), decision.HeadersToRemove...),
			},
		},
	}
}

// DenyResponse builds the PERMISSION_DENIED response with a synthesized 403.
func DenyResponse(decision domain.Decision) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &rpcstatus.Status{
			Code:    int32(code.Code_PERMISSION_DENIED),
			Message: decision.Reason,
		},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status: &typev3.HttpStatus{Code: typev3.StatusCode_Forbidden},
				Headers: []*corev3.HeaderValueOption{
					overwrite(HeaderAuthDenied, "true"),
					overwrite(HeaderAuthReason, decision.Reason),
				},
				Body: deniedBodyPrefix + decision.Reason,
			},
		},
	}
}

func overwrite(key, value string) *corev3.HeaderValueOption {
	return &corev3.HeaderValueOption{
		Header:       &corev3.HeaderValue{Key: key, Value: value},
		AppendAction: corev3.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
	}
}
