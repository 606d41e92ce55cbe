package domain

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttributeContext_Accessors(t *testing.T) {
	ac := AttributeContext{
		Request: HTTPRequest{
			Method:  "GET",
			Path:    "/api",
			Headers: map[string]string{"user-agent": "curl/8.0"},
		},
		ContextExtensions: map[string]string{"region": "eu-west-1"},
	}

	ua, ok := ac.Header("User-Agent")
	assert.True(t, ok)
	assert.Equal(t, "curl/8.0", ua)

	_, ok = ac.Header("authorization")
	assert.False(t, ok)

	region, ok := ac.Extension("region")
	assert.True(t, ok)
	assert.Equal(t, "eu-west-1", region)

	_, ok = ac.Extension("environment")
	assert.False(t, ok)
	assert.Empty(t, ac.SNI())
}

func TestAttributeContext_ZeroValueIsSafe(t *testing.T) {
	var ac AttributeContext
	_, ok := ac.Header("user-agent")
	assert.False(t, ok)
	_, ok = ac.Extension("environment")
	assert.False(t, ok)
	assert.Empty(t, ac.SNI())
}

func TestAttributeContext_LogValueMasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ac := AttributeContext{
		Request: HTTPRequest{
			Method:     "POST",
			Path:       "/api/orders",
			Host:       "shop.example.com",
			Scheme:     "https",
			Size:       12,
			Body:       `{"secret":1}`,
			ReceivedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Headers: map[string]string{
				"authorization": "Bearer abc.def",
				"accept":        "*/*",
			},
		},
		Source:            &Peer{Address: "10.0.0.7", Port: 51234},
		TLSSession:        &TLSSession{SNI: "shop.example.com"},
		ContextExtensions: map[string]string{"environment": "staging"},
	}
	logger.Info("context", "request", ac)

	out := buf.String()
	assert.Contains(t, out, `"method":"POST"`)
	assert.Contains(t, out, `"authorization: [REDACTED]"`)
	assert.Contains(t, out, `"accept: */*"`)
	assert.Contains(t, out, `"environment=staging"`)
	assert.Contains(t, out, `"source":"10.0.0.7:51234"`)
	assert.Contains(t, out, `"tls_sni":"shop.example.com"`)
	assert.NotContains(t, out, "Bearer abc.def")
	assert.NotContains(t, out, "secret")
}

func TestDecision_Helpers(t *testing.T) {
	d := Decision{
		Allowed:         true,
		HeadersToSet:    map[string]string{"x-region": "eu", "x-authorized-by": "policy-engine"},
		HeadersToRemove: []string{"authorization"},
	}
	assert.Equal(t, []string{"x-authorized-by", "x-region"}, d.SetHeaderNames())
	assert.True(t, d.Removes("authorization"))
	assert.False(t, d.Removes("cookie"))
}
