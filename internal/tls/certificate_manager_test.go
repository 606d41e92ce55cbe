package tls

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePair(t *testing.T, dir, commonName string) (string, string) {
	t.Helper()
	certPEM, keyPEM, err := GenerateSelfSignedCertificate(CertificateGenerationOptions{
		CommonName: commonName,
		KeySize:    1024,
	})
	require.NoError(t, err)

	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	require.NoError(t, WriteCertificateFiles(certPEM, keyPEM, certFile, keyFile))
	return certFile, keyFile
}

func TestCertificateReloader_Load(t *testing.T) {
	certFile, keyFile := writePair(t, t.TempDir(), "authz.local")

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	require.NoError(t, err)

	cert, err := r.GetCertificate(&tls.ClientHelloInfo{ServerName: "authz.local"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Equal(t, "authz.local", cert.Leaf.Subject.CommonName)

	cfg := r.ServerConfig(0)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.GetCertificate)
}

func TestCertificateReloader_Errors(t *testing.T) {
	_, err := NewCertificateReloader("", "key.pem", nil)
	require.Error(t, err)

	dir := t.TempDir()
	_, err = NewCertificateReloader(filepath.Join(dir, "missing.crt"), filepath.Join(dir, "missing.key"), nil)
	require.Error(t, err)
}

func TestCertificateReloader_ReloadKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, "first")

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	require.NoError(t, err)

	require.NoError(t, WriteCertificateFiles([]byte("garbage"), []byte("garbage"), certFile, keyFile))
	require.Error(t, r.Reload())
	assert.Equal(t, "first", r.Certificate().Leaf.Subject.CommonName)

	writePair(t, dir, "second")
	require.NoError(t, r.Reload())
	assert.Equal(t, "second", r.Certificate().Leaf.Subject.CommonName)
}

func TestCertificateReloader_Watch(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, "before")

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx, nil))

	writePair(t, dir, "after")

	assert.Eventually(t, func() bool {
		return r.Certificate().Leaf.Subject.CommonName == "after"
	}, 5*time.Second, 50*time.Millisecond)
}
