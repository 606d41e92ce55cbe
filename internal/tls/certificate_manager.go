package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single certificate rotation produces.
const reloadDelay = 100 * time.Millisecond

// CertificateReloader holds the listener certificate and swaps it when the files on
// disk change. The zero value is not usable; construct with NewCertificateReloader.
type CertificateReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewCertificateReloader loads the key pair once. A load failure here is fatal to the
// caller; later reload failures keep serving the previous certificate.
func NewCertificateReloader(certFile, keyFile string, logger *slog.Logger) (*CertificateReloader, error) {
	if strings.TrimSpace(certFile) == "" || strings.TrimSpace(keyFile) == "" {
		return nil, errors.New("tls: cert_file and key_file are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &CertificateReloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		logger:   logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the key pair from disk.
func (r *CertificateReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tls: load key pair %s: %w", r.certFile, err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("tls: parse certificate %s: %w", r.certFile, err)
	}
	if time.Now().After(leaf.NotAfter) {
		return fmt.Errorf("tls: certificate %s expired at %s", r.certFile, leaf.NotAfter.Format(time.RFC3339))
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	r.logger.Info("Certificate loaded",
		"cert_file", r.certFile,
		"subject", leaf.Subject.CommonName,
		"dns_names", leaf.DNSNames,
		"not_after", leaf.NotAfter)
	return nil
}

// Certificate returns the certificate currently served.
func (r *CertificateReloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificate satisfies tls.Config.GetCertificate.
func (r *CertificateReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate(), nil
}

// ServerConfig returns a tls.Config that always presents the current certificate.
func (r *CertificateReloader) ServerConfig(minVersion uint16) *tls.Config {
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: r.GetCertificate,
		NextProtos:     []string{"h2"},
	}
}

// Watch reloads the certificate whenever the cert or key file changes, until ctx is
// done. The parent directories are watched so that atomic symlink swaps, as done by
// kubernetes secret volumes, are seen. onReload is optional.
func (r *CertificateReloader) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}

	go r.watchFiles(ctx, watcher, onReload)
	r.logger.Info("Started watching certificate files", "cert_file", r.certFile, "key_file", r.keyFile)
	return nil
}

func (r *CertificateReloader) watchFiles(ctx context.Context, watcher *fsnotify.Watcher, onReload func(error)) {
	defer watcher.Close()

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			r.logger.Debug("Certificate file changed", "file", event.Name, "operation", event.Op.String())

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDelay, func() {
				err := r.Reload()
				if err != nil {
					r.logger.Error("Failed to reload certificate after file change", "error", err)
				}
				if onReload != nil {
					onReload(err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Certificate file watcher error", "error", err)
		}
	}
}

func (r *CertificateReloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	if name == r.certFile || name == r.keyFile {
		return true
	}
	// kubernetes rotates secrets by swapping the ..data symlink.
	return filepath.Base(name) == "..data"
}
