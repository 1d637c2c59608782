// Package certwatcher reloads the webhook serving certificate when the
// files on disk change, as they do when cert-manager rotates the secret.
package certwatcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

const (
	// Certificates mounted from a Secret can appear after the pod starts,
	// so Start polls for them before watching.
	waitAttempts = 60
	waitInterval = 5 * time.Second
)

// CertWatcher serves the current TLS certificate and reloads it whenever
// the certificate or key file is rewritten.
type CertWatcher struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher  *fsnotify.Watcher
	log      *zap.Logger
	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a certificate watcher for the given certificate and key
// files. The files do not need to exist yet; Start waits for them.
func New(certPath, keyPath string, log *zap.Logger) (*CertWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &CertWatcher{
		certPath: certPath,
		keyPath:  keyPath,
		watcher:  watcher,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Start loads the certificate, waiting for the files to appear if needed,
// then begins watching the certificate directory for changes.
func (cw *CertWatcher) Start(ctx context.Context) error {
	cw.log.Info("Starting certificate watcher",
		zap.String("cert", cw.certPath),
		zap.String("key", cw.keyPath))

	if err := cw.waitForFiles(ctx); err != nil {
		return fmt.Errorf("failed to wait for certificate files: %w", err)
	}

	// Watch the directory rather than the files: Kubernetes secret mounts
	// replace files via symlink swaps, which retire the old inode.
	if err := cw.watcher.Add(filepath.Dir(cw.certPath)); err != nil {
		return fmt.Errorf("failed to watch certificate directory: %w", err)
	}

	go cw.watchLoop(ctx)
	return nil
}

func (cw *CertWatcher) waitForFiles(ctx context.Context) error {
	for i := 0; i < waitAttempts; i++ {
		if _, err := os.Stat(cw.certPath); err == nil {
			if _, err := os.Stat(cw.keyPath); err == nil {
				err := cw.load()
				if err == nil {
					return nil
				}
				cw.log.Warn("Certificate files exist but failed to load, retrying",
					zap.Int("attempt", i+1),
					zap.Error(err))
			}
		}

		if i < waitAttempts-1 {
			cw.log.Info("Waiting for certificate files",
				zap.Int("attempt", i+1),
				zap.Duration("interval", waitInterval))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitInterval):
			}
		}
	}

	return fmt.Errorf("certificate files not loadable after %d attempts: cert=%s, key=%s",
		waitAttempts, cw.certPath, cw.keyPath)
}

func (cw *CertWatcher) load() error {
	certPEM, err := os.ReadFile(cw.certPath)
	if err != nil {
		return fmt.Errorf("failed to read certificate file: %w", err)
	}
	keyPEM, err := os.ReadFile(cw.keyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("failed to create TLS certificate: %w", err)
	}

	cw.mu.Lock()
	cw.cert = &tlsCert
	cw.mu.Unlock()

	if block, _ := pem.Decode(certPEM); block != nil {
		if leaf, err := x509.ParseCertificate(block.Bytes); err == nil {
			cw.log.Info("Certificate loaded",
				zap.String("subject", leaf.Subject.CommonName),
				zap.Time("notAfter", leaf.NotAfter))
		}
	}

	return nil
}

func (cw *CertWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopChan:
			return
		case event := <-cw.watcher.Events:
			cw.handleEvent(event)
		case err := <-cw.watcher.Errors:
			cw.log.Error("Certificate watcher error", zap.Error(err))
		}
	}
}

func (cw *CertWatcher) handleEvent(event fsnotify.Event) {
	if event.Name != cw.certPath && event.Name != cw.keyPath {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	cw.log.Info("Certificate file changed, reloading",
		zap.String("file", event.Name),
		zap.String("operation", event.Op.String()))

	// Brief delay so both halves of a rotated pair land before reload.
	time.Sleep(100 * time.Millisecond)

	if err := cw.load(); err != nil {
		cw.log.Error("Failed to reload certificate", zap.Error(err))
	}
}

// GetCertificate implements tls.Config.GetCertificate.
func (cw *CertWatcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	if cw.cert == nil {
		return nil, fmt.Errorf("no certificate available")
	}
	return cw.cert, nil
}

// Stop stops the watcher and releases its file handles.
func (cw *CertWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		if err := cw.watcher.Close(); err != nil {
			cw.log.Error("Failed to close file watcher", zap.Error(err))
		}
	})
}
