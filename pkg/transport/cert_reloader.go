package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// certReloadDebounce absorbs the burst of events an editor or
// certificate tool produces when replacing both files.
const certReloadDebounce = 200 * time.Millisecond

// CertReloader serves a key pair loaded from disk and reloads it when
// either file changes.
type CertReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	debounce *time.Timer
	reloads  int
}

// NewCertReloader loads the key pair once. A nil logger discards output.
func NewCertReloader(certFile, keyFile string, logger *slog.Logger) (*CertReloader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the key pair from disk. On failure the previous pair stays in use.
func (r *CertReloader) Reload() error {
	cert, err := LoadKeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cert = &cert
	r.reloads++
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Certificate returns the key pair currently served.
func (r *CertReloader) Certificate() tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.cert
}

// Reloads returns how many times a key pair was loaded successfully.
func (r *CertReloader) Reloads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reloads
}

// Watch blocks, reloading the key pair on file changes until ctx is done.
// The directories are watched rather than the files so that atomic
// rename-into-place updates are seen.
func (r *CertReloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	certName := filepath.Clean(r.certFile)
	keyName := filepath.Clean(r.keyFile)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.debounce != nil {
				r.debounce.Stop()
			}
			r.mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if name != certName && name != keyName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("certificate watcher error", "error", err)
		}
	}
}

func (r *CertReloader) scheduleReload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(certReloadDebounce, func() {
		if err := r.Reload(); err != nil {
			r.logger.Error("certificate reload failed, keeping previous certificate", "error", err)
			return
		}
		r.logger.Info("certificate reloaded", "cert", r.certFile)
	})
}
