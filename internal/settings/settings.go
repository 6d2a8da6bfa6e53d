// Package settings holds the per-installation configuration of the payment
// plugins and the sources it is loaded from. Every document is checked
// against an embedded JSON schema before it is used or written.
package settings

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/checkout-gateway/internal/gateway/quaestur"
	"github.com/yourorg/checkout-gateway/internal/gateway/stripecheckout"
	"github.com/yourorg/checkout-gateway/internal/monitor"
)

//go:embed schema.json
var schemaJSON string

// ErrInvalid is wrapped by every schema violation.
var ErrInvalid = errors.New("settings: invalid document")

// Store is the storefront the return callbacks are served from.
type Store struct {
	Location string `json:"location"`
}

// Quaestur configures the Quaestur gateway.
type Quaestur struct {
	Enabled         bool   `json:"enabled"`
	APIURL          string `json:"apiUrl"`
	APIClientID     string `json:"apiClientId"`
	APIClientSecret string `json:"apiClientSecret"`
}

// StripeCheckout configures the Stripe Checkout gateway.
type StripeCheckout struct {
	Enabled      bool   `json:"enabled"`
	APISecretKey string `json:"apiSecretKey"`
	Currency     string `json:"currency,omitempty"`
	APIBaseURL   string `json:"apiBaseUrl,omitempty"`
}

// Settings is one settings document.
type Settings struct {
	Store          Store          `json:"store"`
	Quaestur       Quaestur       `json:"quaestur"`
	StripeCheckout StripeCheckout `json:"stripeCheckout"`
}

// StoreLocation returns the store location with exactly one trailing slash.
func (s Settings) StoreLocation() string {
	return strings.TrimRight(strings.TrimSpace(s.Store.Location), "/") + "/"
}

// QuaesturConfig maps the document onto the Quaestur client config.
func (s Settings) QuaesturConfig() quaestur.Config {
	return quaestur.Config{
		APIURL:       s.Quaestur.APIURL,
		ClientID:     s.Quaestur.APIClientID,
		ClientSecret: s.Quaestur.APIClientSecret,
	}
}

// StripeCheckoutConfig maps the document onto the Stripe client config.
func (s Settings) StripeCheckoutConfig() stripecheckout.Config {
	return stripecheckout.Config{
		SecretKey: s.StripeCheckout.APISecretKey,
		Currency:  s.StripeCheckout.Currency,
		BaseURL:   s.StripeCheckout.APIBaseURL,
	}
}

// Source loads and saves settings.
type Source interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

var (
	contractOnce sync.Once
	contract     *monitor.ContractMonitor
	contractErr  error
)

func schemaMonitor() (*monitor.ContractMonitor, error) {
	contractOnce.Do(func() {
		contract, contractErr = monitor.NewContractMonitorFromString(schemaJSON)
	})
	return contract, contractErr
}

// Validate checks s against the settings schema.
func Validate(s Settings) error {
	cm, err := schemaMonitor()
	if err != nil {
		return err
	}
	valid, errs, err := cm.ValidateValue(s)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: %s", ErrInvalid, monitor.FormatErrors(errs))
	}
	return nil
}

// Parse validates and decodes a raw settings document.
func Parse(raw []byte) (Settings, error) {
	cm, err := schemaMonitor()
	if err != nil {
		return Settings{}, err
	}
	valid, errs, err := cm.Validate(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !valid {
		return Settings{}, fmt.Errorf("%w: %s", ErrInvalid, monitor.FormatErrors(errs))
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s, nil
}

// FileSource reads a settings file and re-reads it whenever its modification
// time changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	cached  Settings
	modTime time.Time
	loaded  bool
}

// NewFileSource returns a source for path. The file is read on first Load.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load implements Source.
func (f *FileSource) Load(_ context.Context) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: stat %s: %w", f.path, err)
	}
	if f.loaded && info.ModTime().Equal(f.modTime) {
		return f.cached, nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", f.path, err)
	}
	s, err := Parse(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: %s: %w", f.path, err)
	}
	f.cached, f.modTime, f.loaded = s, info.ModTime(), true
	return s, nil
}

// Save implements Source. The file is replaced atomically.
func (f *FileSource) Save(_ context.Context, s Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("settings: replace %s: %w", f.path, err)
	}
	// force a re-read so cached state always matches the file on disk
	f.loaded = false
	return nil
}

// StaticSource serves settings held in memory.
type StaticSource struct {
	mu sync.RWMutex
	s  Settings
}

// NewStaticSource returns a source serving s.
func NewStaticSource(s Settings) *StaticSource {
	return &StaticSource{s: s}
}

// Load implements Source.
func (st *StaticSource) Load(_ context.Context) (Settings, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s, nil
}

// Save implements Source.
func (st *StaticSource) Save(_ context.Context, s Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
	return nil
}
