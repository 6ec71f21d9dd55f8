// File: internal/browser/hosted.go
// Client for the hosted browser-session provisioning service. The service
// exposes a factory + teardown pair; everything past the connect endpoint is
// standard CDP over websocket.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HostedProvider provisions sessions from a remote browser fleet.
type HostedProvider struct {
	cfg    config.HostedConfig
	client *http.Client
	logger *zap.Logger
}

// NewHostedProvider builds a provider against the configured endpoint.
func NewHostedProvider(cfg config.HostedConfig, logger *zap.Logger) *HostedProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HostedProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("hosted_provider"),
	}
}

type createSessionRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

type createSessionResponse struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
}

// Create asks the service for a new browser instance and connects a remote
// allocator to it.
func (p *HostedProvider) Create(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(createSessionRequest{ProjectID: p.cfg.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session create request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("session create returned %d: %s", resp.StatusCode, snippet)
	}

	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" || created.ConnectURL == "" {
		return nil, fmt.Errorf("session create response missing id or connectUrl")
	}

	// The allocator must outlive the caller's provisioning context; its
	// lifetime is the session's, ended by allocCancel.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), created.ConnectURL)

	s := &Session{
		ID:          created.ID,
		Endpoint:    created.ConnectURL,
		CreatedAt:   time.Now(),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	s.closeRemote = func(closeCtx context.Context) error {
		return p.closeRemote(closeCtx, created.ID)
	}

	p.logger.Debug("Provisioned hosted session", zap.String("session_id", created.ID))
	return s, nil
}

// Close disconnects and tears down the remote instance.
func (p *HostedProvider) Close(ctx context.Context, s *Session) error {
	return s.close(ctx)
}

func (p *HostedProvider) closeRemote(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.cfg.Endpoint+"/v1/sessions/"+id, nil)
	if err != nil {
		return err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("session close request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("session close returned %d", resp.StatusCode)
	}
	return nil
}
