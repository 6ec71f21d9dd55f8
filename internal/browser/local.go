// File: internal/browser/local.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
)

// LocalProvider launches a headless Chrome process per session. It exists so
// the tool can run against a workstation's browser without the hosted fleet.
type LocalProvider struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLocalProvider builds a provider that launches processes locally.
func NewLocalProvider(cfg config.BrowserConfig, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{cfg: cfg, logger: logger.Named("local_provider")}
}

// Create launches a browser process and verifies it responds before handing
// the session out.
func (p *LocalProvider) Create(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.allocatorOptions()...)

	// Verify the browser starts and is responsive before handing it out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTab := chromedp.NewContext(testCtx)
	err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"))
	cancelTab()
	cancelTest()
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s := &Session{
		ID:          uuid.New().String(),
		Endpoint:    "local",
		CreatedAt:   time.Now(),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	p.logger.Debug("Launched local browser", zap.String("session_id", s.ID))
	return s, nil
}

// Close terminates the browser process.
func (p *LocalProvider) Close(ctx context.Context, s *Session) error {
	return s.close(ctx)
}

// allocatorOptions assembles the flags for a quiet, configurable instance.
func (p *LocalProvider) allocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions[:] {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", p.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", p.cfg.Headless),
		chromedp.Flag("mute-audio", true),
	)
	if p.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.cfg.UserAgent))
	}

	// Custom arguments from the config file, "--flag" or "--flag=value".
	for _, arg := range p.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}
