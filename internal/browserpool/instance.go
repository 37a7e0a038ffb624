package browserpool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NewContext launches a new browser context. origin is "" for an ephemeral
// (non-persistent) context, or the target origin when cfg.PersistSession
// is set — in which case the context's Chrome profile directory is rooted
// under cfg.StorageStateDir/<origin-hash>, so cookies and localStorage
// survive across leases and restarts without any manual CDP state sync.
func NewContext(id int, origin string, cfg *Config, logger *zap.Logger) (*Context, error) {
	now := time.Now().UTC()
	bc := &Context{
		ID:           id,
		origin:       origin,
		createdAt:    now,
		logger:       logger,
		status:       int32(StatusIdle),
		lastUsedNano: now.UnixNano(),
	}

	if err := bc.launch(cfg); err != nil {
		return nil, fmt.Errorf("browserpool: launch context %d: %w", id, err)
	}

	if err := bc.Warmup(cfg); err != nil {
		bc.logger.Warn("browser context warmup failed", zap.Int("context_id", id), zap.Error(err))
	}

	return bc, nil
}

func (bc *Context) launch(cfg *Config) error {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	}

	if cfg.Stealth {
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
	}

	if cfg.PersistSession && bc.origin != "" {
		opts = append(opts, chromedp.UserDataDir(profileDir(cfg.StorageStateDir, bc.origin)))
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	bc.allocatorCtx, bc.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	bc.ctx, bc.cancel = chromedp.NewContext(bc.allocatorCtx)

	if err := chromedp.Run(bc.ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	if err := chromedp.Run(bc.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		bc.browserVersion = product
		return nil
	})); err != nil {
		bc.logger.Warn("failed to capture browser version", zap.Int("context_id", bc.ID), zap.Error(err))
	}

	return nil
}

// profileDir derives a stable per-origin profile directory name so that
// distinct origins never share a Chrome user-data-dir.
func profileDir(root, origin string) string {
	sum := sha256.Sum256([]byte(origin))
	return filepath.Join(root, hex.EncodeToString(sum[:])[:16])
}

func (bc *Context) Warmup(cfg *Config) error {
	url := cfg.WarmupURL
	if url == "" {
		url = "about:blank"
	}
	ctx, cancel := context.WithTimeout(bc.ctx, cfg.WarmupTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("warmup navigation failed: %w", err)
	}
	return nil
}

func (bc *Context) IsAlive() bool {
	if Status(atomic.LoadInt32(&bc.status)) == StatusDead {
		return false
	}
	ctx, cancel := context.WithTimeout(bc.ctx, 5*time.Second)
	defer cancel()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := browser.GetVersion().Do(ctx)
		return err
	}))
	return err == nil
}

func (bc *Context) Age() time.Duration {
	return time.Now().UTC().Sub(bc.createdAt)
}

func (bc *Context) ShouldRestart(cfg *Config) bool {
	if int(atomic.LoadInt32(&bc.requestsDone)) >= cfg.RestartAfterCount {
		return true
	}
	return bc.Age() >= cfg.RestartAfterTime
}

func (bc *Context) Restart(cfg *Config) error {
	bc.logger.Info("restarting browser context",
		zap.Int("context_id", bc.ID), zap.Int32("requests_done", bc.GetRequestsDone()), zap.Duration("age", bc.Age()))

	if err := bc.Terminate(); err != nil {
		bc.logger.Warn("error terminating context during restart", zap.Int("context_id", bc.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	atomic.StoreInt32(&bc.requestsDone, 0)
	bc.createdAt = now
	atomic.StoreInt64(&bc.lastUsedNano, now.UnixNano())
	atomic.StoreInt32(&bc.status, int32(StatusIdle))

	if err := bc.launch(cfg); err != nil {
		atomic.StoreInt32(&bc.status, int32(StatusDead))
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	if err := bc.Warmup(cfg); err != nil {
		bc.logger.Warn("warmup failed after restart", zap.Int("context_id", bc.ID), zap.Error(err))
	}
	return nil
}

func (bc *Context) Terminate() error {
	atomic.StoreInt32(&bc.status, int32(StatusDead))
	if bc.cancel != nil {
		bc.cancel()
	}
	if bc.allocatorCancel != nil {
		bc.allocatorCancel()
	}
	return nil
}

func (bc *Context) IncrementRequests() {
	atomic.AddInt32(&bc.requestsDone, 1)
	atomic.StoreInt64(&bc.lastUsedNano, time.Now().UTC().UnixNano())
}

// Navigate returns a fresh chromedp context (a new tab) for one navigation
// under this browser context. It does the same in ephemeral and persistent
// mode; what persistent mode keeps across leases is the browser context
// itself, not the tab.
func (bc *Context) Navigate() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(bc.ctx)
}

func (bc *Context) GetStatus() Status            { return Status(atomic.LoadInt32(&bc.status)) }
func (bc *Context) SetStatus(s Status)            { atomic.StoreInt32(&bc.status, int32(s)) }
func (bc *Context) GetRequestsDone() int32        { return atomic.LoadInt32(&bc.requestsDone) }
func (bc *Context) GetLastUsed() time.Time        { return time.Unix(0, atomic.LoadInt64(&bc.lastUsedNano)) }
func (bc *Context) GetBrowserVersion() string     { return bc.browserVersion }
func (bc *Context) Origin() string                { return bc.origin }
