package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/config"
	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.BrowserDriver = (*CDPDriver)(nil)

// CredentialProvider resolves login credentials for an account. Credential
// storage itself is outside this component.
type CredentialProvider func(accountID string) (user, password string, err error)

// CDPDriver drives a real Chrome instance over the DevTools protocol.
type CDPDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	navTimeout time.Duration
	creds      CredentialProvider
	log        *zerolog.Logger
}

const (
	loginURL          = "https://www.linkedin.com/login"
	challengeFragment = "/checkpoint/challenge"
	notFoundFragment  = "/404"
)

// goneMarkers are the banner texts LinkedIn shows when a posting or profile
// has been removed. Matched case-insensitively against the page body.
var goneMarkers = []string{
	"no longer accepting applications",
	"this job is no longer available",
	"this page doesn't exist",
	"page not found",
}

// targetGone reports whether the loaded page says the target was removed
// rather than failing to render.
func targetGone(location, body string) bool {
	if strings.Contains(location, notFoundFragment) {
		return true
	}
	body = strings.ToLower(body)
	for _, marker := range goneMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func NewCDPDriver(ctx context.Context, cfg config.BrowserConfig, creds CredentialProvider, logger *zerolog.Logger) (*CDPDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a missing Chrome binary fails here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	drvLog := logger.With().Str("component", "CDPDriver").Logger()
	return &CDPDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		navTimeout:  cfg.NavTimeout,
		creds:       creds,
		log:         &drvLog,
	}, nil
}

func (d *CDPDriver) Close() {
	d.cancel()
	d.allocCancel()
}

func (d *CDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.browserCtx, d.navTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrNavigationTimeout
		}
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *CDPDriver) Navigate(ctx context.Context, url string) error {
	var location, body string
	err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.Location(&location),
		chromedp.Text("body", &body, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return err
	}
	if strings.Contains(location, challengeFragment) {
		d.log.Warn().Str("url", location).Msg("detection challenge page")
		return domain.ErrDetectionChallenge
	}
	if targetGone(location, body) {
		d.log.Info().Str("url", url).Str("location", location).Msg("target removed")
		return fmt.Errorf("%w: %s", domain.ErrTargetGone, url)
	}
	return nil
}

func (d *CDPDriver) Extract(ctx context.Context, specs []adapter.SelectorSpec) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		var nodes []*cdp.Node
		if err := d.run(ctx, chromedp.Nodes(spec.Selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			if spec.Optional {
				out[spec.Name] = ""
				continue
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrElementNotFound, spec.Selector)
		}
		var text string
		if err := d.run(ctx, chromedp.Text(spec.Selector, &text, chromedp.ByQuery)); err != nil {
			return nil, err
		}
		out[spec.Name] = strings.TrimSpace(text)
	}
	return out, nil
}

func (d *CDPDriver) SubmitForm(ctx context.Context, fields []adapter.FormField) (adapter.Confirmation, error) {
	actions := make([]chromedp.Action, 0, len(fields)+1)
	var submitSel string
	for _, f := range fields {
		if f.Value == "" {
			// Zero-value fields are treated as the submit control.
			submitSel = f.Selector
			continue
		}
		actions = append(actions,
			chromedp.WaitVisible(f.Selector, chromedp.ByQuery),
			chromedp.SendKeys(f.Selector, f.Value, chromedp.ByQuery),
		)
	}
	if submitSel == "" {
		return adapter.Confirmation{}, fmt.Errorf("%w: no submit control in field set", domain.ErrInvalidArgument)
	}
	actions = append(actions, chromedp.Click(submitSel, chromedp.ByQuery))

	if err := d.run(ctx, actions...); err != nil {
		return adapter.Confirmation{}, err
	}

	var location, banner string
	_ = d.run(ctx,
		chromedp.Location(&location),
		chromedp.Text("body", &banner, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if strings.Contains(location, challengeFragment) {
		return adapter.Confirmation{}, domain.ErrDetectionChallenge
	}
	return adapter.Confirmation{Reference: location, Message: firstLine(banner)}, nil
}

func (d *CDPDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *CDPDriver) Authenticate(ctx context.Context, accountID string) ([]model.Cookie, error) {
	user, pass, err := d.creds(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}

	var location string
	err = d.run(ctx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible("#username", chromedp.ByID),
		chromedp.SendKeys("#username", user, chromedp.ByID),
		chromedp.SendKeys("#password", pass, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.Contains(location, challengeFragment):
		return nil, domain.ErrDetectionChallenge
	case strings.Contains(location, "/login"):
		return nil, domain.ErrAuthenticationFailed
	}

	var raw []*network.Cookie
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, model.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: time.Unix(int64(c.Expires), 0),
		})
	}
	d.log.Info().Str("account", accountID).Int("cookies", len(cookies)).Msg("authenticated")
	return cookies, nil
}

func (d *CDPDriver) RestoreCookies(ctx context.Context, cookies []model.Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			expires := cdp.TimeSinceEpoch(c.Expires)
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithExpires(&expires).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
