package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher owns the shared persistent Chromium context. One
// launcher serves every browser head; each head gets its own page inside
// the shared profile so login cookies survive restarts.
type PlaywrightLauncher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	browserCtx  playwright.BrowserContext
	userDataDir string
	headless    bool
	started     bool
}

// NewPlaywrightLauncher creates a launcher using the given profile
// directory. Headless should stay false when any head requires interactive
// login.
func NewPlaywrightLauncher(userDataDir string, headless bool) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		userDataDir: userDataDir,
		headless:    headless,
	}
}

// Start installs and runs Playwright, then launches the persistent browser
// context. Idempotent.
func (l *PlaywrightLauncher) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}

	if err := os.MkdirAll(l.userDataDir, 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	// Discard driver output so it doesn't pollute the process streams.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browserCtx, err := pw.Chromium.LaunchPersistentContext(l.userDataDir,
		playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(l.headless),
			Args:     []string{"--disable-blink-features=AutomationControlled"},
			Viewport: &playwright.Size{Width: 1280, Height: 800},
		})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser context: %w", err)
	}

	l.pw = pw
	l.browserCtx = browserCtx
	l.started = true
	return nil
}

// NewPage opens a fresh page in the persistent context.
func (l *PlaywrightLauncher) NewPage(ctx context.Context) (PageDriver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil, fmt.Errorf("launcher not started")
	}

	page, err := l.browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &playwrightPage{page: page}, nil
}

// Stop closes the browser context and the Playwright runtime.
func (l *PlaywrightLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}
	l.started = false

	var errs []error
	if err := l.browserCtx.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := l.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors stopping playwright: %v", errs)
	}
	return nil
}

var _ Launcher = (*PlaywrightLauncher)(nil)

// playwrightPage adapts playwright.Page to the PageDriver surface.
type playwrightPage struct {
	page playwright.Page
}

// timeoutMS converts a context deadline to a Playwright millisecond
// timeout, falling back when no deadline is set.
func timeoutMS(ctx context.Context, fallback time.Duration) float64 {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 1
		}
		return float64(remaining.Milliseconds())
	}
	return float64(fallback.Milliseconds())
}

// mapTimeout normalizes Playwright timeout failures onto the context error
// space so callers categorize them uniformly.
func mapTimeout(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return context.DeadlineExceeded
	}
	return err
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(timeoutMS(ctx, DefaultToolTimeout)),
	})
	return mapTimeout(err)
}

func (p *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeoutMS(ctx, DefaultToolTimeout)),
	})
	return mapTimeout(err)
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(timeoutMS(ctx, DefaultToolTimeout)),
	})
	return mapTimeout(err)
}

func (p *playwrightPage) Type(ctx context.Context, selector, text string) error {
	err := p.page.Locator(selector).First().PressSequentially(text,
		playwright.LocatorPressSequentiallyOptions{
			Delay:   playwright.Float(10),
			Timeout: playwright.Float(timeoutMS(ctx, DefaultToolTimeout)),
		})
	return mapTimeout(err)
}

func (p *playwrightPage) Scroll(ctx context.Context, dy int) error {
	return p.page.Mouse().Wheel(0, float64(dy))
}

func (p *playwrightPage) SetFiles(ctx context.Context, selector string, paths []string) error {
	err := p.page.Locator(selector).First().SetInputFiles(paths)
	return mapTimeout(err)
}

func (p *playwrightPage) TextContents(ctx context.Context, selector string) ([]string, error) {
	return p.page.Locator(selector).AllTextContents()
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) BringToFront(ctx context.Context) error {
	return p.page.BringToFront()
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

var _ PageDriver = (*playwrightPage)(nil)
