package browser

import "context"

// PageDriver is the narrow automation surface the manager and dispatcher
// need from a live page. Production uses the Playwright implementation;
// tests substitute fakes so no browser process is launched.
//
// Every method honors ctx deadlines. Implementations translate their own
// timeout failures into context.DeadlineExceeded so callers can categorize
// them uniformly.
type PageDriver interface {
	// Goto navigates to url and waits for the load to settle or ctx to
	// expire.
	Goto(ctx context.Context, url string) error

	// Count returns how many elements match the selector right now.
	Count(ctx context.Context, selector string) (int, error)

	// Click activates the single element matching selector.
	Click(ctx context.Context, selector string) error

	// Fill replaces the content of the matching input element.
	Fill(ctx context.Context, selector, value string) error

	// Type inserts text into the matching element with key events,
	// without clearing existing content.
	Type(ctx context.Context, selector, text string) error

	// Scroll moves the viewport by dy pixels (positive is down).
	Scroll(ctx context.Context, dy int) error

	// SetFiles attaches local files to the matching file input.
	SetFiles(ctx context.Context, selector string, paths []string) error

	// TextContents returns the text of every element matching selector.
	TextContents(ctx context.Context, selector string) ([]string, error)

	// Title returns the current page title; used as the liveness probe.
	Title(ctx context.Context) (string, error)

	// URL returns the current page URL.
	URL() string

	// BringToFront raises the page's tab.
	BringToFront(ctx context.Context) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page.
	Close() error
}

// Launcher owns the shared browser process and creates pages for sessions.
type Launcher interface {
	// Start brings up the underlying automation runtime. Idempotent.
	Start() error

	// NewPage opens a fresh page in the shared persistent context.
	NewPage(ctx context.Context) (PageDriver, error)

	// Stop tears down the runtime and every page it created.
	Stop() error
}
