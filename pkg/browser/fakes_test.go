package browser

import (
	"context"
	"sync"
)

// fakePage is a scriptable PageDriver for tests. Zero value behaves as a
// healthy page with no matching elements.
type fakePage struct {
	mu sync.Mutex

	counts   map[string]int
	texts    map[string][]string
	titleErr error
	gotoErr  error
	clickErr error
	fillErr  error
	typeErr  error

	// clickGate, when set, blocks Click until the channel is closed. Used
	// to hold a session's automation lock from a test goroutine.
	clickGate chan struct{}

	gotoURLs []string
	clicked  []string
	filled   map[string]string
	typed    map[string]string
	files    map[string][]string
	closed   bool

	// ops records completed page actions in order, for assertions about
	// operation interleaving.
	ops []string
}

func newFakePage() *fakePage {
	return &fakePage{
		counts: make(map[string]int),
		texts:  make(map[string][]string),
		filled: make(map[string]string),
		typed:  make(map[string]string),
		files:  make(map[string][]string),
	}
}

func (p *fakePage) setCount(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] = n
}

func (p *fakePage) setTexts(selector string, texts []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[selector] = texts
}

func (p *fakePage) setTitleErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titleErr = err
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.gotoURLs = append(p.gotoURLs, url)
	return nil
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[selector], nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	gate := p.clickGate
	err := p.clickErr
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.clicked = append(p.clicked, selector)
	p.ops = append(p.ops, "click "+selector)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fillErr != nil {
		return p.fillErr
	}
	p.filled[selector] = value
	p.ops = append(p.ops, "fill "+value)
	return nil
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typeErr != nil {
		return p.typeErr
	}
	p.typed[selector] += text
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, dy int) error {
	return nil
}

func (p *fakePage) SetFiles(ctx context.Context, selector string, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[selector] = append(p.files[selector], paths...)
	return nil
}

func (p *fakePage) TextContents(ctx context.Context, selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts[selector]))
	copy(out, p.texts[selector])
	return out, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.titleErr != nil {
		return "", p.titleErr
	}
	return "fake page", nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.gotoURLs) == 0 {
		return "about:blank"
	}
	return p.gotoURLs[len(p.gotoURLs)-1]
}

func (p *fakePage) BringToFront(ctx context.Context) error { return nil }

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (p *fakePage) opLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ops))
	copy(out, p.ops)
	return out
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var _ PageDriver = (*fakePage)(nil)

// fakeLauncher hands out fakePages and records lifecycle calls.
type fakeLauncher struct {
	mu       sync.Mutex
	pages    []*fakePage
	newPages int
	startErr error
	pageErr  error
	stopped  bool
}

func (l *fakeLauncher) Start() error {
	return l.startErr
}

func (l *fakeLauncher) NewPage(ctx context.Context) (PageDriver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pageErr != nil {
		return nil, l.pageErr
	}
	l.newPages++
	page := newFakePage()
	l.pages = append(l.pages, page)
	return page, nil
}

func (l *fakeLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	return nil
}

func (l *fakeLauncher) pageCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newPages
}

func (l *fakeLauncher) lastPage() *fakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pages) == 0 {
		return nil
	}
	return l.pages[len(l.pages)-1]
}

var _ Launcher = (*fakeLauncher)(nil)
