package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ruslanmv/chimera/pkg/logging"
)

// Dispatcher validates and executes computer-use tool calls against live
// sessions. One dispatch per session runs at a time; dispatches against
// different sessions run in parallel.
type Dispatcher struct {
	manager        *Manager
	allowedDomains []string
	log            *logging.Logger
}

// NewDispatcher creates a tool dispatcher. An empty allowedDomains list
// disables navigation filtering.
func NewDispatcher(manager *Manager, allowedDomains []string, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		manager:        manager,
		allowedDomains: allowedDomains,
		log:            log,
	}
}

// Execute runs one tool against the provider's session. Validation failures
// (unknown tool, malformed args, blocked domain) never touch the page; the
// session state only changes when the page itself misbehaves.
func (d *Dispatcher) Execute(ctx context.Context, provider string, tool Tool, args map[string]interface{}) (ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.manager.ToolTimeout())
	defer cancel()

	var result ToolResult
	var run func(ctx context.Context, page PageDriver) (ToolResult, error)

	switch tool {
	case ToolGoto:
		target, err := d.gotoTarget(args)
		if err != nil {
			return ToolResult{}, err
		}
		run = func(ctx context.Context, page PageDriver) (ToolResult, error) {
			if err := page.Goto(ctx, target); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return ToolResult{}, WrapError(KindNavigationTimeout, err, "navigation to %s timed out", target)
				}
				return ToolResult{}, fmt.Errorf("navigation to %s failed: %w", target, err)
			}
			title, _ := page.Title(ctx)
			return ToolResult{
				OK:      true,
				Message: fmt.Sprintf("navigated to %s", target),
				Data:    map[string]interface{}{"url": page.URL(), "title": title},
			}, nil
		}

	case ToolClick:
		selector, err := stringArg(args, "selector")
		if err != nil {
			return ToolResult{}, err
		}
		run = func(ctx context.Context, page PageDriver) (ToolResult, error) {
			if err := d.resolveOne(ctx, page, selector); err != nil {
				return ToolResult{}, err
			}
			if err := page.Click(ctx, selector); err != nil {
				return ToolResult{}, execErr(err, "click on %s", selector)
			}
			return ToolResult{OK: true, Message: fmt.Sprintf("clicked %s", selector)}, nil
		}

	case ToolType:
		selector, err := stringArg(args, "selector")
		if err != nil {
			return ToolResult{}, err
		}
		text, err := stringArg(args, "text")
		if err != nil {
			return ToolResult{}, err
		}
		clear, err := boolArg(args, "clear")
		if err != nil {
			return ToolResult{}, err
		}
		run = func(ctx context.Context, page PageDriver) (ToolResult, error) {
			if err := d.resolveOne(ctx, page, selector); err != nil {
				return ToolResult{}, err
			}
			// Fill replaces existing content; Type appends with key events.
			var typeErr error
			if clear {
				typeErr = page.Fill(ctx, selector, text)
			} else {
				typeErr = page.Type(ctx, selector, text)
			}
			if typeErr != nil {
				return ToolResult{}, execErr(typeErr, "typing into %s", selector)
			}
			return ToolResult{OK: true, Message: fmt.Sprintf("typed %d characters into %s", len(text), selector)}, nil
		}

	case ToolScroll:
		dy, err := intArg(args, "dy", 400)
		if err != nil {
			return ToolResult{}, err
		}
		run = func(ctx context.Context, page PageDriver) (ToolResult, error) {
			if err := page.Scroll(ctx, dy); err != nil {
				return ToolResult{}, execErr(err, "scroll by %d", dy)
			}
			return ToolResult{OK: true, Message: fmt.Sprintf("scrolled by %d", dy), Data: map[string]interface{}{"dy": dy}}, nil
		}

	case ToolWait:
		ms, err := floatArg(args, "ms", 1000)
		if err != nil {
			return ToolResult{}, err
		}
		if ms <= 0 || ms > float64(d.manager.ToolTimeout().Milliseconds()) {
			return ToolResult{}, NewError(KindInvalidToolCall, "ms must be in (0, %d]", d.manager.ToolTimeout().Milliseconds())
		}
		run = func(ctx context.Context, page PageDriver) (ToolResult, error) {
			select {
			case <-ctx.Done():
				return ToolResult{}, WrapError(KindExecutionTimeout, ctx.Err(), "wait interrupted")
			case <-time.After(time.Duration(ms) * time.Millisecond):
			}
			return ToolResult{OK: true, Message: fmt.Sprintf("waited %.0fms", ms)}, nil
		}

	default:
		return ToolResult{}, NewError(KindInvalidToolCall, "unknown tool %q; supported: %s", tool, strings.Join(SupportedTools(), ", "))
	}

	err := d.manager.withPage(ctx, provider, []State{StateActive, StateAwaitingLogin}, func(page PageDriver) error {
		var err error
		result, err = run(ctx, page)
		return err
	})
	if err != nil {
		d.log.Warnf("tool %s on %s failed: %v", tool, provider, err)
		return ToolResult{}, err
	}

	d.log.Debugf("tool %s on %s: %s", tool, provider, result.Message)
	return result, nil
}

// gotoTarget validates the goto URL and enforces the domain allowlist.
func (d *Dispatcher) gotoTarget(args map[string]interface{}) (string, error) {
	raw, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", NewError(KindInvalidToolCall, "url must be absolute http(s), got %q", raw)
	}

	if !d.domainAllowed(parsed.Hostname()) {
		return "", NewError(KindDomainBlocked, "domain %q is not in the allowlist", parsed.Hostname())
	}
	return raw, nil
}

// domainAllowed matches the host exactly or as a subdomain of an allowlist
// entry. An empty allowlist allows everything.
func (d *Dispatcher) domainAllowed(host string) bool {
	if len(d.allowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, domain := range d.allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// resolveOne requires the selector to match exactly one element.
func (d *Dispatcher) resolveOne(ctx context.Context, page PageDriver, selector string) error {
	n, err := page.Count(ctx, selector)
	if err != nil {
		return execErr(err, "resolving %s", selector)
	}
	switch {
	case n == 0:
		return NewError(KindLocatorNotFound, "no element matches %q", selector)
	case n > 1:
		return NewError(KindLocatorAmbiguous, "%d elements match %q", n, selector)
	}
	return nil
}

// execErr categorizes a page action failure.
func execErr(err error, format string, v ...interface{}) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindExecutionTimeout, err, format, v...)
	}
	return fmt.Errorf(format+": %w", append(v, err)...)
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", NewError(KindInvalidToolCall, "missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", NewError(KindInvalidToolCall, "argument %q must be a non-empty string", key)
	}
	return s, nil
}

func intArg(args map[string]interface{}, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64: // JSON numbers decode as float64
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, NewError(KindInvalidToolCall, "argument %q must be a number", key)
	}
}

func floatArg(args map[string]interface{}, key string, fallback float64) (float64, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, NewError(KindInvalidToolCall, "argument %q must be a number", key)
	}
}

func boolArg(args map[string]interface{}, key string) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, NewError(KindInvalidToolCall, "argument %q must be a boolean", key)
	}
	return b, nil
}
