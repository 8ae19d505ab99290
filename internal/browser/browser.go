// Package browser drives a single Chromium page through the DevTools
// protocol. A Session is owned by one run and is not safe for concurrent use.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazz-dev/dashprobe/internal/locator"
)

// Options controls how the browser is launched.
type Options struct {
	Headless          bool
	UserDataDir       string
	Bin               string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	LocatorDebug      bool
}

func (o Options) withDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	return o
}

// Session is a launched browser with one page.
type Session struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	tempDir  string
	logger   *slog.Logger
}

// newLauncher builds the launcher for opts using userDataDir as profile.
func newLauncher(o Options, userDataDir string) *launcher.Launcher {
	l := launcher.New().
		Headless(o.Headless).
		UserDataDir(userDataDir).
		NoSandbox(true).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", o.WindowWidth, o.WindowHeight)).
		Set(flags.Flag("ignore-certificate-errors")).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-dev-shm-usage"))
	if o.Bin != "" {
		l = l.Bin(o.Bin)
	}
	return l
}

// Launch starts Chromium and opens a blank page. When no user data directory
// is configured a temporary profile is created and removed by Close.
func Launch(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	s := &Session{opts: opts, logger: logger}

	dir := opts.UserDataDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "dashprobe_chrome_")
		if err != nil {
			return nil, fmt.Errorf("creating browser profile dir: %w", err)
		}
		s.tempDir = tmp
		dir = tmp
	}

	s.launcher = newLauncher(opts, dir).Context(ctx)
	controlURL, err := s.launcher.Launch()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("launching chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.WindowWidth,
		Height:            opts.WindowHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logger.Warn("setting viewport", "error", err)
	}
	s.page = page

	logger.Info("browser started", "headless", opts.Headless, "profile", dir)
	return s, nil
}

// Close shuts the browser down and removes a temporary profile. It is safe to
// call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
		s.browser = nil
		s.page = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
	if s.tempDir != "" {
		if err := os.RemoveAll(s.tempDir); err != nil {
			errs = append(errs, fmt.Errorf("removing browser profile: %w", err))
		}
		s.tempDir = ""
	}
	return errors.Join(errs...)
}

var errNoPage = errors.New("browser page is not available")

func (s *Session) pageCtx(ctx context.Context) (*rod.Page, error) {
	if s.page == nil {
		return nil, errNoPage
	}
	return s.page.Context(ctx), nil
}

type element struct {
	el *rod.Element
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

// Find waits up to timeout for loc to match a visible element.
func (s *Session) Find(ctx context.Context, loc locator.Locator, timeout time.Duration) (locator.Element, error) {
	if s.page == nil {
		return nil, errNoPage
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := s.page.Context(tctx)
	var (
		el  *rod.Element
		err error
	)
	switch loc.Kind {
	case locator.KindCSS:
		el, err = page.Element(loc.Value)
	default:
		el, err = page.ElementX(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", loc, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("waiting for %s to be visible: %w", loc, err)
	}
	return &element{el: el.Context(ctx)}, nil
}

// Eval runs js, a function expression, with args and returns its result as JSON.
func (s *Session) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating script: %w", err)
	}
	return res.Value.MarshalJSON()
}

// Navigate opens url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(s.opts.NavigationTimeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return nil
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(s.opts.NavigationTimeout)
	defer page.CancelTimeout()
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reloading page: %w", err)
	}
	return page.WaitLoad()
}

// Has reports whether selector currently matches an element. It does not wait.
func (s *Session) Has(ctx context.Context, selector string) bool {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return false
	}
	ok, _, err := page.Has(selector)
	return err == nil && ok
}

// Fill replaces the value of the input matching selector.
func (s *Session) Fill(ctx context.Context, selector, text string) error {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return err
	}
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("locating %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("selecting %s: %w", selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("typing into %s: %w", selector, err)
	}
	return nil
}

// Click clicks the element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return err
	}
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("locating %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

// URL returns the current page URL, or "" when it cannot be read.
func (s *Session) URL(ctx context.Context) string {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return ""
	}
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// ClearCookies removes every cookie in the browser.
func (s *Session) ClearCookies(ctx context.Context) error {
	if s.browser == nil {
		return errNoPage
	}
	if err := s.browser.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}
	return nil
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(false, nil)
}

// HTML returns the current page source.
func (s *Session) HTML(ctx context.Context) (string, error) {
	page, err := s.pageCtx(ctx)
	if err != nil {
		return "", err
	}
	return page.HTML()
}

// Match describes one element matched by a locator.
type Match struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

const debugLocatorJS = `(kind, value) => {
  let nodes = [];
  try {
    if (kind === "css") {
      nodes = Array.from(document.querySelectorAll(value));
    } else {
      const it = document.evaluate(value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      for (let i = 0; i < it.snapshotLength; i++) nodes.push(it.snapshotItem(i));
    }
  } catch (e) {
    return { count: -1, matches: [] };
  }
  const matches = nodes.slice(0, 5).map(n => {
    const r = n.getBoundingClientRect ? n.getBoundingClientRect() : { width: 0, height: 0 };
    const st = n.nodeType === 1 ? getComputedStyle(n) : null;
    const visible = !!st && st.display !== "none" && st.visibility !== "hidden" && r.width > 0 && r.height > 0;
    return {
      visible,
      text: (n.innerText || n.textContent || "").trim().slice(0, 120),
      html: (n.outerHTML || "").slice(0, 200)
    };
  });
  return { count: nodes.length, matches };
}`

// DebugLocators logs how many elements each locator matches and what the
// first few look like. It is a no-op unless LocatorDebug is set.
func (s *Session) DebugLocators(ctx context.Context, locs []locator.Locator) {
	if !s.opts.LocatorDebug {
		return
	}
	for _, loc := range locs {
		if strings.TrimSpace(loc.Value) == "" {
			continue
		}
		raw, err := s.Eval(ctx, debugLocatorJS, string(loc.Kind), loc.Value)
		if err != nil {
			s.logger.Debug("locator debug failed", "locator", loc.String(), "error", err)
			continue
		}
		var out struct {
			Count   int     `json:"count"`
			Matches []Match `json:"matches"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			continue
		}
		s.logger.Info("locator debug", "locator", loc.String(), "count", out.Count)
		for i, m := range out.Matches {
			s.logger.Info("locator match", "locator", loc.String(), "index", i, "visible", m.Visible, "text", m.Text, "html", m.HTML)
		}
	}
}
