// Package session gets the browser onto a check's page: console login,
// Keycloak single sign-on, tenant switching and a bounded render wait.
// Navigation and login problems are logged and never stop a check.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/extract"
	"github.com/hazz-dev/dashprobe/internal/poll"
)

// Navigator is the subset of the browser the orchestrator drives.
type Navigator interface {
	extract.Evaluator
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Has(ctx context.Context, selector string) bool
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	URL(ctx context.Context) string
	ClearCookies(ctx context.Context) error
}

// Keycloak login form.
const (
	usernameField = "[name=username]"
	passwordField = "[name=password]"
	loginButton   = "#kc-login"
)

// renderedSelector matches the elements dashboards show once data arrived.
const renderedSelector = "em.value, .value, .num, .number, .count, .am5-layer"

// ErrNoCredentials is returned when a login form is shown but no username or
// password is configured for the page.
var ErrNoCredentials = errors.New("keycloak credentials not found")

// Credentials is a username and password pair.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) complete() bool {
	return c.Username != "" && c.Password != ""
}

// Options configures an Orchestrator.
type Options struct {
	// LoginURL is the console login page opened before every check that does
	// not name its own.
	LoginURL string
	// Global credentials used when no profile matches.
	Global   Credentials
	Profiles []config.CredentialProfile
	Tenants  []config.TenantSwitch
	// Lookup resolves the environment variables named by credential profiles.
	Lookup func(name string) string

	// Timeout bounds the wait for the console URL after login.
	Timeout time.Duration
	// Settle is how long to look for a login form after navigation.
	Settle time.Duration
	// RenderWait bounds the wait for value-bearing elements.
	RenderWait time.Duration
	// TenantVerify bounds tenant verification; the post-reload check gets
	// half as long again.
	TenantVerify time.Duration
	PollInterval time.Duration
}

// OptionsFromConfig derives orchestrator options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LoginURL:     cfg.Defaults.LoginURL,
		Global:       Credentials{Username: cfg.Env.Username, Password: cfg.Env.Password},
		Profiles:     cfg.Credentials,
		Tenants:      cfg.TenantSwitch,
		Lookup:       cfg.Env.Get,
		Timeout:      cfg.Defaults.Timeout.Duration,
		RenderWait:   cfg.Defaults.RenderRetry.Duration,
		PollInterval: cfg.Defaults.PollInterval.Duration,
	}
}

// Orchestrator prepares the page for each check.
type Orchestrator struct {
	nav    Navigator
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator. Pass nil logger to use the default logger.
func New(nav Navigator, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.RenderWait <= 0 {
		opts.RenderWait = 15 * time.Second
	}
	if opts.TenantVerify <= 0 {
		opts.TenantVerify = 4 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Lookup == nil {
		opts.Lookup = func(string) string { return "" }
	}
	return &Orchestrator{nav: nav, opts: opts, logger: logger}
}

// LoginConsole opens the console login page, signs in when a login form is
// shown and waits for the browser to land on the console host. It is a no-op
// without a login URL.
func (o *Orchestrator) LoginConsole(ctx context.Context) error {
	if o.opts.LoginURL == "" {
		o.logger.Info("no login url, skipping console login")
		return nil
	}
	o.logger.Info("opening console login", "url", o.opts.LoginURL)
	if err := o.nav.Navigate(ctx, o.opts.LoginURL); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	if o.awaitLoginForm(ctx) {
		o.logger.Info("logging in to console")
		if err := o.login(ctx, o.opts.LoginURL, Credentials{}); err != nil {
			return fmt.Errorf("console login: %w", err)
		}
	}

	if host := hostOf(o.opts.LoginURL); host != "" {
		ok := poll.Until(ctx, o.opts.PollInterval, o.opts.Timeout, func() bool {
			return strings.Contains(o.nav.URL(ctx), host)
		})
		if !ok {
			o.logger.Warn("console url not reached", "host", host, "url", o.nav.URL(ctx))
		}
	}
	return nil
}

// Prepare opens the check's login page (if any) and target page, signing in
// where needed, runs the tenant switch when the page asks for one and waits
// for the page to render. Failures are logged; the check goes ahead anyway.
func (o *Orchestrator) Prepare(ctx context.Context, chk config.Check) {
	override := Credentials{Username: chk.LoginUsername, Password: chk.LoginPassword}
	clearFirst := chk.ClearCookies

	if loginURL := firstNonEmpty(chk.LoginURL, o.opts.LoginURL); loginURL != "" {
		if err := o.OpenWithSSO(ctx, loginURL, override, clearFirst); err != nil {
			o.logger.Warn("login page failed, continuing", "check", chk.Name, "url", loginURL, "error", err)
		}
		clearFirst = false
	}

	if err := o.OpenWithSSO(ctx, chk.URL, override, clearFirst); err != nil {
		o.logger.Warn("navigation failed, continuing", "check", chk.Name, "url", chk.URL, "error", err)
	}

	if t, ok := o.tenantFor(ctx, chk.URL); ok {
		switched := o.SwitchTenant(ctx, t.Target)
		o.logger.Info("tenant switch attempted", "check", chk.Name, "target", t.Target, "verified", switched)
		picked := o.SelectOption(ctx, t.Target)
		o.logger.Info("tenant option selection attempted", "check", chk.Name, "clicked", picked)
	}

	o.waitRendered(ctx)
}

// OpenWithSSO navigates to url and, if a Keycloak form shows up, signs in.
// override wins over profile and global credentials when complete.
func (o *Orchestrator) OpenWithSSO(ctx context.Context, pageURL string, override Credentials, clearCookies bool) error {
	if clearCookies {
		if err := o.nav.ClearCookies(ctx); err != nil {
			o.logger.Warn("clearing cookies", "error", err)
		}
	}
	if err := o.nav.Navigate(ctx, pageURL); err != nil {
		return err
	}
	if o.awaitLoginForm(ctx) {
		o.logger.Info("keycloak detected, logging in", "url", pageURL)
		if err := o.login(ctx, pageURL, override); err != nil {
			return err
		}
	}
	o.waitRendered(ctx)
	return nil
}

// OnKeycloak reports whether the Keycloak login form is on the page.
func (o *Orchestrator) OnKeycloak(ctx context.Context) bool {
	return o.nav.Has(ctx, usernameField) && o.nav.Has(ctx, passwordField) && o.nav.Has(ctx, loginButton)
}

func (o *Orchestrator) awaitLoginForm(ctx context.Context) bool {
	return poll.Until(ctx, o.opts.PollInterval, o.opts.Settle, func() bool {
		return o.OnKeycloak(ctx)
	})
}

func (o *Orchestrator) login(ctx context.Context, pageURL string, override Credentials) error {
	creds := o.CredentialsFor(pageURL, override)
	if !creds.complete() {
		return ErrNoCredentials
	}
	if err := o.nav.Fill(ctx, usernameField, creds.Username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := o.nav.Fill(ctx, passwordField, creds.Password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	if err := o.nav.Click(ctx, loginButton); err != nil {
		return fmt.Errorf("submitting login: %w", err)
	}
	return nil
}

// CredentialsFor picks the credentials for pageURL: a complete override,
// then the first profile whose host_contains matches, then the global pair.
// Fields a profile leaves unset fall back to the global pair.
func (o *Orchestrator) CredentialsFor(pageURL string, override Credentials) Credentials {
	if override.complete() {
		return override
	}
	lower := strings.ToLower(pageURL)
	for _, p := range o.opts.Profiles {
		if p.HostContains == "" || !strings.Contains(lower, strings.ToLower(p.HostContains)) {
			continue
		}
		return Credentials{
			Username: firstNonEmpty(o.opts.Lookup(p.UsernameEnv), o.opts.Global.Username),
			Password: firstNonEmpty(o.opts.Lookup(p.PasswordEnv), o.opts.Global.Password),
		}
	}
	return o.opts.Global
}

func (o *Orchestrator) tenantFor(ctx context.Context, pageURL string) (config.TenantSwitch, bool) {
	if len(o.opts.Tenants) == 0 {
		return config.TenantSwitch{}, false
	}
	lower := strings.ToLower(pageURL)
	current := strings.ToLower(o.nav.URL(ctx))
	for _, t := range o.opts.Tenants {
		needle := strings.ToLower(t.URLContains)
		if needle == "" {
			continue
		}
		if strings.Contains(lower, needle) || strings.Contains(current, needle) {
			return t, true
		}
	}
	return config.TenantSwitch{}, false
}

func (o *Orchestrator) waitRendered(ctx context.Context) {
	ok := poll.Until(ctx, o.opts.PollInterval, o.opts.RenderWait, func() bool {
		return o.nav.Has(ctx, renderedSelector)
	})
	if !ok {
		o.logger.Debug("page did not render value elements in time")
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
