package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/session"
)

// fakeNav simulates a dashboard behind a Keycloak form.
type fakeNav struct {
	keycloak bool
	rendered bool
	url      string
	navErr   map[string]error

	navigated []string
	filled    map[string]string
	clicked   []string
	cleared   int
	reloads   int

	tenant        string
	switchWorks   bool
	reloadTenant  string
	scripts       []string
	optionClicked bool
}

func newFakeNav() *fakeNav {
	return &fakeNav{filled: map[string]string{}, navErr: map[string]error{}}
}

func (f *fakeNav) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if err := f.navErr[url]; err != nil {
		return err
	}
	f.url = url
	return nil
}

func (f *fakeNav) Reload(ctx context.Context) error {
	f.reloads++
	if f.reloadTenant != "" {
		f.tenant = f.reloadTenant
	}
	return nil
}

func (f *fakeNav) Has(ctx context.Context, selector string) bool {
	switch selector {
	case "[name=username]", "[name=password]", "#kc-login":
		return f.keycloak
	}
	return f.rendered
}

func (f *fakeNav) Fill(ctx context.Context, selector, text string) error {
	f.filled[selector] = text
	return nil
}

func (f *fakeNav) Click(ctx context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	if selector == "#kc-login" {
		f.keycloak = false
	}
	return nil
}

func (f *fakeNav) URL(ctx context.Context) string { return f.url }

func (f *fakeNav) ClearCookies(ctx context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeNav) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	f.scripts = append(f.scripts, js)
	switch js {
	case session.TenantStatusJS:
		return json.Marshal(f.tenant)
	case session.TenantSwitchJS:
		if f.switchWorks {
			f.tenant = strings.ToLower(args[0].(string))
		}
		return json.Marshal(true)
	case session.SelectOptionJS:
		f.optionClicked = true
		return json.Marshal(true)
	}
	return nil, errors.New("unexpected script")
}

func (f *fakeNav) ran(js string) int {
	n := 0
	for _, s := range f.scripts {
		if s == js {
			n++
		}
	}
	return n
}

func fastOptions() session.Options {
	return session.Options{
		Global:       session.Credentials{Username: "ops", Password: "ops-pw"},
		Timeout:      20 * time.Millisecond,
		Settle:       5 * time.Millisecond,
		RenderWait:   5 * time.Millisecond,
		TenantVerify: 10 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func TestCredentialsFor_Precedence(t *testing.T) {
	opts := fastOptions()
	opts.Profiles = []config.CredentialProfile{
		{HostContains: "tenant-b", UsernameEnv: "B_USER", PasswordEnv: "B_PASS"},
	}
	env := map[string]string{"B_USER": "b-user"}
	opts.Lookup = func(name string) string { return env[name] }
	o := session.New(newFakeNav(), opts, nil)

	got := o.CredentialsFor("https://console.tenant-b.cloud/x", session.Credentials{Username: "me", Password: "pw"})
	if got.Username != "me" || got.Password != "pw" {
		t.Errorf("override should win, got %+v", got)
	}

	got = o.CredentialsFor("https://console.TENANT-B.cloud/x", session.Credentials{Username: "me"})
	if got.Username != "b-user" || got.Password != "ops-pw" {
		t.Errorf("expected profile user with global password fallback, got %+v", got)
	}

	got = o.CredentialsFor("https://console.example.com", session.Credentials{})
	if got.Username != "ops" || got.Password != "ops-pw" {
		t.Errorf("expected global credentials, got %+v", got)
	}
}

func TestOpenWithSSO_LogsIn(t *testing.T) {
	nav := newFakeNav()
	nav.keycloak = true
	o := session.New(nav, fastOptions(), nil)

	if err := o.OpenWithSSO(context.Background(), "https://app.example.com", session.Credentials{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nav.filled["[name=username]"] != "ops" || nav.filled["[name=password]"] != "ops-pw" {
		t.Errorf("unexpected form values %v", nav.filled)
	}
	if len(nav.clicked) != 1 || nav.clicked[0] != "#kc-login" {
		t.Errorf("expected login submit, got %v", nav.clicked)
	}
	if nav.cleared != 0 {
		t.Error("cookies cleared without being asked")
	}
}

func TestOpenWithSSO_NoCredentials(t *testing.T) {
	nav := newFakeNav()
	nav.keycloak = true
	opts := fastOptions()
	opts.Global = session.Credentials{}
	o := session.New(nav, opts, nil)

	err := o.OpenWithSSO(context.Background(), "https://app.example.com", session.Credentials{}, false)
	if !errors.Is(err, session.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestOpenWithSSO_NoLoginForm(t *testing.T) {
	nav := newFakeNav()
	nav.rendered = true
	o := session.New(nav, fastOptions(), nil)

	if err := o.OpenWithSSO(context.Background(), "https://app.example.com", session.Credentials{}, true); err != nil {
		t.Fatal(err)
	}
	if len(nav.filled) != 0 {
		t.Errorf("no login expected, got %v", nav.filled)
	}
	if nav.cleared != 1 {
		t.Errorf("expected cookies cleared once, got %d", nav.cleared)
	}
}

func TestPrepare_LoginThenTarget(t *testing.T) {
	nav := newFakeNav()
	opts := fastOptions()
	opts.LoginURL = "https://console.example.com/login"
	o := session.New(nav, opts, nil)

	o.Prepare(context.Background(), config.Check{
		Name:         "a",
		URL:          "https://app.example.com/summary",
		ClearCookies: true,
	})
	want := []string{"https://console.example.com/login", "https://app.example.com/summary"}
	if strings.Join(nav.navigated, ",") != strings.Join(want, ",") {
		t.Errorf("navigated %v, want %v", nav.navigated, want)
	}
	if nav.cleared != 1 {
		t.Errorf("expected cookies cleared once before the first page, got %d", nav.cleared)
	}
}

func TestPrepare_PerCheckLoginAndNavigationErrors(t *testing.T) {
	nav := newFakeNav()
	nav.navErr["https://own-login.example.com"] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	opts := fastOptions()
	opts.LoginURL = "https://console.example.com/login"
	o := session.New(nav, opts, nil)

	o.Prepare(context.Background(), config.Check{
		Name:     "a",
		URL:      "https://app.example.com",
		LoginURL: "https://own-login.example.com",
	})
	want := []string{"https://own-login.example.com", "https://app.example.com"}
	if strings.Join(nav.navigated, ",") != strings.Join(want, ",") {
		t.Errorf("navigated %v, want %v", nav.navigated, want)
	}
}

func TestPrepare_TenantSwitch(t *testing.T) {
	nav := newFakeNav()
	nav.tenant = "bespin global"
	nav.switchWorks = true
	opts := fastOptions()
	opts.Tenants = []config.TenantSwitch{{URLContains: "/asset/scheduler", Target: "Acme Clients"}}
	o := session.New(nav, opts, nil)

	o.Prepare(context.Background(), config.Check{Name: "a", URL: "https://asset.example.cloud/asset/scheduler"})
	if nav.tenant != "acme clients" {
		t.Errorf("tenant not switched: %q", nav.tenant)
	}
	if !nav.optionClicked {
		t.Error("expected option selection after switch")
	}

	nav2 := newFakeNav()
	o2 := session.New(nav2, opts, nil)
	o2.Prepare(context.Background(), config.Check{Name: "b", URL: "https://asset.example.cloud/asset/summary"})
	if len(nav2.scripts) != 0 {
		t.Errorf("tenant switch ran on an unrelated page: %d scripts", len(nav2.scripts))
	}
}

func TestSwitchTenant_AlreadySelected(t *testing.T) {
	nav := newFakeNav()
	nav.tenant = "acme clients (2)"
	o := session.New(nav, fastOptions(), nil)

	if !o.SwitchTenant(context.Background(), "Acme Clients") {
		t.Fatal("expected verified switch")
	}
	if nav.ran(session.TenantSwitchJS) != 0 {
		t.Error("switch script should not run when tenant is already selected")
	}
}

func TestSwitchTenant_ReloadRetry(t *testing.T) {
	nav := newFakeNav()
	nav.tenant = "other"
	nav.reloadTenant = "acme clients"
	o := session.New(nav, fastOptions(), nil)

	if !o.SwitchTenant(context.Background(), "Acme Clients") {
		t.Fatal("expected switch to verify after reload")
	}
	if nav.reloads != 1 {
		t.Errorf("expected one reload, got %d", nav.reloads)
	}
}

func TestSwitchTenant_Fails(t *testing.T) {
	nav := newFakeNav()
	nav.tenant = "other"
	o := session.New(nav, fastOptions(), nil)

	if o.SwitchTenant(context.Background(), "Acme Clients") {
		t.Fatal("expected unverified switch")
	}
	if nav.reloads != 1 {
		t.Errorf("expected exactly one reload, got %d", nav.reloads)
	}
}

func TestLoginConsole(t *testing.T) {
	nav := newFakeNav()
	o := session.New(nav, fastOptions(), nil)
	if err := o.LoginConsole(context.Background()); err != nil {
		t.Fatalf("expected skip without login url: %v", err)
	}
	if len(nav.navigated) != 0 {
		t.Errorf("unexpected navigation %v", nav.navigated)
	}

	nav = newFakeNav()
	nav.keycloak = true
	opts := fastOptions()
	opts.LoginURL = "https://console.example.com/login"
	o = session.New(nav, opts, nil)
	if err := o.LoginConsole(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nav.clicked) != 1 {
		t.Errorf("expected console login submit, got %v", nav.clicked)
	}
}

func TestLoginConsole_NavigationError(t *testing.T) {
	nav := newFakeNav()
	nav.navErr["https://console.example.com/login"] = errors.New("refused")
	opts := fastOptions()
	opts.LoginURL = "https://console.example.com/login"
	o := session.New(nav, opts, nil)

	if err := o.LoginConsole(context.Background()); err == nil {
		t.Fatal("expected error when the login page cannot be opened")
	}
}
