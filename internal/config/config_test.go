package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/dashprobe/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func parse(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Parse([]byte(content), config.Env{})
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTemp(t, `
version: 1
defaults:
  site: "OpsNow360"
  company: "Bespin"
  timeout: 20
  render_retry: "10s"
metadata_by_url:
  "https://asset.example.com/summary":
    service: "Asset"
    menu: "Summary"
checks:
  - name: "Asset Total Servers"
    url: "https://asset.example.com/summary"
    type: "value_required"
    locators:
      - kind: "xpath"
        value: "//em[@class='value']"
      - kind: "css"
        value: "div.count em.value"
    js_fallback:
      strategy: "scan_labels"
      label_keys: ["total server"]
  - name: "Cost MTD"
    url: "https://cost.example.com/dashboard"
    type: "mtd_cost"
alerts:
  slack:
    webhook_url: "https://hooks.slack.com/services/x"
    cooldown: "5m"
storage:
  path: "test.db"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(cfg.Checks))
	}
	chk := cfg.Checks[0]
	if chk.Name != "Asset Total Servers" {
		t.Errorf("unexpected name %q", chk.Name)
	}
	if len(chk.Locators) != 2 || chk.Locators[1].Kind != "css" {
		t.Errorf("unexpected locators %+v", chk.Locators)
	}
	if chk.Fallback == nil || chk.Fallback.Strategy != config.StrategyScanLabels {
		t.Errorf("unexpected fallback %+v", chk.Fallback)
	}
	if cfg.Defaults.Timeout.Duration != 20*time.Second {
		t.Errorf("expected integer timeout in seconds, got %v", cfg.Defaults.Timeout)
	}
	if cfg.Defaults.RenderRetry.Duration != 10*time.Second {
		t.Errorf("expected render_retry 10s, got %v", cfg.Defaults.RenderRetry)
	}
	if cfg.Alerts.Slack.Cooldown.Duration != 5*time.Minute {
		t.Errorf("unexpected cooldown %v", cfg.Alerts.Slack.Cooldown)
	}
	if cfg.Storage.Path != "test.db" {
		t.Errorf("unexpected storage path: %q", cfg.Storage.Path)
	}
	if len(cfg.Digest()) != 64 {
		t.Errorf("expected sha256 hex digest, got %q", cfg.Digest())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Checks[0].Type != config.TypeValueRequired {
		t.Errorf("expected default type value_required, got %q", cfg.Checks[0].Type)
	}
	if cfg.Defaults.Timeout.Duration != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Defaults.Timeout)
	}
	if cfg.Defaults.RenderRetry.Duration != 15*time.Second {
		t.Errorf("expected default render_retry 15s, got %v", cfg.Defaults.RenderRetry)
	}
	if cfg.Defaults.LocatorTimeout.Duration != 10*time.Second {
		t.Errorf("expected default locator timeout 10s, got %v", cfg.Defaults.LocatorTimeout)
	}
	if cfg.Storage.Path != "dashprobe.db" {
		t.Errorf("expected default storage path dashprobe.db, got %q", cfg.Storage.Path)
	}
	if cfg.Report.Prefix != "global_health_check_report" {
		t.Errorf("unexpected report prefix %q", cfg.Report.Prefix)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %q", cfg.Server.Address)
	}
	if cfg.Browser.Headless == nil {
		t.Error("expected headless to be resolved from env")
	}
}

func TestValueWaitFor(t *testing.T) {
	cfg, err := parse(t, `
defaults:
  render_retry: 12
  value_wait:
    cei_grade: "3s"
checks:
  - name: "a"
    url: "https://example.com"
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := cfg.Defaults
	cases := map[string]time.Duration{
		config.TypeMTDCost:            30 * time.Second,
		config.TypeCEIGrade:           3 * time.Second,
		config.TypeValueRequired:      12 * time.Second,
		config.TypeMoreAvailableTotal: 0,
	}
	for typ, want := range cases {
		if got := d.ValueWaitFor(typ); got != want {
			t.Errorf("ValueWaitFor(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestLoad_MissingName(t *testing.T) {
	_, err := parse(t, `
checks:
  - url: "https://example.com"
`)
	if err == nil {
		t.Fatal("expected error for missing name, got nil")
	}
}

func TestLoad_MissingURL(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: ""
`)
	if err == nil {
		t.Fatal("expected error for empty url, got nil")
	}
}

func TestLoad_InvalidType(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    type: "screenshot_diff"
`)
	if err == nil {
		t.Fatal("expected error for invalid type, got nil")
	}
	if !strings.Contains(err.Error(), "type") {
		t.Errorf("error should mention 'type': %v", err)
	}
}

func TestLoad_InvalidLocatorKind(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    locators:
      - kind: "id"
        value: "main"
`)
	if err == nil {
		t.Fatal("expected error for invalid locator kind, got nil")
	}
	if !strings.Contains(err.Error(), "kind") {
		t.Errorf("error should mention 'kind': %v", err)
	}
}

func TestLoad_FallbackMustMatchType(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    type: "mtd_cost"
    js_fallback:
      strategy: "scan_labels"
`)
	if err == nil {
		t.Fatal("expected error for mismatched fallback, got nil")
	}
	if !strings.Contains(err.Error(), "requires type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownFallback(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    js_fallback:
      strategy: "ocr"
`)
	if err == nil {
		t.Fatal("expected error for unknown fallback, got nil")
	}
}

func TestLoad_NearAnchorNeedsTokens(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    type: "element_exists"
    js_fallback:
      strategy: "near_anchor"
      target: "ec2"
`)
	if err == nil {
		t.Fatal("expected error for near_anchor without anchor, got nil")
	}
}

func TestLoad_EmptyChecks(t *testing.T) {
	_, err := parse(t, `
checks: []
`)
	if err == nil {
		t.Fatal("expected error for empty checks, got nil")
	}
	if !strings.Contains(err.Error(), "check") {
		t.Errorf("error should mention 'check': %v", err)
	}
}

func TestLoad_DuplicateCheckNames(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com/1"
  - name: "a"
    url: "https://example.com/2"
`)
	if err == nil {
		t.Fatal("expected error for duplicate names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention 'duplicate': %v", err)
	}
}

func TestLoad_SchemaRejectsWrongShape(t *testing.T) {
	_, err := parse(t, `
checks:
  - name: "a"
    url: "https://example.com"
    locators: "//div"
`)
	if err == nil {
		t.Fatal("expected schema error for scalar locators, got nil")
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Errorf("error should come from schema validation: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := parse(t, `
defaults:
  timeout: "soon"
checks:
  - name: "a"
    url: "https://example.com"
`)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestDigest_StableAcrossFormatting(t *testing.T) {
	a, err := parse(t, "checks:\n  - name: a\n    url: https://example.com\n")
	if err != nil {
		t.Fatal(err)
	}
	b, err := parse(t, "checks:\n- url: \"https://example.com\"\n  name: \"a\"\n")
	if err != nil {
		t.Fatal(err)
	}
	if a.Digest() != b.Digest() {
		t.Errorf("expected equal digests, got %s and %s", a.Digest(), b.Digest())
	}
}

func TestLoad_EnvSettings(t *testing.T) {
	t.Setenv("LOGIN_URL", "https://console.example.com")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/env")
	t.Setenv("HEADLESS", "false")
	t.Setenv("TIMEOUT", "45")
	t.Setenv("XERTICA_USERNAME", "tenant-user")

	path := writeTemp(t, `
defaults:
  render_retry: 5
checks:
  - name: "a"
    url: "https://example.com"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.LoginURL != "https://console.example.com" {
		t.Errorf("expected login url from env, got %q", cfg.Defaults.LoginURL)
	}
	if cfg.Alerts.Slack.WebhookURL != "https://hooks.slack.com/services/env" {
		t.Errorf("expected webhook from env, got %q", cfg.Alerts.Slack.WebhookURL)
	}
	if cfg.Browser.Headless == nil || *cfg.Browser.Headless {
		t.Error("expected headless=false from env")
	}
	if cfg.Defaults.Timeout.Duration != 45*time.Second {
		t.Errorf("expected timeout from env, got %v", cfg.Defaults.Timeout)
	}
	if cfg.Defaults.RenderRetry.Duration != 5*time.Second {
		t.Errorf("expected yaml render_retry to win over env, got %v", cfg.Defaults.RenderRetry)
	}
	if got := cfg.Env.Get("XERTICA_USERNAME"); got != "tenant-user" {
		t.Errorf("expected arbitrary env lookup, got %q", got)
	}
}

func TestParse_ExampleConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "global_config.example.yaml"))
	if err != nil {
		t.Fatalf("reading example config: %v", err)
	}
	cfg, err := config.Parse(data, config.Env{})
	if err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if len(cfg.Checks) != 4 {
		t.Errorf("expected 4 checks, got %d", len(cfg.Checks))
	}
	if got := cfg.Defaults.ValueWaitFor(config.TypeCEIGrade); got != 10*time.Second {
		t.Errorf("expected cei_grade wait 10s, got %v", got)
	}
	if cfg.Alerts.Slack.Cooldown.Duration != 30*time.Minute {
		t.Errorf("expected 30m cooldown, got %v", cfg.Alerts.Slack.Cooldown.Duration)
	}
}

func TestLoadEnv_BooleanSpellings(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"y", true},
		{"On", true},
		{"0", false},
		{"no", false},
		{"off", false},
		{"false", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HEADLESS", tt.value)
			t.Setenv("LOCATOR_DEBUG", tt.value)

			env := config.LoadEnv()
			if env.Headless != tt.want {
				t.Errorf("HEADLESS=%q: expected %v, got %v", tt.value, tt.want, env.Headless)
			}
			if env.LocatorDebug != tt.want {
				t.Errorf("LOCATOR_DEBUG=%q: expected %v, got %v", tt.value, tt.want, env.LocatorDebug)
			}
		})
	}
}

func TestLoadEnv_BooleanDefaults(t *testing.T) {
	t.Setenv("HEADLESS", "")
	t.Setenv("LOCATOR_DEBUG", "")

	env := config.LoadEnv()
	if !env.Headless {
		t.Error("expected headless by default")
	}
	if env.LocatorDebug {
		t.Error("expected locator debug off by default")
	}
}
