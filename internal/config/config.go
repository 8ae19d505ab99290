package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// Check types.
const (
	TypeValueRequired      = "value_required"
	TypeMTDCost            = "mtd_cost"
	TypeMoreAvailableTotal = "more_available_total"
	TypeCEIGrade           = "cei_grade"
	TypeElementExists      = "element_exists"
)

// Fallback strategies.
const (
	StrategyScanLabels = "scan_labels"
	StrategyNearAnchor = "near_anchor"
	StrategyEC2NearAWS = "ec2_near_aws"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s"
// or from a bare integer number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var n int
		if err := value.Decode(&n); err != nil {
			return err
		}
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Locator is a configured element query.
type Locator struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

// Fallback selects the heuristic used when primary locators come up empty.
type Fallback struct {
	Strategy  string   `yaml:"strategy"`
	LabelKeys []string `yaml:"label_keys"`
	Target    string   `yaml:"target"`
	Anchor    string   `yaml:"anchor"`
}

// Check describes a single dashboard check.
type Check struct {
	Name          string            `yaml:"name"`
	URL           string            `yaml:"url"`
	Type          string            `yaml:"type"`
	Locators      []Locator         `yaml:"locators"`
	Fallback      *Fallback         `yaml:"js_fallback"`
	Metadata      map[string]string `yaml:"metadata"`
	LoginURL      string            `yaml:"login_url"`
	LoginUsername string            `yaml:"login_username"`
	LoginPassword string            `yaml:"login_password"`
	ClearCookies  bool              `yaml:"clear_cookies"`
}

// Defaults holds run-wide settings.
type Defaults struct {
	Site           string              `yaml:"site"`
	Company        string              `yaml:"company"`
	LoginURL       string              `yaml:"login_url"`
	Timeout        Duration            `yaml:"timeout"`
	RenderRetry    Duration            `yaml:"render_retry"`
	LocatorTimeout Duration            `yaml:"locator_timeout"`
	PollInterval   Duration            `yaml:"poll_interval"`
	ValueWait      map[string]Duration `yaml:"value_wait"`
	LabelKeys      []string            `yaml:"label_keys"`
}

// ValueWaitFor returns how long to poll a matched element's text for the given
// check type.
func (d Defaults) ValueWaitFor(checkType string) time.Duration {
	if w, ok := d.ValueWait[checkType]; ok {
		return w.Duration
	}
	switch checkType {
	case TypeMTDCost:
		return 30 * time.Second
	case TypeCEIGrade:
		return 15 * time.Second
	case TypeMoreAvailableTotal:
		return 0
	default:
		return d.RenderRetry.Duration
	}
}

// CredentialProfile maps a host substring to the environment variables that
// hold its SSO credentials.
type CredentialProfile struct {
	HostContains string `yaml:"host_contains"`
	UsernameEnv  string `yaml:"username_env"`
	PasswordEnv  string `yaml:"password_env"`
}

// TenantSwitch names a page that needs the active tenant switched to Target
// before checking.
type TenantSwitch struct {
	URLContains string `yaml:"url_contains"`
	Target      string `yaml:"target"`
}

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	WebhookURL string   `yaml:"webhook_url"`
	Cooldown   Duration `yaml:"cooldown"`
	Title      string   `yaml:"title"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig holds spreadsheet report settings.
type ReportConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// ArtifactsConfig holds screenshot and debug dump settings.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// ScheduleConfig holds periodic run settings.
type ScheduleConfig struct {
	Interval Duration `yaml:"interval"`
}

// BrowserConfig holds browser launch settings.
type BrowserConfig struct {
	Headless     *bool  `yaml:"headless"`
	UserDataDir  string `yaml:"user_data_dir"`
	Bin          string `yaml:"bin"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	LocatorDebug bool   `yaml:"locator_debug"`
}

// Config is the root application configuration.
type Config struct {
	Version       string                       `yaml:"version"`
	Defaults      Defaults                     `yaml:"defaults"`
	MetadataByURL map[string]map[string]string `yaml:"metadata_by_url"`
	Checks        []Check                      `yaml:"checks"`
	Credentials   []CredentialProfile          `yaml:"credentials"`
	TenantSwitch  []TenantSwitch               `yaml:"tenant_switch"`
	Alerts        AlertsConfig                 `yaml:"alerts"`
	Server        ServerConfig                 `yaml:"server"`
	Storage       StorageConfig                `yaml:"storage"`
	Report        ReportConfig                 `yaml:"report"`
	Artifacts     ArtifactsConfig              `yaml:"artifacts"`
	Schedule      ScheduleConfig               `yaml:"schedule"`
	Browser       BrowserConfig                `yaml:"browser"`

	// Env carries settings read from the process environment.
	Env Env `yaml:"-"`

	digest string
}

// Digest returns the SHA-256 of the canonical JSON form of the config file.
func (c *Config) Digest() string {
	return c.digest
}

var validTypes = map[string]bool{
	TypeValueRequired:      true,
	TypeMTDCost:            true,
	TypeMoreAvailableTotal: true,
	TypeCEIGrade:           true,
	TypeElementExists:      true,
}

var strategyTypes = map[string]string{
	StrategyScanLabels: TypeValueRequired,
	StrategyNearAnchor: TypeElementExists,
	StrategyEC2NearAWS: TypeElementExists,
}

// Load reads, schema-checks, parses, and validates the config file at path,
// then merges environment settings into it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, LoadEnv())
}

// Parse validates and decodes a config document.
func Parse(data []byte, env Env) (*Config, error) {
	doc, err := toJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	canonical, err := jcs.Transform(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	cfg.digest = hex.EncodeToString(sum[:])

	cfg.applyEnv(env)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// toJSON converts a YAML document to JSON for schema validation and hashing.
func toJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}

func (c *Config) applyEnv(env Env) {
	c.Env = env
	if c.Defaults.LoginURL == "" {
		c.Defaults.LoginURL = env.LoginURL
	}
	// YAML values win over the environment for timeouts.
	if c.Defaults.Timeout.Duration == 0 {
		c.Defaults.Timeout = Duration{env.Timeout}
	}
	if c.Defaults.RenderRetry.Duration == 0 {
		c.Defaults.RenderRetry = Duration{env.RenderRetry}
	}
	if c.Alerts.Slack.WebhookURL == "" {
		c.Alerts.Slack.WebhookURL = env.SlackWebhookURL
	}
	if c.Browser.Headless == nil {
		h := env.Headless
		c.Browser.Headless = &h
	}
	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = env.UserDataDir
	}
	if env.LocatorDebug {
		c.Browser.LocatorDebug = true
	}
}

func (c *Config) applyDefaults() {
	if c.MetadataByURL == nil {
		c.MetadataByURL = map[string]map[string]string{}
	}
	if c.Defaults.Timeout.Duration == 0 {
		c.Defaults.Timeout = Duration{30 * time.Second}
	}
	if c.Defaults.RenderRetry.Duration == 0 {
		c.Defaults.RenderRetry = Duration{15 * time.Second}
	}
	if c.Defaults.LocatorTimeout.Duration == 0 {
		c.Defaults.LocatorTimeout = Duration{10 * time.Second}
	}
	if c.Defaults.PollInterval.Duration == 0 {
		c.Defaults.PollInterval = Duration{time.Second}
	}
	if c.Alerts.Slack.Title == "" {
		c.Alerts.Slack.Title = "OpsNow360 Health Check"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "dashprobe.db"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "."
	}
	if c.Report.Prefix == "" {
		c.Report.Prefix = "global_health_check_report"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "."
	}
	if c.Schedule.Interval.Duration == 0 {
		c.Schedule.Interval = Duration{time.Hour}
	}
	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = 1080
	}
	for i := range c.Checks {
		c.Checks[i].Type = strings.ToLower(strings.TrimSpace(c.Checks[i].Type))
		if c.Checks[i].Type == "" {
			c.Checks[i].Type = TypeValueRequired
		}
		if fb := c.Checks[i].Fallback; fb != nil && fb.Strategy == "" {
			c.Checks[i].Fallback = nil
		}
	}
}

func (c *Config) validate() error {
	if len(c.Checks) == 0 {
		return fmt.Errorf("at least one check must be configured")
	}

	names := make(map[string]bool, len(c.Checks))
	for i, chk := range c.Checks {
		if chk.Name == "" {
			return fmt.Errorf("check[%d]: name is required", i)
		}
		if names[chk.Name] {
			return fmt.Errorf("duplicate check name %q", chk.Name)
		}
		names[chk.Name] = true

		if chk.URL == "" {
			return fmt.Errorf("check %q: url is required", chk.Name)
		}
		if !validTypes[chk.Type] {
			return fmt.Errorf("check %q: invalid type %q", chk.Name, chk.Type)
		}
		for j, loc := range chk.Locators {
			switch strings.ToLower(strings.TrimSpace(loc.Kind)) {
			case "", "xpath", "css", "css-selector", "css_selector", "selector":
			default:
				return fmt.Errorf("check %q: locator[%d]: invalid kind %q", chk.Name, j, loc.Kind)
			}
		}
		if fb := chk.Fallback; fb != nil {
			want, ok := strategyTypes[fb.Strategy]
			if !ok {
				return fmt.Errorf("check %q: unknown js_fallback strategy %q", chk.Name, fb.Strategy)
			}
			if want != chk.Type {
				return fmt.Errorf("check %q: js_fallback strategy %q requires type %q", chk.Name, fb.Strategy, want)
			}
			if fb.Strategy == StrategyNearAnchor && (fb.Target == "" || fb.Anchor == "") {
				return fmt.Errorf("check %q: near_anchor fallback requires target and anchor", chk.Name)
			}
		}
	}

	for i, ts := range c.TenantSwitch {
		if ts.URLContains == "" || ts.Target == "" {
			return fmt.Errorf("tenant_switch[%d]: url_contains and target are required", i)
		}
	}
	for i, cp := range c.Credentials {
		if cp.HostContains == "" {
			return fmt.Errorf("credentials[%d]: host_contains is required", i)
		}
	}
	return nil
}
