package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Env holds settings read from environment variables.
type Env struct {
	LoginURL        string
	Username        string
	Password        string
	SlackWebhookURL string
	Headless        bool
	Timeout         time.Duration
	RenderRetry     time.Duration
	UserDataDir     string
	LocatorDebug    bool

	v *viper.Viper
}

// LoadEnv reads the process environment.
func LoadEnv() Env {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("headless", "true")
	v.SetDefault("timeout", 30)
	v.SetDefault("render_retry", 15)
	v.SetDefault("locator_debug", "false")

	return Env{
		LoginURL:        strings.TrimSpace(v.GetString("login_url")),
		Username:        v.GetString("opsnow_username"),
		Password:        v.GetString("opsnow_password"),
		SlackWebhookURL: strings.TrimSpace(v.GetString("slack_webhook_url")),
		Headless:        truthy(v.GetString("headless")),
		Timeout:         time.Duration(v.GetInt("timeout")) * time.Second,
		RenderRetry:     time.Duration(v.GetInt("render_retry")) * time.Second,
		UserDataDir:     strings.TrimSpace(v.GetString("chrome_user_data_dir")),
		LocatorDebug:    truthy(v.GetString("locator_debug")),
		v:               v,
	}
}

// truthy accepts 1, true, yes, y and on in any case.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// Get returns the value of an arbitrary environment variable, e.g. the
// username_env of a credential profile.
func (e Env) Get(name string) string {
	if name == "" || e.v == nil {
		return ""
	}
	return e.v.GetString(strings.ToLower(name))
}
