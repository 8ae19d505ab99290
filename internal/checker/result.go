package checker

import (
	"time"

	"github.com/hazz-dev/dashprobe/internal/config"
)

// Status is the outcome of a check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Record is one row of the health-check report.
type Record struct {
	Site       string `json:"site"`
	Company    string `json:"company"`
	Service    string `json:"service"`
	Menu       string `json:"menu"`
	URL        string `json:"url"`
	Check      string `json:"check"`
	Locator    string `json:"locator"`
	Value      string `json:"value"`
	Status     Status `json:"status"`
	Screenshot string `json:"screenshot"`

	Type      string    `json:"type"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// NewRecord returns a record carrying the check identity and its resolved
// metadata. Callers fill in the outcome fields.
func NewRecord(meta map[string]string, url, name string) Record {
	return Record{
		Site:      meta[config.MetaSite],
		Company:   meta[config.MetaCompany],
		Service:   meta[config.MetaService],
		Menu:      meta[config.MetaMenu],
		URL:       url,
		Check:     name,
		Status:    StatusFail,
		CheckedAt: time.Now(),
	}
}
