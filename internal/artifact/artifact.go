// Package artifact writes debug captures (screenshots, page HTML, JSON dumps)
// under a single root directory.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	screenshotDir = "screenshots"
	htmlDir       = "debug_html"
	jsonDir       = "debug_json"

	// TimeLayout is the timestamp suffix of every artifact file name.
	TimeLayout = "2006-01-02_15-04-05"

	maxNameLen = 100
)

// Source captures the current page. Both methods may fail when the browser
// is gone.
type Source interface {
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Store writes artifacts. A Store without a Source still produces empty
// placeholder files so every failure has something to point at.
type Store struct {
	root   string
	source Source
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Store rooted at dir. source may be nil. Pass nil logger to use
// the default logger.
func New(dir string, source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	return &Store{root: dir, source: source, now: time.Now, logger: logger}
}

// SetSource attaches the page to capture from.
func (s *Store) SetSource(src Source) {
	s.source = src
}

// SetClock overrides the clock used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\n\r\t]+`)
	underscores = regexp.MustCompile(`__+`)
)

// SafeFilename turns an arbitrary label into a portable file name stem.
func SafeFilename(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_ ")
	if r := []rune(s); len(r) > maxNameLen {
		s = string(r[:maxNameLen])
	}
	if s == "" {
		return "file"
	}
	return s
}

func (s *Store) path(dir, name, ext string) (string, error) {
	full := filepath.Join(s.root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", full, err)
	}
	file := fmt.Sprintf("%s_%s.%s", SafeFilename(name), s.now().Format(TimeLayout), ext)
	return filepath.Join(full, file), nil
}

// write stores data at path, falling back to an empty file.
func (s *Store) write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("writing artifact", "path", path, "error", err)
	}
}

// Screenshot captures the page as PNG and returns the file path.
func (s *Store) Screenshot(ctx context.Context, name string) string {
	path, err := s.path(screenshotDir, name, "png")
	if err != nil {
		s.logger.Warn("screenshot skipped", "name", name, "error", err)
		return filepath.Join(s.root, screenshotDir, SafeFilename(name)+".png")
	}
	var data []byte
	if s.source != nil {
		data, err = s.source.Screenshot(ctx)
		if err != nil {
			s.logger.Warn("capturing screenshot", "name", name, "error", err)
			data = nil
		}
	}
	s.write(path, data)
	s.logger.Info("screenshot saved", "path", path)
	return path
}

// HTML dumps the page source and returns the file path.
func (s *Store) HTML(ctx context.Context, name string) string {
	path, err := s.path(htmlDir, name, "html")
	if err != nil {
		s.logger.Warn("html dump skipped", "name", name, "error", err)
		return filepath.Join(s.root, htmlDir, SafeFilename(name)+".html")
	}
	var html string
	if s.source != nil {
		html, err = s.source.HTML(ctx)
		if err != nil {
			s.logger.Warn("reading page html", "name", name, "error", err)
			html = ""
		}
	}
	s.write(path, []byte(html))
	return path
}

// JSON writes v as indented JSON and returns the file path.
func (s *Store) JSON(name string, v any) string {
	path, err := s.path(jsonDir, name, "json")
	if err != nil {
		s.logger.Warn("json dump skipped", "name", name, "error", err)
		return filepath.Join(s.root, jsonDir, SafeFilename(name)+".json")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Warn("encoding json dump", "name", name, "error", err)
		data = nil
	}
	s.write(path, data)
	return path
}
