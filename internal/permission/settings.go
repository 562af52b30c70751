package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settingsFile mirrors the on-disk JSON shape under the "permissions" key in
// each of the four settings files this package reads (local, project, user,
// and the system policy file).
type settingsFile struct {
	Permissions struct {
		Allow       []string `json:"allow"`
		Deny        []string `json:"deny"`
		Ask         []string `json:"ask"`
		DefaultMode string   `json:"defaultMode"`
	} `json:"permissions"`
}

// filePaths returns the on-disk location for each file-backed source, in a
// project rooted at dir. Policy settings are read from a fixed system path
// so an administrator can ship deny rules no project or user config can
// override.
func filePaths(dir string) map[Source]string {
	paths := map[Source]string{
		SourceLocal:   filepath.Join(dir, ".kode", "settings.local.json"),
		SourceProject: filepath.Join(dir, ".kode", "settings.json"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths[SourceUser] = filepath.Join(home, ".kode", "settings.json")
	}
	paths[SourcePolicy] = "/etc/kode/policy.json"
	return paths
}

// legacyLocalSettingsPath returns the pre-rename location of the local
// settings file, still honored as a one-time migration source.
func legacyLocalSettingsPath(dir string) string {
	return filepath.Join(dir, ".claude", "settings.local.json")
}

// migrateLegacyLocal copies a legacy .claude/settings.local.json into
// .kode/settings.local.json the first time the new path doesn't exist but
// the old one does, so a project's existing local rules survive the rename.
func migrateLegacyLocal(dir, newPath string) error {
	if _, err := os.Stat(newPath); err == nil {
		return nil
	}
	legacyPath := legacyLocalSettingsPath(dir)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy %s: %w", legacyPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("create .kode dir: %w", err)
	}
	return os.WriteFile(newPath, data, 0644)
}

// Store loads permission settings files into a Gate and keeps them in sync
// via fsnotify. Session-scope rules live only in the Gate (via SetRules with
// SourceSession) and are never written here.
type Store struct {
	gate    *Gate
	paths   map[Source]string
	watcher *fsnotify.Watcher
	log     *zap.Logger
}

// NewStore loads every file-backed source once and returns a Store ready to
// Watch for subsequent changes.
func NewStore(gate *Gate, projectDir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{gate: gate, paths: filePaths(projectDir), log: log}
	if err := migrateLegacyLocal(projectDir, s.paths[SourceLocal]); err != nil {
		return nil, fmt.Errorf("migrate legacy local settings: %w", err)
	}
	for source, path := range s.paths {
		if err := s.loadOne(source, path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadOne(source Source, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	var sf settingsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	allow, err := parseRules(sf.Permissions.Allow)
	if err != nil {
		return fmt.Errorf("%s allow rules: %w", path, err)
	}
	deny, err := parseRules(sf.Permissions.Deny)
	if err != nil {
		return fmt.Errorf("%s deny rules: %w", path, err)
	}
	ask, err := parseRules(sf.Permissions.Ask)
	if err != nil {
		return fmt.Errorf("%s ask rules: %w", path, err)
	}
	s.gate.SetRules(source, allow, deny, ask)
	if sf.Permissions.DefaultMode != "" {
		s.gate.SetMode(Mode(sf.Permissions.DefaultMode))
	}
	return nil
}

func parseRules(texts []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(texts))
	for _, t := range texts {
		r, err := ParseRule(t)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Watch starts an fsnotify watch on every file-backed source that exists (or
// whose parent directory exists), reloading the affected source whenever its
// file changes. The watch loop runs on its own goroutine and Watch returns
// right away; Close stops it.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	s.watcher = w

	for _, path := range s.paths {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			s.log.Warn("watch permission settings dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handleEvent(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("permission settings watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *Store) handleEvent(ev fsnotify.Event) {
	for source, path := range s.paths {
		if filepath.Clean(ev.Name) != filepath.Clean(path) {
			continue
		}
		if err := s.loadOne(source, path); err != nil {
			s.log.Warn("reload permission settings failed", zap.String("path", path), zap.Error(err))
			continue
		}
		s.log.Debug("reloaded permission settings", zap.String("source", string(source)), zap.String("path", path))
	}
}

// Close stops the fsnotify watch, if one was started.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// PersistLocalAllow appends an always-allow rule to .kode/settings.local.json,
// used when the user answers an Ask prompt with "always allow". It rewrites
// the whole file rather than patching it in place so concurrent edits by a
// human never get clobbered partially.
func (s *Store) PersistLocalAllow(projectDir string, rule Rule) error {
	path := s.paths[SourceLocal]
	sf := settingsFile{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &sf)
	}
	sf.Permissions.Allow = append(sf.Permissions.Allow, rule.Raw)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create .kode dir: %w", err)
	}
	out, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return s.loadOne(SourceLocal, path)
}
