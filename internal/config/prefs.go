package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const prefsTOMLFileName = "prefs.toml"

// Prefs are durable user preferences, kept in a TOML file under the data
// directory.
type Prefs struct {
	UserID             string `toml:"user_id"`
	UserName           string `toml:"user_name"`
	PauseBetweenPhases bool   `toml:"pause_between_phases"`
}

type PrefsStore struct {
	dir string
}

func NewPrefsStore(dir string) *PrefsStore {
	return &PrefsStore{dir: dir}
}

func (s *PrefsStore) LoadOrInit() (Prefs, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Prefs{}, err
	}

	path := filepath.Join(s.dir, prefsTOMLFileName)
	if b, err := os.ReadFile(path); err == nil {
		var p Prefs
		if err := toml.Unmarshal(b, &p); err != nil {
			return Prefs{}, err
		}
		return normalizePrefs(p), nil
	} else if !os.IsNotExist(err) {
		return Prefs{}, err
	}

	p := normalizePrefs(Prefs{})
	if err := writeTOMLAtomically(path, p); err != nil {
		return Prefs{}, err
	}
	return p, nil
}

func (s *PrefsStore) Save(p Prefs) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, prefsTOMLFileName), normalizePrefs(p))
}

func normalizePrefs(p Prefs) Prefs {
	p.UserID = strings.TrimSpace(p.UserID)
	p.UserName = strings.TrimSpace(p.UserName)
	if p.UserName == "" {
		p.UserName = "anonymous"
	}
	return p
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
