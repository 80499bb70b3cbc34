package browser

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// StoredCookie is the on-disk cookie shape, one jar file per origin.
type StoredCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure"`
	HTTPOnly bool      `json:"httpOnly"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Expired reports whether the cookie is past its expiry. Session cookies
// (zero expiry) are treated as expired on reload: they would not have
// survived a real browser restart either.
func (c StoredCookie) Expired(now time.Time) bool {
	if c.Expires.IsZero() {
		return true
	}
	return !c.Expires.After(now)
}

// JarStore persists per-origin cookie jars as JSON files. Writers take a
// per-origin lock; readers of different origins proceed concurrently.
type JarStore struct {
	fs  afero.Fs
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewJarStore(fsys afero.Fs, dir string) *JarStore {
	return &JarStore{fs: fsys, dir: dir, locks: map[string]*sync.Mutex{}}
}

func (s *JarStore) originLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Load returns the valid cookies stored for an origin, silently discarding
// expired entries. A missing jar is an empty jar.
func (s *JarStore) Load(origin string) ([]StoredCookie, error) {
	key := originKey(origin)
	path := filepath.Join(s.dir, key+".json")

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var cookies []StoredCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		// A corrupt jar is not worth failing a job over.
		return nil, nil
	}

	now := time.Now()
	valid := cookies[:0]
	for _, c := range cookies {
		if !c.Expired(now) {
			valid = append(valid, c)
		}
	}
	return valid, nil
}

// Save writes the origin's jar, write-through at tab close.
func (s *JarStore) Save(origin string, cookies []StoredCookie) error {
	key := originKey(origin)
	l := s.originLock(key)
	l.Lock()
	defer l.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, filepath.Join(s.dir, key+".json"), data, 0o644)
}

// originKey maps an origin (or bare host) to a jar filename.
func originKey(origin string) string {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	host = strings.ReplaceAll(host, ":", "_")
	return host
}
