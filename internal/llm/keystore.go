package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// KeyStore manages an ordered set of API keys with rotation. The index of
// the key in use is persisted to a small cache file so restarts resume from
// the last working key instead of burning the early ones again.
type KeyStore struct {
	mu        sync.Mutex
	keys      []string
	index     int
	failed    map[int]bool
	cacheFile string
}

// LoadKeyStore reads keys from file, one per line. Blank lines and lines
// starting with '#' are skipped. If cacheFile names a readable file holding
// a valid index, rotation resumes there.
func LoadKeyStore(keysFile, cacheFile string) (*KeyStore, error) {
	data, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("reading keys file: %w", err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys found in %s", keysFile)
	}

	ks := &KeyStore{
		keys:      keys,
		failed:    make(map[int]bool),
		cacheFile: cacheFile,
	}
	ks.index = ks.loadCachedIndex()
	return ks, nil
}

func (s *KeyStore) loadCachedIndex() int {
	if s.cacheFile == "" {
		return 0
	}
	data, err := os.ReadFile(s.cacheFile)
	if err != nil {
		return 0
	}
	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || idx < 0 || idx >= len(s.keys) {
		return 0
	}
	return idx
}

func (s *KeyStore) persistIndex() {
	if s.cacheFile == "" {
		return
	}
	// Best effort.
	_ = os.WriteFile(s.cacheFile, []byte(strconv.Itoa(s.index)), 0o644)
}

// Current returns the key currently in use.
func (s *KeyStore) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[s.index]
}

// Len returns how many keys are configured.
func (s *KeyStore) Len() int {
	return len(s.keys)
}

// MarkFailed records the current key as rejected and advances to the next
// key that has not failed yet. Failed keys stay failed for the lifetime of
// the store so no request retries a key already known bad. It returns
// false when every key has been marked failed.
func (s *KeyStore) MarkFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed[s.index] = true
	for i := 1; i <= len(s.keys); i++ {
		candidate := (s.index + i) % len(s.keys)
		if !s.failed[candidate] {
			s.index = candidate
			s.persistIndex()
			return true
		}
	}
	return false
}
