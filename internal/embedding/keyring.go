package embedding

import (
	"strings"
	"sync"
)

// KeyRing rotates through API keys. A key marked exhausted is skipped until
// the next round starts.
type KeyRing struct {
	mu        sync.Mutex
	keys      []string
	cur       int
	exhausted []bool
}

// NewKeyRing builds a ring from keys, dropping blanks.
func NewKeyRing(keys ...string) *KeyRing {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &KeyRing{keys: clean, exhausted: make([]bool, len(clean))}
}

// ParseKeys splits a comma-separated key list.
func ParseKeys(s string) []string { return strings.Split(s, ",") }

func (k *KeyRing) Len() int { return len(k.keys) }

// Current returns the active key, or "" for an empty ring.
func (k *KeyRing) Current() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	return k.keys[k.cur]
}

// Rotate marks the active key exhausted and advances to the next usable key.
// It returns false when every key in the round is exhausted.
func (k *KeyRing) Rotate() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return false
	}
	k.exhausted[k.cur] = true
	for step := 1; step <= len(k.keys); step++ {
		next := (k.cur + step) % len(k.keys)
		if !k.exhausted[next] {
			k.cur = next
			return true
		}
	}
	return false
}

// ResetRound clears exhaustion marks and restarts from the first key.
func (k *KeyRing) ResetRound() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.exhausted {
		k.exhausted[i] = false
	}
	k.cur = 0
}
