package slots

import (
	"sort"
	"strings"
	"sync"
)

// baseStopWords are affirmations and fillers that are never a person name.
var baseStopWords = []string{
	"yes", "yeah", "yep", "yup", "no", "nope", "nah",
	"ok", "okay", "sure", "correct", "right", "exactly",
	"uh", "um", "hmm", "huh", "uh huh", "mhm",
	"hello", "hi", "hey", "bye", "goodbye",
	"thanks", "thank you", "please",
	"what", "sorry", "pardon", "repeat that",
}

// MergeStopWords builds the lowercase stop-word set from the base list plus
// tenant extras. Pure function of its inputs.
func MergeStopWords(extra []string) map[string]bool {
	set := make(map[string]bool, len(baseStopWords)+len(extra))
	for _, w := range baseStopWords {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// StopWordCache memoizes merged stop-word sets per tenant key. Each cache is
// an explicit dependency of its firewall, not a process-wide mutable set.
type StopWordCache struct {
	mu   sync.RWMutex
	sets map[string]map[string]bool
}

// NewStopWordCache creates an empty cache.
func NewStopWordCache() *StopWordCache {
	return &StopWordCache{sets: make(map[string]map[string]bool)}
}

// Get returns the merged set for a tenant, computing it on first use.
// The cache key covers the extras so a tenant config change is not served a
// stale merge.
func (c *StopWordCache) Get(tenantID string, extra []string) map[string]bool {
	key := cacheKey(tenantID, extra)

	c.mu.RLock()
	set, ok := c.sets[key]
	c.mu.RUnlock()
	if ok {
		return set
	}

	set = MergeStopWords(extra)
	c.mu.Lock()
	c.sets[key] = set
	c.mu.Unlock()
	return set
}

func cacheKey(tenantID string, extra []string) string {
	if len(extra) == 0 {
		return tenantID
	}
	sorted := make([]string, len(extra))
	copy(sorted, extra)
	sort.Strings(sorted)
	return tenantID + "|" + strings.Join(sorted, ",")
}

// isStopWord reports whether the whole value is on the stop-word list.
func isStopWord(set map[string]bool, value string) bool {
	return set[strings.ToLower(strings.TrimSpace(value))]
}
