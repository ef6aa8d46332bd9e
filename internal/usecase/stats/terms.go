package stats

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Term tracker defaults.
const (
	DefaultTermCapacity = 1000
	minTermLength       = 3
)

// TermCount is one query term with its observed frequency.
type TermCount struct {
	Term  string
	Count int
}

// TermTracker keeps approximate frequencies of recent query terms in a
// bounded LRU. Cold terms are evicted under pressure, so counts are a
// popularity sample, not an exact tally.
type TermTracker struct {
	mu    sync.Mutex
	cache *lru.Cache[string, int]
}

// NewTermTracker creates a tracker holding at most capacity distinct terms.
func NewTermTracker(capacity int) (*TermTracker, error) {
	if capacity <= 0 {
		capacity = DefaultTermCapacity
	}
	cache, err := lru.New[string, int](capacity)
	if err != nil {
		return nil, err
	}
	return &TermTracker{cache: cache}, nil
}

// Observe tokenizes a query into lowercase terms and counts each one.
// Terms shorter than three runes are noise and skipped.
func (t *TermTracker) Observe(query string) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, term := range terms {
		count, _ := t.cache.Get(term)
		t.cache.Add(term, count+1)
	}
}

// Top returns the n most frequent tracked terms, ties broken alphabetically.
func (t *TermTracker) Top(n int) []TermCount {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	keys := t.cache.Keys()
	counts := make([]TermCount, 0, len(keys))
	for _, k := range keys {
		if c, ok := t.cache.Peek(k); ok {
			counts = append(counts, TermCount{Term: k, Count: c})
		}
	}
	t.mu.Unlock()

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Term < counts[j].Term
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}
