// Package lexical implements the token→item-id inverted index used for
// keyword matching within a single memory layer (spec.md §4.1.1).
package lexical

import (
	"regexp"
	"strings"
	"sync"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize lowercases text, replaces non-word characters with whitespace,
// splits on whitespace, and discards tokens of length <= 2. Used both to
// build the index and to tokenize a query, so the two sides always agree.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	replaced := nonWord.ReplaceAllString(lowered, " ")
	fields := strings.Fields(replaced)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// IndexedText builds the text an item contributes to the lexical index:
// content, tags, and category concatenated (spec.md §4.1.1).
func IndexedText(content, category string, tags []string) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteByte(' ')
	for _, t := range tags {
		b.WriteString(t)
		b.WriteByte(' ')
	}
	b.WriteString(category)
	return b.String()
}

// Index is a thread-safe token -> set<item_id> inverted index.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{}
	// tokensByID lets Remove find every posting for an id in O(tokens),
	// so updates can always be "remove then insert" (spec.md §4.1.1)
	// without a full index scan.
	tokensByID map[string][]string
}

// New creates an empty inverted index.
func New() *Index {
	return &Index{
		postings:   make(map[string]map[string]struct{}),
		tokensByID: make(map[string][]string),
	}
}

// Put indexes (or re-indexes) id under text. Always a full remove-then-insert.
func (idx *Index) Put(id, text string) {
	tokens := Tokenize(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	stored := make([]string, 0, len(unique))
	for t := range unique {
		set, ok := idx.postings[t]
		if !ok {
			set = make(map[string]struct{})
			idx.postings[t] = set
		}
		set[id] = struct{}{}
		stored = append(stored, t)
	}
	idx.tokensByID[id] = stored
}

// Remove drops every posting for id. Idempotent.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	for _, t := range idx.tokensByID[id] {
		if set, ok := idx.postings[t]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.postings, t)
			}
		}
	}
	delete(idx.tokensByID, id)
}

// Has reports whether id currently has any postings (used by index
// consistency checks, spec.md §8 property 4).
func (idx *Index) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.tokensByID[id]
	return ok
}

// TokensFor returns the stored tokens for id (for scoring explanations/tests).
func (idx *Index) TokensFor(id string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, len(idx.tokensByID[id]))
	copy(out, idx.tokensByID[id])
	return out
}

// CandidatesForTokens returns the union of ids posted under any of tokens,
// together with, for each id, how many distinct query tokens matched via a
// substring relation in either direction (spec.md §4.2.1: "t ⊂ u ∨ u ⊂ t").
func (idx *Index) CandidatesForTokens(queryTokens []string) map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make(map[string]int)
	if len(queryTokens) == 0 {
		return matches
	}

	for _, qt := range queryTokens {
		seenForThisToken := make(map[string]struct{})
		for itemToken, set := range idx.postings {
			if !strings.Contains(itemToken, qt) && !strings.Contains(qt, itemToken) {
				continue
			}
			for id := range set {
				if _, done := seenForThisToken[id]; done {
					continue
				}
				seenForThisToken[id] = struct{}{}
				matches[id]++
			}
		}
	}
	return matches
}

// Len returns the number of indexed items.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.tokensByID)
}
