package relationships

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/cordlesssteve/layered-memory/internal/lexical"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

// Detector inspects a pair of memories and reports an edge, or nothing.
// Pattern matching is always lowercase/case-insensitive (spec.md §4.5.2).
type Detector interface {
	Type() Type
	Detect(a, b *memtypes.MemoryItem) (confidence float64, ok bool)
	Weight() float64
}

// Detectors returns all eight detectors in the order their confidences are
// evaluated (spec.md §4.5.2 table). Order has no semantic meaning; distinct
// edge types between the same pair are all kept.
func Detectors() []Detector {
	return []Detector{
		referenceDetector{},
		contextualDetector{},
		causalDetector{},
		temporalDetector{},
		hierarchicalDetector{},
		contradictionDetector{},
		confirmationDetector{},
		evolutionDetector{},
	}
}

var urlPattern = regexp.MustCompile(`https?://\S+`)

type referenceDetector struct{}

func (referenceDetector) Type() Type    { return TypeReference }
func (referenceDetector) Weight() float64 { return 0.8 }
func (referenceDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if a.ID != "" && strings.Contains(b.Content, a.ID) || b.ID != "" && strings.Contains(a.Content, b.ID) {
		return 0.9, true
	}
	aURLs := urlPattern.FindAllString(a.Content, -1)
	if len(aURLs) > 0 {
		bLower := strings.ToLower(b.Content)
		for _, u := range aURLs {
			if strings.Contains(bLower, strings.ToLower(u)) {
				return 0.9, true
			}
		}
	}
	return 0, false
}

type contextualDetector struct{}

func (contextualDetector) Type() Type      { return TypeContextual }
func (contextualDetector) Weight() float64 { return 0.6 }
func (contextualDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	shared := sharedTagCount(a.Metadata.Tags, b.Metadata.Tags)
	sameCat := a.Metadata.Category != "" && a.Metadata.Category == b.Metadata.Category && a.Metadata.Category != "knowledge"
	sameProject := a.Metadata.ProjectID != "" && a.Metadata.ProjectID == b.Metadata.ProjectID

	if shared < 2 && !(shared >= 1 && sameCat) && !(sameCat && sameProject) {
		return 0, false
	}

	score := 0.25*float64(shared) + boolF(sameCat)*0.3 + boolF(sameProject)*0.2
	return math.Min(1, score), true
}

var causalPhrases = []string{"because", "due to", "caused by", "results in", "leads to", "therefore", "consequently"}

type causalDetector struct{}

func (causalDetector) Type() Type      { return TypeCausal }
func (causalDetector) Weight() float64 { return 0.7 }
func (causalDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if matchesAny(a.Content, causalPhrases) || matchesAny(b.Content, causalPhrases) {
		return 0.7, true
	}
	return 0, false
}

type temporalDetector struct{}

func (temporalDetector) Type() Type      { return TypeTemporal }
func (temporalDetector) Weight() float64 { return 0.4 }
func (temporalDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta >= 4*time.Hour {
		return 0, false
	}
	sharedTags := sharedTagCount(a.Metadata.Tags, b.Metadata.Tags) > 0
	sameCat := a.Metadata.Category != "" && a.Metadata.Category == b.Metadata.Category
	if !sharedTags && !sameCat {
		return 0, false
	}
	hours := delta.Hours()
	return math.Max(0.5, 1-hours/4), true
}

var hierarchicalPhrases = []string{"parent", "child", "contains", "part of", "belongs to", "section", "chapter", "subsection"}

type hierarchicalDetector struct{}

func (hierarchicalDetector) Type() Type      { return TypeHierarchical }
func (hierarchicalDetector) Weight() float64 { return 0.7 }
func (hierarchicalDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if matchesAny(a.Content, hierarchicalPhrases) || matchesAny(b.Content, hierarchicalPhrases) {
		return 0.8, true
	}
	return 0, false
}

var contradictionPhrases = []string{"however", "but", "although", "despite", "contrary", "opposite", "not", "never", "disagree"}

type contradictionDetector struct{}

func (contradictionDetector) Type() Type      { return TypeContradiction }
func (contradictionDetector) Weight() float64 { return 0.9 }
func (contradictionDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if jaccardKeywords(a.Content, b.Content) < 0.3 {
		return 0, false
	}
	if matchesAny(a.Content, contradictionPhrases) || matchesAny(b.Content, contradictionPhrases) {
		return 0.8, true
	}
	return 0, false
}

var confirmationPhrases = []string{"confirms", "supports", "validates", "proves", "shows", "demonstrates", "agrees", "consistent"}

type confirmationDetector struct{}

func (confirmationDetector) Type() Type      { return TypeConfirmation }
func (confirmationDetector) Weight() float64 { return 0.8 }
func (confirmationDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if matchesAny(a.Content, confirmationPhrases) || matchesAny(b.Content, confirmationPhrases) {
		return 0.7, true
	}
	return 0, false
}

type evolutionDetector struct{}

func (evolutionDetector) Type() Type      { return TypeEvolution }
func (evolutionDetector) Weight() float64 { return 0.8 }
func (evolutionDetector) Detect(a, b *memtypes.MemoryItem) (float64, bool) {
	if !a.UpdatedAt.Equal(b.UpdatedAt) && tokenCosine(a.Content, b.Content) > 0.7 {
		return 0.9, true
	}
	return 0, false
}

// --- shared helpers ---

func matchesAny(content string, phrases []string) bool {
	lower := strings.ToLower(content)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = struct{}{}
	}
	count := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		lt := strings.ToLower(t)
		if _, dup := seen[lt]; dup {
			continue
		}
		seen[lt] = struct{}{}
		if _, ok := set[lt]; ok {
			count++
		}
	}
	return count
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// jaccardKeywords computes |A∩B| / |A∪B| over each content's lexical tokens
// (spec.md §4.5.2 "Jaccard keyword overlap").
func jaccardKeywords(a, b string) float64 {
	ta := toSet(lexical.Tokenize(a))
	tb := toSet(lexical.Tokenize(b))
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter, union := 0, len(ta)
	for t := range tb {
		if _, ok := ta[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// tokenCosine computes cosine similarity over each content's token
// frequency vectors (spec.md §4.5.2 "Cosine(content_tokens)").
func tokenCosine(a, b string) float64 {
	fa := freq(lexical.Tokenize(a))
	fb := freq(lexical.Tokenize(b))

	var dot, na, nb float64
	for t, ca := range fa {
		na += float64(ca * ca)
		if cb, ok := fb[t]; ok {
			dot += float64(ca * cb)
		}
	}
	for _, cb := range fb {
		nb += float64(cb * cb)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func freq(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}
