package relationships

import "github.com/cordlesssteve/layered-memory/internal/memtypes"

// DetectConflicts inspects every pair of items that share a relationship
// edge and flags contradictions, near-duplicates, and inconsistencies
// (spec.md §4.5.4). contentSimilarity is jaccard keyword overlap, the same
// measure the contradiction detector uses.
func (e *Engine) DetectConflicts(items map[string]*memtypes.MemoryItem) []Conflict {
	edgesByPair := make(map[[2]string][]Type)
	for _, r := range e.All() {
		key := pairKey(r.SourceID, r.TargetID)
		edgesByPair[key] = append(edgesByPair[key], r.Type)
	}

	var conflicts []Conflict
	for pair, types := range edgesByPair {
		a, aok := items[pair[0]]
		b, bok := items[pair[1]]
		if !aok || !bok {
			continue
		}

		similarity := jaccardKeywords(a.Content, b.Content)
		hasContradiction := hasType(types, TypeContradiction)

		switch {
		case hasContradiction && similarity >= 0.3:
			conflicts = append(conflicts, Conflict{
				SourceID: a.ID, TargetID: b.ID, Severity: "contradiction",
				Confidence: 0.8, SuggestedResolution: "contextualize_or_coexist",
			})
		case similarity > 0.9:
			conflicts = append(conflicts, Conflict{
				SourceID: a.ID, TargetID: b.ID, Severity: "duplication",
				Confidence: 0.9, SuggestedResolution: "merge_or_prioritize",
			})
		case similarity > 0.8 && (a.Metadata.Category != b.Metadata.Category || absInt(a.Metadata.Priority-b.Metadata.Priority) > 3):
			conflicts = append(conflicts, Conflict{
				SourceID: a.ID, TargetID: b.ID, Severity: "inconsistency",
				Confidence: 0.6, SuggestedResolution: "prioritize",
			})
		}
	}
	return conflicts
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func hasType(types []Type, t Type) bool {
	for _, ty := range types {
		if ty == t {
			return true
		}
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
