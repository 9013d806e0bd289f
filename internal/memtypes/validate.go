package memtypes

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxContentBytes is the bound on sanitized content (spec.md §3).
	MaxContentBytes = 100 * 1024
	maxTagLen       = 50
	maxTagCount     = 20
)

var (
	tagPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// dangerousPatterns matches content that must be rejected when
	// validation is on (spec.md §6): script/javascript:/data: URIs.
	dangerousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)data:text/html`),
	}
)

// ValidateContent checks the boundary rules for a memory's content.
func ValidateContent(content string) []FieldDiagnostic {
	var diags []FieldDiagnostic

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		diags = append(diags, FieldDiagnostic{Field: "content", Reason: "must be non-empty after trimming"})
		return diags
	}

	if len(content) > MaxContentBytes {
		diags = append(diags, FieldDiagnostic{Field: "content", Reason: "exceeds 100 KiB after sanitization"})
	}

	for _, p := range dangerousPatterns {
		if p.MatchString(content) {
			diags = append(diags, FieldDiagnostic{Field: "content", Reason: "contains a disallowed script/data URI pattern"})
			break
		}
	}

	return diags
}

// ValidateMetadata checks tags, priority, and id shape (spec.md §6).
func ValidateMetadata(meta Metadata, clientID string) []FieldDiagnostic {
	var diags []FieldDiagnostic

	if len(meta.Tags) > maxTagCount {
		diags = append(diags, FieldDiagnostic{Field: "tags", Reason: "more than 20 tags"})
	}
	for _, tag := range meta.Tags {
		if len(tag) < 1 || len(tag) > maxTagLen {
			diags = append(diags, FieldDiagnostic{Field: "tags", Reason: "tag length must be 1..50"})
			break
		}
	}
	for _, tag := range meta.Tags {
		if !tagPattern.MatchString(tag) {
			diags = append(diags, FieldDiagnostic{Field: "tags", Reason: "tag must match [A-Za-z0-9_-]+"})
			break
		}
	}

	if meta.Priority != 0 && (meta.Priority < 1 || meta.Priority > 10) {
		diags = append(diags, FieldDiagnostic{Field: "priority", Reason: "must be an integer in [1,10]"})
	}

	if clientID != "" {
		if _, err := uuid.Parse(clientID); err != nil {
			diags = append(diags, FieldDiagnostic{Field: "id", Reason: "must be a UUID when supplied by a client"})
		}
	}

	return diags
}

// NormalizeTags lowercases and de-duplicates tags, preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
