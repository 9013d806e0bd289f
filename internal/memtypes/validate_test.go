package memtypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateContentRejectsEmpty(t *testing.T) {
	diags := ValidateContent("   ")
	assert.Len(t, diags, 1)
	assert.Equal(t, "content", diags[0].Field)
}

func TestValidateContentRejectsOversized(t *testing.T) {
	diags := ValidateContent(strings.Repeat("a", MaxContentBytes+1))
	assert.Len(t, diags, 1)
	assert.Equal(t, "content", diags[0].Field)
}

func TestValidateContentRejectsScriptTags(t *testing.T) {
	diags := ValidateContent("hello <script>alert(1)</script>")
	assert.NotEmpty(t, diags)
}

func TestValidateContentRejectsJavascriptURI(t *testing.T) {
	diags := ValidateContent("click here: javascript:alert(1)")
	assert.NotEmpty(t, diags)
}

func TestValidateContentRejectsDataHTMLURI(t *testing.T) {
	diags := ValidateContent("see data:text/html;base64,PHNjcmlwdD4=")
	assert.NotEmpty(t, diags)
}

func TestValidateContentAcceptsOrdinaryText(t *testing.T) {
	diags := ValidateContent("the deploy went out at 4pm and broke checkout")
	assert.Empty(t, diags)
}

func TestValidateMetadataRejectsTooManyTags(t *testing.T) {
	tags := make([]string, 21)
	for i := range tags {
		tags[i] = "tag"
	}
	diags := ValidateMetadata(Metadata{Tags: tags}, "")
	assert.NotEmpty(t, diags)
}

func TestValidateMetadataRejectsBadTagLength(t *testing.T) {
	diags := ValidateMetadata(Metadata{Tags: []string{strings.Repeat("x", 51)}}, "")
	assert.NotEmpty(t, diags)
}

func TestValidateMetadataRejectsBadTagPattern(t *testing.T) {
	diags := ValidateMetadata(Metadata{Tags: []string{"not a valid tag!"}}, "")
	assert.NotEmpty(t, diags)
}

func TestValidateMetadataRejectsOutOfRangePriority(t *testing.T) {
	diags := ValidateMetadata(Metadata{Priority: 11}, "")
	assert.NotEmpty(t, diags)
}

func TestValidateMetadataAllowsZeroPriority(t *testing.T) {
	diags := ValidateMetadata(Metadata{Priority: 0}, "")
	assert.Empty(t, diags)
}

func TestValidateMetadataRejectsNonUUIDClientID(t *testing.T) {
	diags := ValidateMetadata(Metadata{}, "not-a-uuid")
	assert.NotEmpty(t, diags)
}

func TestValidateMetadataAcceptsUUIDClientID(t *testing.T) {
	diags := ValidateMetadata(Metadata{}, "b3b2c1d0-5e6f-4a1b-8c9d-0e1f2a3b4c5d")
	assert.Empty(t, diags)
}

func TestValidateMetadataAcceptsWellFormedTags(t *testing.T) {
	diags := ValidateMetadata(Metadata{Tags: []string{"reference", "design-doc_2"}, Priority: 5}, "")
	assert.Empty(t, diags)
}
