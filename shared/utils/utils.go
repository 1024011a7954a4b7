package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"premerge/internal/predictor"
	"premerge/shared/types"
)

// PreviewLength is the rune limit of a region preview.
const PreviewLength = 100

func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Preview flattens text onto one line and truncates it to PreviewLength
// runes, marking the cut with "...".
func Preview(text string) string {
	if utf8.RuneCountInString(text) > PreviewLength {
		text = string([]rune(text)[:PreviewLength]) + "..."
	}
	return strings.ReplaceAll(text, "\n", " ")
}

// ToRegions converts predictor regions to their wire form.
func ToRegions(regions []predictor.ConflictRegion) []shared.ConflictRegion {
	out := make([]shared.ConflictRegion, 0, len(regions))
	for _, r := range regions {
		out = append(out, shared.ConflictRegion{
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			Branch:       r.Branch,
			TheirContent: r.TheirContent,
			Preview:      Preview(r.TheirContent),
		})
	}
	return out
}

// FromRegions converts wire regions back to predictor regions.
func FromRegions(regions []shared.ConflictRegion) []predictor.ConflictRegion {
	out := make([]predictor.ConflictRegion, 0, len(regions))
	for _, r := range regions {
		out = append(out, predictor.ConflictRegion{
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			Branch:       r.Branch,
			TheirContent: r.TheirContent,
		})
	}
	return out
}
