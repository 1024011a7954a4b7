package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"premerge/internal/predictor"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview("a\nb\nc"))

	long := strings.Repeat("x", 150)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("x", 100)+"...", got)

	exact := strings.Repeat("é", 100)
	assert.Equal(t, exact, Preview(exact))
}

func TestHashContent(t *testing.T) {
	assert.Equal(t, HashContent([]byte("abc")), HashContent([]byte("abc")))
	assert.NotEqual(t, HashContent([]byte("abc")), HashContent([]byte("abd")))
	assert.Len(t, HashContent(nil), 64)
}

func TestRegionConversion(t *testing.T) {
	regions := []predictor.ConflictRegion{
		{StartLine: 1, EndLine: 2, Branch: "main", TheirContent: "x\ny"},
	}

	wire := ToRegions(regions)
	assert.Equal(t, "x y", wire[0].Preview)
	assert.Equal(t, regions, FromRegions(wire))
	assert.NotNil(t, ToRegions(nil))
}
