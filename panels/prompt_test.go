package panels

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/openfoundry/forge3d/types"
)

func TestMillimetersToInches(t *testing.T) {
	assert.Equal(t, 1.0, MillimetersToInches(25.4))
	assert.InDelta(t, 3.937, MillimetersToInches(100), 0.001)
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		name   string
		width  float64
		height float64
		want   string
	}{
		{"square", 100, 100, "1:1"},
		{"simple fraction", 100, 150, "2:3"},
		{"exact 16:9", 160, 90, "16:9"},
		{"denominator at limit kept", 133, 100, "133:100"},
		{"snaps to 16:9", 177.8, 100, "16:9"},
		{"snaps to 4:3", 123.456, 100, "4:3"},
		{"limits denominator", 111.7, 100, "19:17"},
		{"zero width", 0, 100, "1:1"},
		{"negative height", 100, -5, "1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AspectRatio(tt.width, tt.height))
		})
	}
}

// ratioTolerance bounds the round-trip error: 0.1 from the common-ratio
// snap window plus the gap between a label and its listed value
// (e.g. 4:3 parses to 1.3333 but snaps on 1.33). Relative for the exact
// branch, whose absolute error grows with the ratio itself.
const ratioTolerance = 0.12

func TestProperty_AspectRatio_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		width := rapid.Float64Range(1, 4000).Draw(rt, "width")
		height := rapid.Float64Range(1, 4000).Draw(rt, "height")

		got := AspectRatio(width, height)

		var num, den int64
		n, err := fmt.Sscanf(got, "%d:%d", &num, &den)
		require.NoError(rt, err, "ratio %q must be two integers", got)
		require.Equal(rt, 2, n)
		// extreme slivers may collapse to 0:N under the denominator limit
		require.GreaterOrEqual(rt, num, int64(0))
		require.Positive(rt, den)

		ratio := width / height
		absErr := math.Abs(float64(num)/float64(den) - ratio)
		assert.True(rt, absErr <= ratioTolerance || absErr/ratio <= ratioTolerance,
			"w=%v h=%v got=%q err=%v", width, height, got, absErr)
	})
}

func TestValidatePrompt(t *testing.T) {
	assert.NoError(t, ValidatePrompt("blue geometric pattern with white lines"))

	err := ValidatePrompt("ab")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "too short")

	err = ValidatePrompt(strings.Repeat("x", 2001))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too long")

	for _, vague := range []string{"logo", "design", "TEXTURE", "Pattern", "cool", "nice", "good"} {
		err = ValidatePrompt(vague)
		require.Error(t, err, vague)
		assert.Contains(t, err.Error(), "too vague")
	}

	// vague words inside a longer prompt are fine
	assert.NoError(t, ValidatePrompt("a cool vintage logo design with red stripes"))
}

func TestBuildMasterPrompt_WithReference(t *testing.T) {
	prompt, err := BuildMasterPrompt("front", 100, 150, 100, 150, 100, "checker pattern please", true)
	require.NoError(t, err)

	assert.Contains(t, prompt, "FACE_NAME: front")
	assert.Contains(t, prompt, "PANEL_WIDTH_IN: 3.94")
	assert.Contains(t, prompt, "PANEL_HEIGHT_IN: 5.91")
	assert.Contains(t, prompt, "ASPECT_RATIO_LOCK: 2:3")
	assert.Contains(t, prompt, "W = 3.9 in, H = 5.9 in, L = 3.9 in")
	assert.Contains(t, prompt, "checker pattern please")
	assert.Contains(t, prompt, "GLOBAL STYLE LOCK")
}

func TestBuildMasterPrompt_WithoutReferenceFallsBackToSimple(t *testing.T) {
	prompt, err := BuildMasterPrompt("front", 100, 150, 100, 150, 100, "vintage cardboard texture", false)
	require.NoError(t, err)

	assert.NotContains(t, prompt, "GLOBAL STYLE LOCK")
	assert.Contains(t, prompt, "Panel: front")
	assert.Contains(t, prompt, "100mm × 150mm")
	assert.Contains(t, prompt, "Aspect Ratio: 2:3")
	assert.Contains(t, prompt, "vintage cardboard texture")
}

func TestBuildMasterPrompt_InvalidUserPrompt(t *testing.T) {
	_, err := BuildMasterPrompt("front", 100, 150, 100, 150, 100, "logo", true)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestBuildSimplePrompt(t *testing.T) {
	prompt, err := BuildSimplePrompt("body", 251.3, 120, "ocean waves illustration")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Panel: body")
	assert.Contains(t, prompt, "ocean waves illustration")
}
