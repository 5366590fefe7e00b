// Package panels builds prompts for packaging panel textures and runs
// panel generation against the image client.
package panels

import (
	"fmt"
	"math"
	"strings"

	"github.com/openfoundry/forge3d/types"
)

// masterTemplate is the strict panel prompt used when a 3D reference mockup
// accompanies the request. It locks style, scale, and aspect ratio.
const masterTemplate = `You are a packaging panel layout model. A 3D mockup image of the box is attached as reference.

Use it as the strict style and pattern-scale reference.

========================
VARIABLES (filled by pipeline)
========================

FACE_NAME: %[1]s
PANEL_WIDTH_IN: %.2[2]f
PANEL_HEIGHT_IN: %.2[3]f
ASPECT_RATIO_LOCK: %[4]s

Box context (do not change):
- W = %.1[5]f in, H = %.1[6]f in, L = %.1[7]f in.

========================
GLOBAL STYLE LOCK (must apply exactly)
========================

1) Style source
   - The attached 3D mockup is the authoritative reference for:
     a) checker/tile pattern scale
     b) tile sharpness and spacing
     c) black tone / contrast
   - Do not reinterpret or restyle the pattern.

2) Pattern definition
   - Uniform black checker / tiled texture.
   - Grid is axis-aligned (no rotation).
   - Tile size must visually match the mockup across all panels.

3) Flat print panel rules
   - Orthographic, straight-on, flat design only.
   - No perspective, no shadows, no lighting, no 3D cues.
   - No fold lines, no die-cut marks, no guides.
   - No text, logos, symbols, or extra graphics.

4) Full-bleed, edge-flush rule
   - Pattern must extend to every edge with zero margin.
   - No borders, padding, or safe-area inset.
   - Tiles must meet the edges cleanly. No faded or clipped edge band.

========================
PANEL SPEC (this call only)
========================

Render the face: FACE_NAME = %[1]s

Physical size (inches):
- width  = %.2[2]f
- height = %.2[3]f

Aspect ratio lock (hard constraint):
- REQUIRED aspect ratio = %[4]s
- You MUST generate the panel at this exact ratio.
- Do NOT crop, pad, letterbox, or alter proportions.
- If you pick pixel sizes, compute from inches using a single DPI
  so the final image ratio is exactly %[4]s.

Edge alignment intent:
- Treat this as part of a continuous wrap.
- Keep the checker grid aligned so edges can match adjacent faces later.

========================
OUTPUT RULES
========================

- Output exactly ONE image for this panel.
- The image must be the flat panel only.
- Label internally as %[1]s. Do not add visible text on the panel.
- No extra commentary, no extra images. One image only.

========================
USER CUSTOMIZATION
========================

%[8]s
`

// simpleTemplate is used without a reference mockup.
const simpleTemplate = `Generate a flat packaging panel texture with the following specifications:

Panel: %[1]s
Dimensions: %.2[2]f" × %.2[3]f" (%[4]dmm × %[5]dmm)
Aspect Ratio: %[6]s (MUST be exact)

CRITICAL REQUIREMENTS:
1. Create a flat, orthographic design (no perspective, shadows, or 3D effects)
2. The design MUST be exactly %[6]s aspect ratio
3. Full-bleed: design extends to all edges with zero margin
4. No borders, frames, fold lines, or cut marks
5. Suitable for printing on packaging material
6. High-quality, print-ready artwork
7. The entire %[4]dmm × %[5]dmm area must be filled

USER REQUEST:
%[7]s

OUTPUT: Generate exactly ONE flat panel texture at %[6]s aspect ratio.
`

// MillimetersToInches converts millimeters to inches.
func MillimetersToInches(mm float64) float64 {
	return mm / 25.4
}

// commonRatios maps numeric ratio values to display strings, checked when a
// dimension pair does not reduce to a small fraction.
var commonRatios = []struct {
	value float64
	label string
}{
	{1.0, "1:1"},
	{1.33, "4:3"},
	{1.5, "3:2"},
	{1.6, "16:10"},
	{1.78, "16:9"},
	{2.0, "2:1"},
	{2.35, "21:9"},
}

// AspectRatio renders width:height as a simplified integer ratio string.
// Dimensions reduce exactly when the fraction stays small; otherwise the
// ratio snaps to the nearest common format within 0.1, and failing that the
// fraction is approximated with a denominator of at most 20.
func AspectRatio(width, height float64) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}

	w := int64(math.Round(width * 1000))
	h := int64(math.Round(height * 1000))
	g := gcd(w, h)
	num, den := w/g, h/g

	if den <= 100 {
		return fmt.Sprintf("%d:%d", num, den)
	}

	ratio := width / height
	best := commonRatios[0]
	for _, c := range commonRatios[1:] {
		if math.Abs(c.value-ratio) < math.Abs(best.value-ratio) {
			best = c
		}
	}
	if math.Abs(best.value-ratio) < 0.1 {
		return best.label
	}

	num, den = limitDenominator(num, den, 20)
	return fmt.Sprintf("%d:%d", num, den)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// limitDenominator returns the closest fraction to num/den whose denominator
// does not exceed maxDen, using the continued-fraction convergents.
func limitDenominator(num, den, maxDen int64) (int64, int64) {
	if den <= maxDen {
		return num, den
	}

	var p0, q0, p1, q1 int64 = 0, 1, 1, 0
	n, d := num, den
	for d != 0 {
		a := n / d
		q2 := q0 + a*q1
		if q2 > maxDen {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2
		n, d = d, n-a*d
	}

	k := (maxDen - q0) / q1
	target := float64(num) / float64(den)
	b1n, b1d := p0+k*p1, q0+k*q1
	b2n, b2d := p1, q1

	if math.Abs(float64(b2n)/float64(b2d)-target) <= math.Abs(float64(b1n)/float64(b1d)-target) {
		return b2n, b2d
	}
	return b1n, b1d
}

// vaguePrompts are single-word requests too unspecific to render.
var vaguePrompts = []string{"logo", "design", "texture", "pattern", "cool", "nice", "good"}

// ValidatePrompt rejects prompts that are too short, too long, or too vague
// to produce a usable panel design.
func ValidatePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)

	if len(prompt) < 3 {
		return types.NewError(types.ErrInvalidRequest,
			"Prompt is too short. Please provide more detail about what you want.")
	}
	if len(prompt) > 2000 {
		return types.NewError(types.ErrInvalidRequest,
			"Prompt is too long. Please keep it under 2000 characters.")
	}

	lower := strings.ToLower(prompt)
	for _, vague := range vaguePrompts {
		if lower == vague {
			return types.NewError(types.ErrInvalidRequest, fmt.Sprintf(
				"Prompt '%s' is too vague. Please be more specific about:\n"+
					"- What style or theme you want\n"+
					"- What colors or patterns to use\n"+
					"- Any specific elements to include\n"+
					"Example: 'blue geometric pattern with white lines' or 'vintage cardboard texture'",
				prompt))
		}
	}

	return nil
}

// BuildMasterPrompt renders the full panel prompt. With a reference mockup
// the strict style-lock template is used; otherwise the simple one.
func BuildMasterPrompt(faceName string, panelWidthMM, panelHeightMM, boxWidthMM, boxHeightMM, boxDepthMM float64, userPrompt string, hasReferenceMockup bool) (string, error) {
	if err := ValidatePrompt(userPrompt); err != nil {
		return "", err
	}

	ratio := AspectRatio(panelWidthMM, panelHeightMM)

	if hasReferenceMockup {
		return fmt.Sprintf(masterTemplate,
			faceName,
			MillimetersToInches(panelWidthMM),
			MillimetersToInches(panelHeightMM),
			ratio,
			MillimetersToInches(boxWidthMM),
			MillimetersToInches(boxHeightMM),
			MillimetersToInches(boxDepthMM),
			userPrompt,
		), nil
	}

	return buildSimple(faceName, panelWidthMM, panelHeightMM, ratio, userPrompt), nil
}

// BuildSimplePrompt renders the plain texture prompt, for callers without
// full box context.
func BuildSimplePrompt(faceName string, panelWidthMM, panelHeightMM float64, userPrompt string) (string, error) {
	if err := ValidatePrompt(userPrompt); err != nil {
		return "", err
	}
	ratio := AspectRatio(panelWidthMM, panelHeightMM)
	return buildSimple(faceName, panelWidthMM, panelHeightMM, ratio, userPrompt), nil
}

func buildSimple(faceName string, panelWidthMM, panelHeightMM float64, ratio, userPrompt string) string {
	return fmt.Sprintf(simpleTemplate,
		faceName,
		MillimetersToInches(panelWidthMM),
		MillimetersToInches(panelHeightMM),
		int(panelWidthMM),
		int(panelHeightMM),
		ratio,
		userPrompt,
	)
}
