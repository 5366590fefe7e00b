package panels

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/genai/image"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// colorWords are the colors the heuristic can extract from a request.
var colorWords = regexp.MustCompile(`\b(black|white|red|blue|green|yellow|orange|purple|pink|gray|grey|brown)\b`)

// simpleColorKeywords signal a flat solid-color request even when no color
// word can be extracted.
var simpleColorKeywords = []string{
	"black", "white", "red", "blue", "green", "yellow", "orange", "purple", "pink",
	"gray", "grey", "brown", "paint it", "make it", "color it", "turn it", "solid", "plain",
}

// Request describes one panel texture to generate.
type Request struct {
	PanelID     string
	Prompt      string
	PackageType state.PackageType
	PanelDims   state.Dimensions
	PackageDims state.Dimensions
}

// Service generates panel textures and records them in the packaging state.
type Service struct {
	images image.Generator
	store  state.Store
	logger *zap.Logger
}

// NewService creates a panel generation service.
func NewService(images image.Generator, store state.Store, logger *zap.Logger) *Service {
	return &Service{
		images: images,
		store:  store,
		logger: logger.With(zap.String("component", "panel_generation")),
	}
}

// GeneratePanelTexture builds the heuristic prompt and generates one flat
// texture. It returns nil without error when the provider produced nothing;
// the caller decides how to surface that.
func (s *Service) GeneratePanelTexture(ctx context.Context, req Request) (*state.PanelTexture, error) {
	if s.images == nil {
		return nil, types.NewError(types.ErrNotConfigured, "image provider not configured")
	}

	prompt := buildHeuristicPrompt(req)

	s.logger.Info("generating panel texture",
		zap.String("panel_id", req.PanelID),
		zap.String("package_type", string(req.PackageType)))

	images, err := s.images.GenerateProductImages(ctx, image.ProductImageRequest{
		Prompt:   prompt,
		Workflow: image.WorkflowCreate,
		Count:    1,
		Texture:  true,
	})
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		s.logger.Warn("no texture returned", zap.String("panel_id", req.PanelID))
		return nil, nil
	}

	return &state.PanelTexture{
		PanelID:     req.PanelID,
		TextureURL:  images[0],
		Prompt:      req.Prompt,
		WidthMM:     req.PanelDims.WidthMM,
		HeightMM:    req.PanelDims.HeightMM,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// RunGeneration generates a texture and writes the outcome back into the
// packaging state: the texture on success, the error message otherwise. The
// in-progress flag clears either way.
func (s *Service) RunGeneration(ctx context.Context, req Request) error {
	texture, err := s.GeneratePanelTexture(ctx, req)

	pkg, getErr := s.store.GetPackaging(ctx)
	if getErr != nil {
		return getErr
	}

	pkg.InProgress = false
	pkg.GeneratingPanelID = ""

	switch {
	case err != nil:
		pkg.LastError = err.Error()
		s.logger.Error("panel generation failed",
			zap.String("panel_id", req.PanelID),
			zap.Error(err))
	case texture == nil:
		pkg.LastError = fmt.Sprintf("no texture generated for panel %s", req.PanelID)
	default:
		pkg.LastError = ""
		pkg.PanelTextures[req.PanelID] = *texture
	}

	if saveErr := s.store.SavePackaging(ctx, pkg); saveErr != nil {
		return saveErr
	}
	return err
}

// buildHeuristicPrompt picks one of three prompt shapes: an explicit
// solid-color instruction when a color word is present, a generic uniform
// color instruction when the intent is plain but no color is extractable,
// and a multi-constraint creative instruction otherwise.
func buildHeuristicPrompt(req Request) string {
	panelContext := panelContext(req.PanelID, req.PackageType)
	dims := fmt.Sprintf("%gmm × %gmm", req.PanelDims.WidthMM, req.PanelDims.HeightMM)

	lower := strings.ToLower(req.Prompt)
	color := colorWords.FindString(lower)

	simpleColor := false
	for _, kw := range simpleColorKeywords {
		if strings.Contains(lower, kw) {
			simpleColor = true
			break
		}
	}

	switch {
	case simpleColor && color != "":
		return fmt.Sprintf(
			"Generate a flat, solid %[1]s color texture for a packaging panel. "+
				"This is the %[2]s panel with dimensions %[3]s. "+
				"\n\n"+
				"CRITICAL REQUIREMENTS:\n"+
				"- The entire surface must be exactly %[1]s color, nothing else\n"+
				"- No borders, no edges, no frames, no outlines\n"+
				"- No gradients, no patterns, no designs, no shadows\n"+
				"- The color must extend edge-to-edge, covering 100%% of the %[3]s area\n"+
				"- Every single pixel must be the exact same %[1]s color\n"+
				"- This is a flat 2D texture, not a 3D object or photograph\n"+
				"- No lighting effects, no depth, no perspective\n"+
				"- The texture must be completely uniform and seamless\n"+
				"- Think of it like a solid color swatch or paint sample - pure %[1]s from edge to edge",
			color, panelContext, dims)

	case simpleColor:
		return fmt.Sprintf(
			"Generate a flat, solid color texture for a packaging panel. "+
				"This is the %[1]s panel with dimensions %[2]s. "+
				"The user wants: %[3]s\n\n"+
				"CRITICAL REQUIREMENTS:\n"+
				"- The entire surface must be a single, uniform color covering 100%% of the area\n"+
				"- No borders, no edges, no frames, no outlines\n"+
				"- No gradients, no patterns, no designs, no shadows\n"+
				"- The color must extend edge-to-edge, covering the full %[2]s area\n"+
				"- This is a flat 2D texture, not a 3D object or photograph\n"+
				"- No lighting effects, no depth, no perspective\n"+
				"- The texture must be completely uniform and seamless",
			panelContext, dims, req.Prompt)

	default:
		return fmt.Sprintf(
			"Create a professional packaging design texture for a %[1]s package panel. "+
				"This is the %[2]s panel with dimensions %[3]s. "+
				"%[4]s\n\n"+
				"The design should be suitable for printing on packaging material. "+
				"Create a flat, seamless design that covers 100%% of the %[3]s surface area. "+
				"Ensure the design is high-quality, print-ready, and visually appealing. "+
				"The design must fill the entire panel area without any gaps, borders, or empty spaces. "+
				"Avoid any 3D effects or perspective - this is a flat texture that will be applied to a surface.",
			req.PackageType, panelContext, dims, req.Prompt)
	}
}

// panelContext describes a panel's role on the package.
func panelContext(panelID string, packageType state.PackageType) string {
	var contexts map[string]string
	if packageType == state.PackageBox {
		contexts = map[string]string{
			"front":  "front face (primary visible panel)",
			"back":   "back face (opposite side)",
			"left":   "left side panel",
			"right":  "right side panel",
			"top":    "top face (lid/opening area)",
			"bottom": "bottom face (base)",
		}
	} else {
		contexts = map[string]string{
			"body":   "cylindrical body wrap (curved surface)",
			"top":    "top circular cap",
			"bottom": "bottom circular base",
		}
	}

	if desc, ok := contexts[panelID]; ok {
		return desc
	}
	return panelID
}
