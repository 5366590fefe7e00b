package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// DemoHandler serves the demo seeding endpoints: pre-loading product and
// packaging state so presentations don't wait on live generation.
type DemoHandler struct {
	store  state.Store
	cfg    config.DemoConfig
	logger *zap.Logger
}

// NewDemoHandler creates the demo endpoint handler.
func NewDemoHandler(store state.Store, cfg config.DemoConfig, logger *zap.Logger) *DemoHandler {
	return &DemoHandler{
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "demo_handler")),
	}
}

// RegisterRoutes mounts the demo endpoints.
func (h *DemoHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /demo/seed-product", h.HandleSeedProduct)
	mux.HandleFunc("POST /demo/seed-packaging", h.HandleSeedPackaging)
	mux.HandleFunc("POST /demo/seed-from-fixtures", h.HandleSeedFromFixtures)
	mux.HandleFunc("POST /demo/clear", h.HandleClear)
	mux.HandleFunc("GET /demo/export-current", h.HandleExportCurrent)
	mux.HandleFunc("GET /demo/mock-status", h.HandleMockStatus)
}

type seedProductRequest struct {
	Prompt             string   `json:"prompt"`
	ModelURL           string   `json:"model_url"`
	PreviewImages      []string `json:"preview_images"`
	NoBackgroundImages []string `json:"no_background_images"`
}

type seedPanelTexture struct {
	TextureURL string `json:"texture_url"`
	Prompt     string `json:"prompt"`
}

type seedPackagingRequest struct {
	PackageType   string                      `json:"package_type"`
	Dimensions    dimensionsPayload           `json:"dimensions"`
	PanelTextures map[string]seedPanelTexture `json:"panel_textures"`
}

func (h *DemoHandler) seedProduct(ctx context.Context, req seedProductRequest) error {
	if err := h.store.ClearProduct(ctx); err != nil {
		return err
	}

	if req.Prompt == "" {
		req.Prompt = "Demo Product"
	}

	artifacts := &state.TrellisArtifacts{
		ModelFile:          req.ModelURL,
		NoBackgroundImages: req.NoBackgroundImages,
	}
	iteration := state.ProductIteration{
		ID:        fmt.Sprintf("demo_%d", time.Now().Unix()),
		Type:      state.ModeCreate,
		Prompt:    req.Prompt,
		Images:    req.PreviewImages,
		Artifacts: artifacts,
		CreatedAt: time.Now().UTC(),
		Note:      "Pre-loaded for demo",
	}

	st := state.NewProductState()
	st.Prompt = req.Prompt
	st.Status = state.StatusComplete
	st.Message = "Demo product loaded"
	st.Images = req.PreviewImages
	st.Trellis = artifacts
	st.Iterations = []state.ProductIteration{iteration}
	if err := h.store.SaveProduct(ctx, st); err != nil {
		return err
	}

	status := &state.ProductStatus{
		Status:    state.StatusComplete,
		Progress:  100,
		Message:   "Demo product ready",
		ModelFile: req.ModelURL,
	}
	if len(req.PreviewImages) > 0 {
		status.PreviewImage = req.PreviewImages[0]
	}
	return h.store.SaveStatus(ctx, status)
}

func (h *DemoHandler) seedPackaging(ctx context.Context, req seedPackagingRequest) error {
	if err := h.store.ClearPackaging(ctx); err != nil {
		return err
	}

	pkg := state.NewPackagingState()
	if req.PackageType != "" {
		pkg.PackageType = state.PackageType(req.PackageType)
	}
	if req.Dimensions != (dimensionsPayload{}) {
		if pkg.PackageType == state.PackageCylinder {
			pkg.Cylinder = req.Dimensions.toDimensions()
		} else {
			pkg.Box = req.Dimensions.toDimensions()
		}
	}

	for panelID, data := range req.PanelTextures {
		prompt := data.Prompt
		if prompt == "" {
			prompt = fmt.Sprintf("Demo %s panel", panelID)
		}
		pkg.PanelTextures[panelID] = state.PanelTexture{
			PanelID:     panelID,
			TextureURL:  data.TextureURL,
			Prompt:      prompt,
			WidthMM:     req.Dimensions.Width,
			HeightMM:    req.Dimensions.Height,
			GeneratedAt: time.Now().UTC(),
		}
	}

	return h.store.SavePackaging(ctx, pkg)
}

// HandleSeedProduct loads a pre-generated model into the product state.
func (h *DemoHandler) HandleSeedProduct(w http.ResponseWriter, r *http.Request) {
	var req seedProductRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if req.ModelURL == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"model_url is required", h.logger)
		return
	}

	h.logger.Info("seeding product state")
	if err := h.seedProduct(r.Context(), req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{
		"message":   "Product seeded for demo",
		"prompt":    req.Prompt,
		"model_url": req.ModelURL,
	})
}

// HandleSeedPackaging loads pre-generated panel textures into the
// packaging state.
func (h *DemoHandler) HandleSeedPackaging(w http.ResponseWriter, r *http.Request) {
	var req seedPackagingRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("seeding packaging state", zap.Int("textures", len(req.PanelTextures)))
	if err := h.seedPackaging(r.Context(), req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	panels := make([]string, 0, len(req.PanelTextures))
	for panelID := range req.PanelTextures {
		panels = append(panels, panelID)
	}
	WriteSuccess(w, map[string]interface{}{
		"message":       "Packaging seeded for demo",
		"package_type":  req.PackageType,
		"panels_loaded": panels,
	})
}

type demoFixturesFile struct {
	Product       *seedProductRequest   `json:"product"`
	ProductCreate *seedProductRequest   `json:"product_create"`
	Packaging     *seedPackagingRequest `json:"packaging"`
}

// HandleSeedFromFixtures seeds product and packaging state from the
// configured fixtures file. Placeholder entries are skipped.
func (h *DemoHandler) HandleSeedFromFixtures(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.cfg.FixturesPath)
	if err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("Fixtures file not found: %s", h.cfg.FixturesPath), h.logger)
		return
	}

	var fixtures demoFixturesFile
	if err := json.Unmarshal(data, &fixtures); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("Invalid JSON in fixtures file: %v", err), h.logger)
		return
	}

	ctx := r.Context()
	results := map[string]string{}

	product := fixtures.Product
	if product == nil {
		product = fixtures.ProductCreate
	}
	if product != nil && product.ModelURL != "" && !strings.HasPrefix(product.ModelURL, "PASTE") {
		if err := h.seedProduct(ctx, *product); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		results["product"] = "Seeded"
	} else {
		results["product"] = "Skipped (no valid model_url)"
	}

	if fixtures.Packaging != nil {
		valid := map[string]seedPanelTexture{}
		for panelID, tex := range fixtures.Packaging.PanelTextures {
			if tex.TextureURL != "" && !strings.HasPrefix(tex.TextureURL, "PASTE") {
				valid[panelID] = tex
			}
		}
		if len(valid) > 0 {
			req := *fixtures.Packaging
			req.PanelTextures = valid
			if err := h.seedPackaging(ctx, req); err != nil {
				WriteAnyError(w, err, h.logger)
				return
			}
			results["packaging"] = fmt.Sprintf("Seeded %d panels", len(valid))
		} else {
			results["packaging"] = "Skipped (no valid texture URLs)"
		}
	} else {
		results["packaging"] = "Skipped (no valid texture URLs)"
	}

	h.logger.Info("fixtures loaded",
		zap.String("product", results["product"]),
		zap.String("packaging", results["packaging"]))
	WriteSuccess(w, map[string]interface{}{
		"message": "Demo fixtures loaded",
		"results": results,
	})
}

// HandleClear wipes product, status, and packaging state.
func (h *DemoHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.ClearProduct(ctx); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if err := h.store.ClearStatus(ctx); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if err := h.store.ClearPackaging(ctx); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("demo state cleared")
	WriteSuccess(w, map[string]string{"message": "Demo state cleared"})
}

// HandleExportCurrent dumps the current state as fixture-ready JSON, so a
// good generation can be pasted into the fixtures file for future demos.
func (h *DemoHandler) HandleExportCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	iterationType := state.ModeCreate
	if len(st.Iterations) > 0 {
		iterationType = st.Iterations[len(st.Iterations)-1].Type
	}

	prompt := st.Prompt
	if iterationType == state.ModeEdit {
		prompt = st.LatestInstruction
	}

	capAt := func(items []string, n int) []string {
		if len(items) > n {
			return items[:n]
		}
		return items
	}

	productData := map[string]interface{}{
		"prompt":               prompt,
		"model_url":            "",
		"preview_images":       capAt(st.Images, 3),
		"no_background_images": []string{},
	}
	if st.Trellis != nil {
		productData["model_url"] = st.Trellis.ModelFile
		productData["no_background_images"] = capAt(st.Trellis.NoBackgroundImages, 3)
	}

	textures := map[string]map[string]string{}
	for panelID, tex := range pkg.PanelTextures {
		textures[panelID] = map[string]string{
			"texture_url": tex.TextureURL,
			"prompt":      tex.Prompt,
		}
	}

	export := map[string]interface{}{
		"_comment": fmt.Sprintf(
			"This is a %s export. Copy to product_%s in the fixtures file",
			strings.ToUpper(string(iterationType)), iterationType),
		"_iteration_type": iterationType,
		"packaging": map[string]interface{}{
			"package_type":   pkg.PackageType,
			"dimensions":     pkg.ActiveDimensions(),
			"panel_textures": textures,
		},
	}
	export[fmt.Sprintf("product_%s", iterationType)] = productData

	WriteSuccess(w, export)
}

// HandleMockStatus reports whether demo mock mode is active and its
// configuration.
func (h *DemoHandler) HandleMockStatus(w http.ResponseWriter, r *http.Request) {
	_, statErr := os.Stat(h.cfg.FixturesPath)

	WriteSuccess(w, map[string]interface{}{
		"demo_mock_mode":       h.cfg.MockMode,
		"create_delay_seconds": h.cfg.CreateDelay.Seconds(),
		"edit_delay_seconds":   h.cfg.EditDelay.Seconds(),
		"fixtures_path":        h.cfg.FixturesPath,
		"fixtures_exist":       statErr == nil,
	})
}
