package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/panels"
	"github.com/openfoundry/forge3d/pipeline"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// PanelGenerator runs one panel texture generation to completion,
// recording the outcome in the packaging state.
type PanelGenerator interface {
	RunGeneration(ctx context.Context, req panels.Request) error
}

// PackagingHandler serves the packaging endpoints: panel textures,
// package mesh exports, and dieline exports.
type PackagingHandler struct {
	store    state.Store
	panels   PanelGenerator
	exporter Exporter
	runner   *pipeline.Runner
	logger   *zap.Logger
}

// NewPackagingHandler creates the packaging endpoint handler.
func NewPackagingHandler(store state.Store, panelSvc PanelGenerator, exporter Exporter, runner *pipeline.Runner, logger *zap.Logger) *PackagingHandler {
	return &PackagingHandler{
		store:    store,
		panels:   panelSvc,
		exporter: exporter,
		runner:   runner,
		logger:   logger.With(zap.String("component", "packaging_handler")),
	}
}

// RegisterRoutes mounts the packaging endpoints.
func (h *PackagingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /packaging/panels/generate", h.HandleGeneratePanel)
	mux.HandleFunc("GET /packaging/state", h.HandleState)
	mux.HandleFunc("GET /packaging/panels/{id}/texture", h.HandleGetPanelTexture)
	mux.HandleFunc("DELETE /packaging/panels/{id}/texture", h.HandleDeletePanelTexture)
	mux.HandleFunc("POST /packaging/export", h.HandleExportPackage)
	mux.HandleFunc("GET /packaging/export/{format}", h.HandleDownloadPackageExport)
	mux.HandleFunc("POST /packaging/dieline/export", h.HandleExportDieline)
	mux.HandleFunc("GET /packaging/dieline/export/{format}", h.HandleDownloadDielineExport)
}

type dimensionsPayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

func (d dimensionsPayload) toDimensions() state.Dimensions {
	return state.Dimensions{WidthMM: d.Width, HeightMM: d.Height, DepthMM: d.Depth}
}

type panelGenerateRequest struct {
	PanelID           string            `json:"panel_id"`
	Prompt            string            `json:"prompt"`
	PackageType       string            `json:"package_type"`
	PanelDimensions   dimensionsPayload `json:"panel_dimensions"`
	PackageDimensions dimensionsPayload `json:"package_dimensions"`
}

// HandleGeneratePanel marks the packaging state as generating and launches
// the texture generation in the background.
func (h *PackagingHandler) HandleGeneratePanel(w http.ResponseWriter, r *http.Request) {
	var req panelGenerateRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if req.PanelID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"panel_id is required", h.logger)
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n < 3 || n > 2000 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"prompt must be between 3 and 2000 characters", h.logger)
		return
	}
	pkgType := state.PackageType(req.PackageType)
	if pkgType != state.PackageBox && pkgType != state.PackageCylinder {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"package_type must be box or cylinder", h.logger)
		return
	}
	if err := panels.ValidatePrompt(req.Prompt); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	h.logger.Info("received panel texture request",
		zap.String("panel_id", req.PanelID),
		zap.String("package_type", req.PackageType))

	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	pkg.PackageType = pkgType
	if pkgType == state.PackageCylinder {
		pkg.Cylinder = req.PackageDimensions.toDimensions()
	} else {
		pkg.Box = req.PackageDimensions.toDimensions()
	}
	pkg.InProgress = true
	pkg.GeneratingPanelID = req.PanelID
	pkg.LastError = ""
	if err := h.store.SavePackaging(ctx, pkg); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	genReq := panels.Request{
		PanelID:     req.PanelID,
		Prompt:      req.Prompt,
		PackageType: pkgType,
		PanelDims:   req.PanelDimensions.toDimensions(),
		PackageDims: req.PackageDimensions.toDimensions(),
	}
	h.runner.Go("panel-"+req.PanelID, func(ctx context.Context) error {
		return h.panels.RunGeneration(ctx, genReq)
	})

	WriteSuccessStatus(w, http.StatusAccepted, map[string]interface{}{
		"status":   "generating",
		"panel_id": req.PanelID,
		"message":  fmt.Sprintf("Generating texture for %s panel", req.PanelID),
	})
}

// HandleState returns the packaging state blob.
func (h *PackagingHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.store.GetPackaging(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, pkg)
}

// HandleGetPanelTexture returns a panel's texture, 202 while it is being
// generated, 404 when absent.
func (h *PackagingHandler) HandleGetPanelTexture(w http.ResponseWriter, r *http.Request) {
	panelID := r.PathValue("id")

	pkg, err := h.store.GetPackaging(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	texture, ok := pkg.PanelTextures[panelID]
	if !ok {
		if pkg.InProgress && pkg.GeneratingPanelID == panelID {
			WriteErrorMessage(w, http.StatusAccepted, types.ErrGenerationBusy,
				fmt.Sprintf("Texture generation in progress for panel %s", panelID), h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("No texture found for panel %s", panelID), h.logger)
		return
	}

	WriteSuccess(w, texture)
}

// HandleDeletePanelTexture removes a panel texture if present.
func (h *PackagingHandler) HandleDeletePanelTexture(w http.ResponseWriter, r *http.Request) {
	panelID := r.PathValue("id")

	ctx := r.Context()
	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	if _, ok := pkg.PanelTextures[panelID]; ok {
		delete(pkg.PanelTextures, panelID)
		if err := h.store.SavePackaging(ctx, pkg); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
	}

	WriteSuccess(w, map[string]string{
		"status":   "deleted",
		"panel_id": panelID,
	})
}

func packagingSessionID(pkg *state.PackagingState) string {
	return strconv.FormatInt(pkg.UpdatedAt.Unix(), 10)
}

// HandleExportPackage generates mesh export files from the package
// dimensions.
func (h *PackagingHandler) HandleExportPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	files, err := h.exporter.ExportPackage(ctx, pkg, packagingSessionID(pkg))
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrExportFailed,
			fmt.Sprintf("Export failed: %v", err), h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"status": "success",
		"files":  files,
	})
}

// HandleDownloadPackageExport serves one package export file, generating
// the set lazily when missing.
func (h *PackagingHandler) HandleDownloadPackageExport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if format != "blend" && format != "stl" && format != "jpg" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("Invalid format: %s", format), h.logger)
		return
	}

	h.downloadPackagingExport(w, r, "package", format, h.exporter.ExportPackage)
}

// HandleExportDieline generates the dieline drawing files (svg/pdf/jpg).
func (h *PackagingHandler) HandleExportDieline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	files, err := h.exporter.ExportDieline(ctx, pkg, packagingSessionID(pkg))
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrExportFailed,
			fmt.Sprintf("Export failed: %v", err), h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"status": "success",
		"files":  files,
	})
}

// HandleDownloadDielineExport serves one dieline export file.
func (h *PackagingHandler) HandleDownloadDielineExport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if format != "svg" && format != "pdf" && format != "jpg" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("Invalid format: %s", format), h.logger)
		return
	}

	h.downloadPackagingExport(w, r, "dieline", format, h.exporter.ExportDieline)
}

func (h *PackagingHandler) downloadPackagingExport(
	w http.ResponseWriter,
	r *http.Request,
	fileType, format string,
	generate func(context.Context, *state.PackagingState, string) (map[string]string, error),
) {
	ctx := r.Context()
	pkg, err := h.store.GetPackaging(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	session := packagingSessionID(pkg)
	path, ok := h.exporter.LookupExportFile(fileType, session, format)
	if !ok {
		if _, err := generate(ctx, pkg, session); err != nil {
			WriteErrorMessage(w, http.StatusInternalServerError, types.ErrExportFailed,
				fmt.Sprintf("Export generation failed: %v", err), h.logger)
			return
		}
		path, ok = h.exporter.LookupExportFile(fileType, session, format)
	}
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("Export file not found: %s", format), h.logger)
		return
	}

	serveExportFile(w, r, path, fileType, format)
}
