package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/pipeline"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// ProductPipeline runs the real generation flows.
type ProductPipeline interface {
	RunCreate(ctx context.Context, prompt string, imageCount int) error
	RunEdit(ctx context.Context, prompt string) error
	RunMeshOnly(ctx context.Context, prompt string, images []string, mode state.GenerationMode) error
}

// MockPipeline runs the demo flows in place of the real providers.
type MockPipeline interface {
	RunMockCreate(ctx context.Context, prompt string, imageCount int) error
	RunMockEdit(ctx context.Context, prompt string) error
}

// Exporter materializes export files on disk.
type Exporter interface {
	ExportProduct(ctx context.Context, st *state.ProductState, sessionID string) (map[string]string, error)
	ExportPackage(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error)
	ExportDieline(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error)
	LookupExportFile(fileType, sessionID, format string) (string, bool)
}

// ProductHandler serves the product generation endpoints.
type ProductHandler struct {
	store    state.Store
	pipeline ProductPipeline
	mock     MockPipeline // non-nil only in demo mock mode
	exporter Exporter
	runner   *pipeline.Runner
	logger   *zap.Logger
}

// NewProductHandler creates the product endpoint handler. mock may be nil;
// when set, create and edit runs go through the mock pipeline.
func NewProductHandler(store state.Store, pl ProductPipeline, mock MockPipeline, exporter Exporter, runner *pipeline.Runner, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		store:    store,
		pipeline: pl,
		mock:     mock,
		exporter: exporter,
		runner:   runner,
		logger:   logger.With(zap.String("component", "product_handler")),
	}
}

// RegisterRoutes mounts the product endpoints.
func (h *ProductHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /product/create", h.HandleCreate)
	mux.HandleFunc("POST /product/edit", h.HandleEdit)
	mux.HandleFunc("POST /product/trellis-only", h.HandleMeshOnly)
	mux.HandleFunc("GET /product", h.HandleState)
	mux.HandleFunc("GET /product/status", h.HandleStatus)
	mux.HandleFunc("POST /product/recover", h.HandleRecover)
	mux.HandleFunc("POST /product/rewind/{index}", h.HandleRewind)
	mux.HandleFunc("POST /product/export", h.HandleExport)
	mux.HandleFunc("GET /product/export/{format}", h.HandleDownloadExport)
}

type productCreateRequest struct {
	Prompt     string `json:"prompt"`
	ImageCount int    `json:"image_count"`
}

type productEditRequest struct {
	Prompt string `json:"prompt"`
}

type meshOnlyRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Mode   string   `json:"mode"`
}

// autoRecoverIfNeeded clears a stale in-progress flag when no background
// task is actually running, e.g. after a restart mid-generation.
func (h *ProductHandler) autoRecoverIfNeeded(ctx context.Context, st *state.ProductState) (bool, error) {
	if !st.InProgress {
		return false, nil
	}
	if h.runner.Active() > 0 {
		return false, nil
	}

	h.logger.Warn("auto-recovering stale in-progress state")
	st.InProgress = false
	st.Status = state.StatusIdle
	st.Message = "Recovered from interrupted generation"
	st.GenerationStarted = nil
	if err := h.store.SaveProduct(ctx, st); err != nil {
		return false, err
	}

	status := &state.ProductStatus{
		Status:   state.StatusIdle,
		Progress: 0,
		Message:  "Recovered from interrupted generation",
	}
	if err := h.store.SaveStatus(ctx, status); err != nil {
		return false, err
	}
	return true, nil
}

// ensureNotBusy rejects the request with 409 when a generation is running.
func (h *ProductHandler) ensureNotBusy(ctx context.Context, w http.ResponseWriter, st *state.ProductState) bool {
	if !st.InProgress {
		return true
	}
	recovered, err := h.autoRecoverIfNeeded(ctx, st)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return false
	}
	if recovered {
		return true
	}
	WriteErrorMessage(w, http.StatusConflict, types.ErrGenerationBusy, "Generation already running", h.logger)
	return false
}

// HandleCreate starts the create pipeline and returns the initial status.
func (h *ProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req productCreateRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n < 5 || n > 2000 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"prompt must be between 5 and 2000 characters", h.logger)
		return
	}
	if req.ImageCount == 0 {
		req.ImageCount = 1
	}
	if req.ImageCount < 1 || req.ImageCount > 6 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"image_count must be between 1 and 6", h.logger)
		return
	}

	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if !h.ensureNotBusy(ctx, w, st) {
		return
	}

	h.logger.Info("queuing create request", zap.Int("image_count", req.ImageCount))

	now := time.Now().UTC()
	st.Prompt = req.Prompt
	st.LatestInstruction = req.Prompt
	st.Mode = state.ModeCreate
	st.Status = state.StatusPending
	st.Message = "Preparing product generation"
	st.InProgress = true
	st.GenerationStarted = &now
	st.ImageCount = req.ImageCount
	st.Images = []string{}
	st.Trellis = nil
	st.Iterations = []state.ProductIteration{}
	st.LastError = ""
	if err := h.store.SaveProduct(ctx, st); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	payload := &state.ProductStatus{Status: state.StatusPending, Progress: 0, Message: "Preparing product generation"}
	if err := h.store.SaveStatus(ctx, payload); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	prompt, count := req.Prompt, req.ImageCount
	h.runner.Go("product-create", func(ctx context.Context) error {
		if h.mock != nil {
			return h.mock.RunMockCreate(ctx, prompt, count)
		}
		return h.pipeline.RunCreate(ctx, prompt, count)
	})

	WriteSuccess(w, payload)
}

// HandleEdit starts the edit pipeline using the existing product context.
func (h *ProductHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req productEditRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n < 3 || n > 2000 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"prompt must be between 3 and 2000 characters", h.logger)
		return
	}

	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if !h.ensureNotBusy(ctx, w, st) {
		return
	}
	if st.Prompt == "" || len(st.Images) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"No base product available to edit", h.logger)
		return
	}

	h.logger.Info("queuing edit request")

	now := time.Now().UTC()
	st.LatestInstruction = req.Prompt
	st.Mode = state.ModeEdit
	st.Status = state.StatusPending
	st.Message = "Preparing edit request"
	st.InProgress = true
	st.GenerationStarted = &now
	if err := h.store.SaveProduct(ctx, st); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	payload := &state.ProductStatus{Status: state.StatusPending, Progress: 0, Message: "Preparing edit request"}
	if err := h.store.SaveStatus(ctx, payload); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	prompt := req.Prompt
	h.runner.Go("product-edit", func(ctx context.Context) error {
		if h.mock != nil {
			return h.mock.RunMockEdit(ctx, prompt)
		}
		return h.pipeline.RunEdit(ctx, prompt)
	})

	WriteSuccess(w, payload)
}

// HandleMeshOnly starts a mesh-only run from caller-supplied images.
func (h *ProductHandler) HandleMeshOnly(w http.ResponseWriter, r *http.Request) {
	var req meshOnlyRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if len(req.Images) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"at least one image is required", h.logger)
		return
	}
	mode := state.GenerationMode(req.Mode)
	if mode == "" {
		mode = state.ModeCreate
	}
	if mode != state.ModeCreate && mode != state.ModeEdit {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"mode must be create or edit", h.logger)
		return
	}

	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if !h.ensureNotBusy(ctx, w, st) {
		return
	}

	now := time.Now().UTC()
	st.Mode = mode
	st.Status = state.StatusPending
	st.Message = "Preparing 3D generation"
	st.InProgress = true
	st.GenerationStarted = &now
	if err := h.store.SaveProduct(ctx, st); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	payload := &state.ProductStatus{Status: state.StatusPending, Progress: 0, Message: "Preparing 3D generation"}
	if err := h.store.SaveStatus(ctx, payload); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	prompt, images := req.Prompt, req.Images
	h.runner.Go("product-mesh-only", func(ctx context.Context) error {
		return h.pipeline.RunMeshOnly(ctx, prompt, images, mode)
	})

	WriteSuccess(w, payload)
}

// HandleState returns the full persisted state blob.
func (h *ProductHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.GetProduct(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, st)
}

// HandleStatus returns the lightweight poll-friendly status projection.
func (h *ProductHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.GetStatus(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleRecover clears a stale in-progress flag when no task is running.
func (h *ProductHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	recovered, err := h.autoRecoverIfNeeded(ctx, st)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"recovered":        recovered,
		"in_progress":      st.InProgress,
		"has_active_tasks": h.runner.Active() > 0,
	})
}

// HandleRewind reverts the product state to a previous iteration.
func (h *ProductHandler) HandleRewind(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"Invalid iteration index", h.logger)
		return
	}

	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	if st.InProgress {
		WriteErrorMessage(w, http.StatusConflict, types.ErrGenerationBusy,
			"Cannot rewind while generation is running", h.logger)
		return
	}
	if index < 0 || index >= len(st.Iterations) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"Invalid iteration index", h.logger)
		return
	}

	target := st.Iterations[index]
	st.Iterations = st.Iterations[:index+1]
	st.Images = append([]string(nil), target.Images...)
	st.Trellis = target.Artifacts
	st.LatestInstruction = target.Prompt
	if target.Type == state.ModeCreate {
		st.Prompt = target.Prompt
	}
	st.Mode = target.Type
	st.Status = state.StatusIdle
	st.Message = "Rewound to previous version"
	st.InProgress = false
	st.LastError = ""
	if err := h.store.SaveProduct(ctx, st); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	status := &state.ProductStatus{
		Status:   state.StatusIdle,
		Progress: 0,
		Message:  "Rewound to previous version",
	}
	if target.Artifacts != nil {
		status.ModelFile = target.Artifacts.ModelFile
		if len(target.Artifacts.NoBackgroundImages) > 0 {
			status.PreviewImage = target.Artifacts.NoBackgroundImages[0]
		}
	}
	if err := h.store.SaveStatus(ctx, status); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"status":           "rewound",
		"iteration_index":  index,
		"total_iterations": len(st.Iterations),
	})
}

// sessionID derives the export session from the latest iteration, so a
// fresh generation or a rewind invalidates previous export files while
// bookkeeping saves (such as persisting the export file map) do not.
func sessionID(st *state.ProductState) string {
	if n := len(st.Iterations); n > 0 {
		return strconv.FormatInt(st.Iterations[n-1].CreatedAt.Unix(), 10)
	}
	return strconv.FormatInt(st.UpdatedAt.Unix(), 10)
}

// HandleExport generates the product export files (blend/stl/jpg).
func (h *ProductHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if !st.HasModel() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"No product model available for export", h.logger)
		return
	}

	files, err := h.exporter.ExportProduct(ctx, st, sessionID(st))
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrExportFailed,
			fmt.Sprintf("Export failed: %v", err), h.logger)
		return
	}

	st.ExportFiles = files
	if err := h.store.SaveProduct(ctx, st); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"status": "success",
		"files":  files,
	})
}

var exportMediaTypes = map[string]string{
	"blend": "application/octet-stream", // OBJ file
	"stl":   "application/octet-stream",
	"jpg":   "image/jpeg",
	"svg":   "image/svg+xml",
	"pdf":   "application/pdf",
}

// serveExportFile writes a download response with the proper content type.
// The blend format downloads as a .obj file.
func serveExportFile(w http.ResponseWriter, r *http.Request, path, fileType, format string) {
	ext := format
	if format == "blend" {
		ext = "obj"
	}
	mediaType := exportMediaTypes[format]
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", fileType, ext))
	http.ServeFile(w, r, path)
}

// HandleDownloadExport serves one exported product file, generating the
// export set lazily when it is missing.
func (h *ProductHandler) HandleDownloadExport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if format != "blend" && format != "stl" && format != "jpg" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("Invalid format: %s", format), h.logger)
		return
	}

	ctx := r.Context()
	st, err := h.store.GetProduct(ctx)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if !st.HasModel() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"No product model available for export", h.logger)
		return
	}

	session := sessionID(st)
	path, ok := h.exporter.LookupExportFile("product", session, format)
	if !ok {
		files, err := h.exporter.ExportProduct(ctx, st, session)
		if err != nil {
			h.logger.Error("lazy export failed", zap.Error(err))
			WriteErrorMessage(w, http.StatusInternalServerError, types.ErrExportFailed,
				fmt.Sprintf("Export generation failed: %v", err), h.logger)
			return
		}
		st.ExportFiles = files
		if err := h.store.SaveProduct(ctx, st); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		path, ok = h.exporter.LookupExportFile("product", session, format)
	}
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("Export file not found: %s", format), h.logger)
		return
	}

	serveExportFile(w, r, path, "product", format)
}
