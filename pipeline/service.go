package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/genai/image"
	"github.com/openfoundry/forge3d/genai/threed"
	"github.com/openfoundry/forge3d/internal/metrics"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// Progress milestones for the real pipeline. Image generation advances from
// imagesStart to imagesEnd per view; the mesh provider reports inside
// meshStart..meshEnd; complete is always 100.
const (
	progressImagesStart = 10
	progressImagesEnd   = 40
	progressMeshStart   = 45
	progressMeshEnd     = 92
)

// Service runs the generation flows against the real providers and keeps
// the persisted state and status projection in sync at every transition.
type Service struct {
	store   state.Store
	images  image.Generator
	threed  threed.Generator
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewService creates a pipeline service.
func NewService(store state.Store, images image.Generator, td threed.Generator, collector *metrics.Collector, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		images:  images,
		threed:  td,
		metrics: collector,
		logger:  logger.With(zap.String("component", "pipeline")),
	}
}

// run carries the shared bookkeeping of one pipeline run.
type run struct {
	svc      *Service
	ctx      context.Context
	kind     state.GenerationMode
	started  time.Time
	progress int
}

// setStatus persists a status projection, clamping progress so it never
// goes backwards within a run.
func (r *run) setStatus(status state.PipelineStatus, progress int, message string) {
	if progress < r.progress {
		progress = r.progress
	}
	r.progress = progress

	st := &state.ProductStatus{Status: status, Progress: progress, Message: message}
	if err := r.svc.store.SaveStatus(r.ctx, st); err != nil {
		r.svc.logger.Warn("failed to save status", zap.Error(err))
	}
}

// fail records a terminal error: the displayed message lands in the status
// projection and the state blob, previously generated fields stay intact.
func (r *run) fail(err error) error {
	message := displayMessage(err)
	r.svc.logger.Error("pipeline run failed",
		zap.String("kind", string(r.kind)),
		zap.Error(err))

	st, getErr := r.svc.store.GetProduct(r.ctx)
	if getErr == nil {
		st.Status = state.StatusError
		st.Message = message
		st.LastError = err.Error()
		st.InProgress = false
		st.GenerationStarted = nil
		if saveErr := r.svc.store.SaveProduct(r.ctx, st); saveErr != nil {
			r.svc.logger.Warn("failed to save error state", zap.Error(saveErr))
		}
	}

	r.progress = 0
	r.setStatus(state.StatusError, 0, message)
	r.svc.metrics.RecordGenerationRun(string(r.kind), "error", time.Since(r.started))
	return err
}

// displayMessage maps an error to the message shown to the user.
func displayMessage(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrQuotaExceeded:
		return "Image generation quota exceeded. Please try again later."
	case types.ErrContentFiltered:
		return "The prompt was blocked by safety filters. Please rephrase and try again."
	case types.ErrUpstreamTimeout:
		return "Generation timed out. Please try again."
	case types.ErrGenerationFailed:
		return "Generation failed. Please try again."
	default:
		return fmt.Sprintf("Generation failed: %v", err)
	}
}

// RunCreate executes the create flow: fresh image batch, then a mesh from
// the generated views.
func (s *Service) RunCreate(ctx context.Context, prompt string, imageCount int) error {
	r := &run{svc: s, ctx: ctx, kind: state.ModeCreate, started: time.Now()}

	if err := s.checkProviders(); err != nil {
		return r.fail(err)
	}

	r.setStatus(state.StatusGeneratingImages, progressImagesStart, "Generating product images with AI...")
	if err := s.updateState(ctx, func(st *state.ProductState) {
		st.Status = state.StatusGeneratingImages
		st.Message = "Generating product images..."
	}); err != nil {
		return r.fail(err)
	}

	images, err := s.images.GenerateProductImages(ctx, image.ProductImageRequest{
		Prompt:   prompt,
		Workflow: image.WorkflowCreate,
		Count:    imageCount,
		OnImage: func(done, total int) {
			p := progressImagesStart + (progressImagesEnd-progressImagesStart)*done/total
			r.setStatus(state.StatusGeneratingImages, p,
				fmt.Sprintf("Generated view %d of %d", done, total))
		},
	})
	if err != nil {
		return r.fail(err)
	}
	if len(images) == 0 {
		return r.fail(types.NewError(types.ErrGenerationFailed, "no images produced").
			WithProvider("gemini"))
	}

	return s.finishWithMesh(r, prompt, images, state.ModeCreate)
}

// RunEdit executes the edit flow: the current images are the references for
// a new batch, then a mesh from the edited views.
func (s *Service) RunEdit(ctx context.Context, prompt string) error {
	r := &run{svc: s, ctx: ctx, kind: state.ModeEdit, started: time.Now()}

	if err := s.checkProviders(); err != nil {
		return r.fail(err)
	}

	st, err := s.store.GetProduct(ctx)
	if err != nil {
		return r.fail(err)
	}
	if len(st.Images) == 0 {
		return r.fail(types.NewError(types.ErrInvalidRequest, "no base product available to edit"))
	}
	refs := st.Images
	count := len(st.Images)
	if st.ImageCount > 0 {
		count = st.ImageCount
	}

	r.setStatus(state.StatusGeneratingImages, progressImagesStart, "Generating edited product images...")
	if err := s.updateState(ctx, func(st *state.ProductState) {
		st.Status = state.StatusGeneratingImages
		st.Message = "Generating edited product images..."
	}); err != nil {
		return r.fail(err)
	}

	images, err := s.images.GenerateProductImages(ctx, image.ProductImageRequest{
		Prompt:          prompt,
		Workflow:        image.WorkflowEdit,
		Count:           count,
		ReferenceImages: refs,
		OnImage: func(done, total int) {
			p := progressImagesStart + (progressImagesEnd-progressImagesStart)*done/total
			r.setStatus(state.StatusGeneratingImages, p,
				fmt.Sprintf("Generated view %d of %d", done, total))
		},
	})
	if err != nil {
		return r.fail(err)
	}
	if len(images) == 0 {
		return r.fail(types.NewError(types.ErrGenerationFailed, "no images produced").
			WithProvider("gemini"))
	}

	return s.finishWithMesh(r, prompt, images, state.ModeEdit)
}

// RunMeshOnly skips image generation and builds a mesh directly from the
// supplied views.
func (s *Service) RunMeshOnly(ctx context.Context, prompt string, images []string, mode state.GenerationMode) error {
	r := &run{svc: s, ctx: ctx, kind: mode, started: time.Now()}

	if s.threed == nil {
		return r.fail(types.NewError(types.ErrNotConfigured, "3D provider not configured"))
	}
	if len(images) == 0 {
		return r.fail(types.NewError(types.ErrInvalidRequest, "no images provided"))
	}

	return s.finishWithMesh(r, prompt, images, mode)
}

// checkProviders rejects runs up front when a provider client could not be
// built, typically because its API key is missing.
func (s *Service) checkProviders() error {
	if s.images == nil {
		return types.NewError(types.ErrNotConfigured, "image provider not configured")
	}
	if s.threed == nil {
		return types.NewError(types.ErrNotConfigured, "3D provider not configured")
	}
	return nil
}

// finishWithMesh persists the generated images, runs mesh generation, and
// completes the run with a new iteration on success.
func (s *Service) finishWithMesh(r *run, prompt string, images []string, mode state.GenerationMode) error {
	ctx := r.ctx

	r.setStatus(state.StatusGeneratingModel, progressMeshStart, "Generating 3D model with Trellis...")
	if err := s.updateState(ctx, func(st *state.ProductState) {
		st.Images = images
		st.Status = state.StatusGeneratingModel
		st.Message = "Generating 3D model..."
	}); err != nil {
		return r.fail(err)
	}

	artifacts, err := s.threed.GenerateAsset(ctx, images, func(p int, msg string) {
		if p < progressMeshStart {
			p = progressMeshStart
		}
		if p > progressMeshEnd {
			p = progressMeshEnd
		}
		r.setStatus(state.StatusGeneratingModel, p, msg)
	})
	if err != nil {
		s.metrics.RecordProviderRequest("trellis", "error")
		return r.fail(err)
	}
	s.metrics.RecordProviderRequest("trellis", "success")

	duration := time.Since(r.started)
	trellis := &state.TrellisArtifacts{
		ModelFile:          artifacts.ModelFile,
		NoBackgroundImages: artifacts.NoBackgroundImages,
	}
	iteration := state.ProductIteration{
		ID:              uuid.New().String(),
		Type:            mode,
		Prompt:          prompt,
		Images:          images,
		Artifacts:       trellis,
		CreatedAt:       time.Now().UTC(),
		DurationSeconds: duration.Seconds(),
	}

	if err := s.updateState(ctx, func(st *state.ProductState) {
		st.Mode = state.ModeIdle
		st.Status = state.StatusComplete
		st.Message = "3D asset generated"
		st.InProgress = false
		st.GenerationStarted = nil
		st.Images = images
		st.Trellis = trellis
		st.Iterations = append(st.Iterations, iteration)
		st.LastError = ""
	}); err != nil {
		return r.fail(err)
	}

	preview := ""
	if len(images) > 0 {
		preview = images[0]
	}
	status := &state.ProductStatus{
		Status:       state.StatusComplete,
		Progress:     100,
		Message:      "3D asset generated",
		ModelFile:    artifacts.ModelFile,
		PreviewImage: preview,
	}
	if err := s.store.SaveStatus(ctx, status); err != nil {
		s.logger.Warn("failed to save final status", zap.Error(err))
	}

	s.metrics.RecordGenerationRun(string(r.kind), "success", duration)
	s.logger.Info("pipeline run complete",
		zap.String("kind", string(r.kind)),
		zap.Duration("elapsed", duration),
		zap.Int("images", len(images)))
	return nil
}

// updateState applies fn to the current product state and saves it.
func (s *Service) updateState(ctx context.Context, fn func(*state.ProductState)) error {
	st, err := s.store.GetProduct(ctx)
	if err != nil {
		return err
	}
	fn(st)
	return s.store.SaveProduct(ctx, st)
}
