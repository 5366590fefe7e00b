package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/state"
)

// trellisMockProgress replays realistic sampling log lines during the mock
// mesh phase.
var trellisMockProgress = []struct {
	Message  string
	Progress int
}{
	{"Sampling: 21%|██▏       | 3/14", 55},
	{"Sampling: 43%|████▎     | 6/14", 65},
	{"Sampling: 64%|██████▍   | 9/14", 75},
	{"Sampling: 86%|████████▌ | 12/14", 85},
	{"Sampling: 100%|██████████| 14/14", 92},
}

// Fixture is one pre-seeded generation result.
type Fixture struct {
	ModelURL           string   `json:"model_url"`
	PreviewImages      []string `json:"preview_images"`
	NoBackgroundImages []string `json:"no_background_images"`
}

// Fixtures is the demo fixture file layout.
type Fixtures struct {
	ProductCreate Fixture `json:"product_create"`
	ProductEdit   Fixture `json:"product_edit"`
}

// Valid reports whether a fixture holds usable data. Placeholder values
// from the fixture template start with "PASTE".
func (f Fixture) Valid() bool {
	return f.ModelURL != "" && !strings.HasPrefix(f.ModelURL, "PASTE")
}

// LoadFixtures reads the fixture file. A missing or malformed file yields
// empty fixtures, not an error; the mock runs surface that as a status.
func LoadFixtures(path string, logger *zap.Logger) Fixtures {
	var out Fixtures

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("fixtures file not found", zap.String("path", path), zap.Error(err))
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Error("invalid fixtures JSON", zap.String("path", path), zap.Error(err))
		return Fixtures{}
	}
	return out
}

// MockService simulates the generation flows for demos: identical status
// sequence and state transitions, fixture data instead of provider calls.
type MockService struct {
	store  state.Store
	cfg    config.DemoConfig
	logger *zap.Logger
}

// NewMockService creates a demo mock pipeline.
func NewMockService(store state.Store, cfg config.DemoConfig, logger *zap.Logger) *MockService {
	return &MockService{
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "mock_pipeline")),
	}
}

// Fixtures returns the currently configured fixture data.
func (m *MockService) Fixtures() Fixtures {
	return LoadFixtures(m.cfg.FixturesPath, m.logger)
}

func (m *MockService) setStatus(ctx context.Context, status state.PipelineStatus, progress int, message, modelFile, preview string) {
	st := &state.ProductStatus{
		Status:       status,
		Progress:     progress,
		Message:      message,
		ModelFile:    modelFile,
		PreviewImage: preview,
	}
	if err := m.store.SaveStatus(ctx, st); err != nil {
		m.logger.Warn("failed to save mock status", zap.Error(err))
	}
	m.logger.Info("mock status",
		zap.String("status", string(status)),
		zap.Int("progress", progress),
		zap.String("message", message))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunMockCreate simulates the create flow with phased delays, then loads
// the pre-seeded create fixture.
func (m *MockService) RunMockCreate(ctx context.Context, prompt string, imageCount int) error {
	m.logger.Info("starting mock create flow", zap.String("prompt", prompt))

	data := m.Fixtures().ProductCreate
	if !data.Valid() {
		m.setStatus(ctx, state.StatusError, 0, "Demo fixtures not configured", "", "")
		return fmt.Errorf("no valid product_create data in fixtures")
	}

	totalDelay := m.cfg.CreateDelay

	if err := m.updateState(ctx, func(st *state.ProductState) {
		st.Prompt = prompt
		st.Mode = state.ModeCreate
		st.Status = state.StatusGeneratingImages
		st.Message = "Generating product images..."
		st.InProgress = true
		now := time.Now().UTC()
		st.GenerationStarted = &now
		st.LastError = ""
	}); err != nil {
		return err
	}

	phases := []struct {
		status   state.PipelineStatus
		progress int
		message  string
	}{
		{state.StatusGeneratingImages, 10, "Generating product images with AI..."},
		{state.StatusGeneratingImages, 25, "Creating multiple views..."},
		{state.StatusGeneratingModel, 45, "Generating 3D model with Trellis..."},
		{state.StatusGeneratingModel, 65, "Processing geometry and textures..."},
		{state.StatusGeneratingModel, 85, "Finalizing 3D asset..."},
	}
	for _, phase := range phases {
		m.setStatus(ctx, phase.status, phase.progress, phase.message, "", "")
		if err := sleep(ctx, totalDelay/5); err != nil {
			return err
		}
	}

	return m.complete(ctx, data, prompt, state.ModeCreate, "3D asset generated",
		fmt.Sprintf("demo_create_%d", time.Now().Unix()), totalDelay, "Demo mock generation")
}

// RunMockEdit simulates the edit flow, replaying Trellis-style sampling
// lines during the mesh phase. The edit delay is capped at three seconds.
func (m *MockService) RunMockEdit(ctx context.Context, prompt string) error {
	m.logger.Info("starting mock edit flow", zap.String("prompt", prompt))

	data := m.Fixtures().ProductEdit
	if !data.Valid() {
		m.setStatus(ctx, state.StatusError, 0, "Demo edit fixtures not configured", "", "")
		return fmt.Errorf("no valid product_edit data in fixtures")
	}

	totalDelay := m.cfg.EditDelay
	if totalDelay <= 0 || totalDelay > 3*time.Second {
		totalDelay = 3 * time.Second
	}

	if err := m.updateState(ctx, func(st *state.ProductState) {
		st.LatestInstruction = prompt
		st.Mode = state.ModeEdit
		st.Status = state.StatusGeneratingImages
		st.Message = "Analyzing edit request..."
		st.InProgress = true
		now := time.Now().UTC()
		st.GenerationStarted = &now
		st.LastError = ""
	}); err != nil {
		return err
	}

	m.setStatus(ctx, state.StatusGeneratingImages, 15, "Analyzing edit request...", "", "")
	if err := sleep(ctx, time.Duration(float64(totalDelay)*0.15)); err != nil {
		return err
	}

	m.setStatus(ctx, state.StatusGeneratingImages, 30, "Generating edited product images...", "", "")
	if err := sleep(ctx, time.Duration(float64(totalDelay)*0.25)); err != nil {
		return err
	}

	trellisDuration := time.Duration(float64(totalDelay) * 0.6)
	if trellisDuration < 300*time.Millisecond {
		trellisDuration = 300 * time.Millisecond
	}
	perStep := trellisDuration / time.Duration(len(trellisMockProgress))
	for _, step := range trellisMockProgress {
		m.setStatus(ctx, state.StatusGeneratingModel, step.Progress, step.Message, "", "")
		if err := sleep(ctx, perStep); err != nil {
			return err
		}
	}

	return m.complete(ctx, data, prompt, state.ModeEdit, "Edit complete",
		fmt.Sprintf("demo_edit_%d", time.Now().Unix()), totalDelay, "Demo mock edit")
}

func (m *MockService) complete(ctx context.Context, data Fixture, prompt string, mode state.GenerationMode, message, iterationID string, totalDelay time.Duration, note string) error {
	trellis := &state.TrellisArtifacts{
		ModelFile:          data.ModelURL,
		NoBackgroundImages: data.NoBackgroundImages,
	}
	iteration := state.ProductIteration{
		ID:              iterationID,
		Type:            mode,
		Prompt:          prompt,
		Images:          data.PreviewImages,
		Artifacts:       trellis,
		CreatedAt:       time.Now().UTC(),
		DurationSeconds: totalDelay.Seconds(),
		Note:            note,
	}

	if err := m.updateState(ctx, func(st *state.ProductState) {
		if mode == state.ModeEdit {
			st.LatestInstruction = prompt
		}
		st.Mode = state.ModeIdle
		st.Status = state.StatusComplete
		st.Message = message
		st.InProgress = false
		st.GenerationStarted = nil
		st.Images = data.PreviewImages
		st.Trellis = trellis
		st.Iterations = append(st.Iterations, iteration)
	}); err != nil {
		return err
	}

	preview := ""
	if len(data.PreviewImages) > 0 {
		preview = data.PreviewImages[0]
	}
	m.setStatus(ctx, state.StatusComplete, 100, message, data.ModelURL, preview)

	m.logger.Info("mock flow complete", zap.String("mode", string(mode)))
	return nil
}

func (m *MockService) updateState(ctx context.Context, fn func(*state.ProductState)) error {
	st, err := m.store.GetProduct(ctx)
	if err != nil {
		return err
	}
	fn(st)
	return m.store.SaveProduct(ctx, st)
}
