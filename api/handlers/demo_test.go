package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/state"
)

func newDemoEnv(t *testing.T, cfg config.DemoConfig) (state.Store, *http.ServeMux) {
	t.Helper()
	store := state.NewMemoryStore()
	h := NewDemoHandler(store, cfg, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return store, mux
}

func TestHandleSeedProduct(t *testing.T) {
	store, mux := newDemoEnv(t, config.DemoConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/demo/seed-product", map[string]interface{}{
		"prompt":         "a demo mug",
		"model_url":      "https://cdn/demo.glb",
		"preview_images": []string{"data:image/png;base64,QQ=="},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	st, err := store.GetProduct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusComplete, st.Status)
	assert.Equal(t, "a demo mug", st.Prompt)
	require.NotNil(t, st.Trellis)
	assert.Equal(t, "https://cdn/demo.glb", st.Trellis.ModelFile)
	require.Len(t, st.Iterations, 1)
	assert.Equal(t, "Pre-loaded for demo", st.Iterations[0].Note)

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "https://cdn/demo.glb", status.ModelFile)
}

func TestHandleSeedProduct_RequiresModelURL(t *testing.T) {
	_, mux := newDemoEnv(t, config.DemoConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/demo/seed-product",
		map[string]interface{}{"prompt": "a mug"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSeedPackaging(t *testing.T) {
	store, mux := newDemoEnv(t, config.DemoConfig{})

	rec := doJSON(t, mux, http.MethodPost, "/demo/seed-packaging", map[string]interface{}{
		"package_type": "box",
		"dimensions":   map[string]float64{"width": 120, "height": 180, "depth": 90},
		"panel_textures": map[string]interface{}{
			"front": map[string]string{"texture_url": "https://cdn/front.png", "prompt": "coffee"},
			"back":  map[string]string{"texture_url": "https://cdn/back.png"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	pkg, err := store.GetPackaging(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120.0, pkg.Box.WidthMM)
	require.Len(t, pkg.PanelTextures, 2)
	assert.Equal(t, "coffee", pkg.PanelTextures["front"].Prompt)
	// missing prompt falls back to a labeled default
	assert.Equal(t, "Demo back panel", pkg.PanelTextures["back"].Prompt)
}

func TestHandleSeedFromFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo_fixtures.json")
	fixtures := map[string]interface{}{
		"product_create": map[string]interface{}{
			"prompt":         "fixture mug",
			"model_url":      "https://cdn/fixture.glb",
			"preview_images": []string{"data:image/png;base64,QQ=="},
		},
		"packaging": map[string]interface{}{
			"package_type": "box",
			"dimensions":   map[string]float64{"width": 100, "height": 150, "depth": 100},
			"panel_textures": map[string]interface{}{
				"front": map[string]string{"texture_url": "https://cdn/front.png", "prompt": "x"},
				"back":  map[string]string{"texture_url": "PASTE_URL_HERE"},
			},
		},
	}
	data, err := json.Marshal(fixtures)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store, mux := newDemoEnv(t, config.DemoConfig{FixturesPath: path})

	rec := doJSON(t, mux, http.MethodPost, "/demo/seed-from-fixtures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	results, ok := dataField(t, resp, "results").(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Seeded", results["product"])
	assert.Equal(t, "Seeded 1 panels", results["packaging"])

	st, err := store.GetProduct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixture mug", st.Prompt)

	pkg, err := store.GetPackaging(context.Background())
	require.NoError(t, err)
	assert.Contains(t, pkg.PanelTextures, "front")
	assert.NotContains(t, pkg.PanelTextures, "back")
}

func TestHandleSeedFromFixtures_MissingFile(t *testing.T) {
	_, mux := newDemoEnv(t, config.DemoConfig{FixturesPath: "/nonexistent.json"})

	rec := doJSON(t, mux, http.MethodPost, "/demo/seed-from-fixtures", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClear(t *testing.T) {
	store, mux := newDemoEnv(t, config.DemoConfig{})
	ctx := context.Background()

	st, err := store.GetProduct(ctx)
	require.NoError(t, err)
	st.Prompt = "something"
	require.NoError(t, store.SaveProduct(ctx, st))

	rec := doJSON(t, mux, http.MethodPost, "/demo/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st, err = store.GetProduct(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Prompt)
}

func TestHandleExportCurrent(t *testing.T) {
	store, mux := newDemoEnv(t, config.DemoConfig{})
	ctx := context.Background()

	st, err := store.GetProduct(ctx)
	require.NoError(t, err)
	st.Prompt = "a mug"
	st.Images = []string{"i0", "i1", "i2", "i3"}
	st.Trellis = &state.TrellisArtifacts{ModelFile: "https://cdn/m.glb"}
	st.Iterations = []state.ProductIteration{{ID: "it-0", Type: state.ModeCreate, Prompt: "a mug"}}
	require.NoError(t, store.SaveProduct(ctx, st))

	rec := doJSON(t, mux, http.MethodGet, "/demo/export-current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)

	assert.Equal(t, "create", dataField(t, resp, "_iteration_type"))
	product, ok := dataField(t, resp, "product_create").(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://cdn/m.glb", product["model_url"])
	// preview list is capped at three entries
	previews, ok := product["preview_images"].([]interface{})
	require.True(t, ok)
	assert.Len(t, previews, 3)
}

func TestHandleMockStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo_fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, mux := newDemoEnv(t, config.DemoConfig{
		MockMode:     true,
		CreateDelay:  30 * time.Second,
		EditDelay:    10 * time.Second,
		FixturesPath: path,
	})

	rec := doJSON(t, mux, http.MethodGet, "/demo/mock-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, true, dataField(t, resp, "demo_mock_mode"))
	assert.Equal(t, float64(30), dataField(t, resp, "create_delay_seconds"))
	assert.Equal(t, true, dataField(t, resp, "fixtures_exist"))
}
