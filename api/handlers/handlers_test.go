package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/panels"
	"github.com/openfoundry/forge3d/pipeline"
	"github.com/openfoundry/forge3d/state"
)

// fakePipeline records pipeline invocations and signals completion.
type fakePipeline struct {
	mu       sync.Mutex
	creates  []string
	edits    []string
	meshOnly []string
	started  chan string
	block    chan struct{} // when non-nil, runs block until closed
	err      error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{started: make(chan string, 16)}
}

func (f *fakePipeline) record(kind, prompt string, list *[]string, ctx context.Context) error {
	f.mu.Lock()
	*list = append(*list, prompt)
	f.mu.Unlock()
	f.started <- kind
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakePipeline) RunCreate(ctx context.Context, prompt string, imageCount int) error {
	return f.record("create", prompt, &f.creates, ctx)
}

func (f *fakePipeline) RunEdit(ctx context.Context, prompt string) error {
	return f.record("edit", prompt, &f.edits, ctx)
}

func (f *fakePipeline) RunMeshOnly(ctx context.Context, prompt string, images []string, mode state.GenerationMode) error {
	return f.record("mesh-only", prompt, &f.meshOnly, ctx)
}

// fakeMock mirrors fakePipeline for the demo flows.
type fakeMock struct {
	started chan string
}

func newFakeMock() *fakeMock {
	return &fakeMock{started: make(chan string, 16)}
}

func (f *fakeMock) RunMockCreate(ctx context.Context, prompt string, imageCount int) error {
	f.started <- "mock-create"
	return nil
}

func (f *fakeMock) RunMockEdit(ctx context.Context, prompt string) error {
	f.started <- "mock-edit"
	return nil
}

// fakeExporter writes small placeholder files using the real naming
// scheme.
type fakeExporter struct {
	dir          string
	err          error
	productCalls int
	lastSession  string
}

func newFakeExporter(t *testing.T) *fakeExporter {
	t.Helper()
	return &fakeExporter{dir: t.TempDir()}
}

func (f *fakeExporter) write(fileType, sessionID string, formats map[string]string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	files := map[string]string{}
	for format, ext := range formats {
		path := filepath.Join(f.dir, fmt.Sprintf("%s_%s.%s", fileType, sessionID, ext))
		if err := os.WriteFile(path, []byte(format+" data"), 0o644); err != nil {
			return nil, err
		}
		files[format] = path
	}
	return files, nil
}

func (f *fakeExporter) ExportProduct(ctx context.Context, st *state.ProductState, sessionID string) (map[string]string, error) {
	f.productCalls++
	f.lastSession = sessionID
	return f.write("product", sessionID, map[string]string{"stl": "stl", "blend": "obj", "jpg": "jpg"})
}

func (f *fakeExporter) ExportPackage(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error) {
	return f.write("package", sessionID, map[string]string{"stl": "stl", "blend": "obj", "jpg": "jpg"})
}

func (f *fakeExporter) ExportDieline(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error) {
	return f.write("dieline", sessionID, map[string]string{"svg": "svg", "pdf": "pdf", "jpg": "jpg"})
}

func (f *fakeExporter) LookupExportFile(fileType, sessionID, format string) (string, bool) {
	ext := format
	if format == "blend" {
		ext = "obj"
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s_%s.%s", fileType, sessionID, ext))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// fakePanels records panel generation requests.
type fakePanels struct {
	started chan panels.Request
}

func newFakePanels() *fakePanels {
	return &fakePanels{started: make(chan panels.Request, 16)}
}

func (f *fakePanels) RunGeneration(ctx context.Context, req panels.Request) error {
	f.started <- req
	return nil
}

type productTestEnv struct {
	store    state.Store
	pipeline *fakePipeline
	exporter *fakeExporter
	runner   *pipeline.Runner
	mux      *http.ServeMux
}

func newProductTestEnv(t *testing.T) *productTestEnv {
	t.Helper()
	env := &productTestEnv{
		store:    state.NewMemoryStore(),
		pipeline: newFakePipeline(),
		exporter: newFakeExporter(t),
		runner:   pipeline.NewRunner(zap.NewNop()),
	}
	h := NewProductHandler(env.store, env.pipeline, nil, env.exporter, env.runner, zap.NewNop())
	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)
	return env
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func dataField(t *testing.T, resp Response, key string) interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is not an object")
	return data[key]
}
