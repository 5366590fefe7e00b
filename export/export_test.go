package export

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

func boxDims() state.Dimensions {
	return state.Dimensions{WidthMM: 100, HeightMM: 150, DepthMM: 100}
}

func TestBoxSolid_BoundsInMeters(t *testing.T) {
	solid := BoxSolid(boxDims())
	require.Len(t, solid.Triangles, 12)

	min, max := solidBounds(solid)
	assert.InDelta(t, 0.10, float64(max[0]-min[0]), 1e-6)
	assert.InDelta(t, 0.15, float64(max[1]-min[1]), 1e-6)
	assert.InDelta(t, 0.10, float64(max[2]-min[2]), 1e-6)
}

func TestCylinderSolid_BoundsInMeters(t *testing.T) {
	solid := CylinderSolid(state.Dimensions{WidthMM: 80, HeightMM: 120})
	require.Len(t, solid.Triangles, 32*4)

	min, max := solidBounds(solid)
	assert.InDelta(t, 0.08, float64(max[0]-min[0]), 1e-3)
	assert.InDelta(t, 0.08, float64(max[1]-min[1]), 1e-3)
	assert.InDelta(t, 0.12, float64(max[2]-min[2]), 1e-6)
}

// encodeTriangleGLB builds a minimal binary glTF file holding one triangle.
func encodeTriangleGLB(t *testing.T) []byte {
	t.Helper()

	doc := gltf.NewDocument()
	positions := modeler.WritePosition(doc, [][3]float32{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
	})
	indices := modeler.WriteIndices(doc, []uint32{0, 1, 2})

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{{
			Attributes: map[string]int{gltf.POSITION: positions},
			Indices:    gltf.Index(indices),
		}},
	})

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return buf.Bytes()
}

func TestGLBToSolid(t *testing.T) {
	solid, err := GLBToSolid(encodeTriangleGLB(t))
	require.NoError(t, err)
	require.Len(t, solid.Triangles, 1)
	assert.Equal(t, float32(1), solid.Triangles[0].Vertices[1][0])
	assert.Equal(t, float32(1), solid.Triangles[0].Vertices[2][1])
}

func TestGLBToSolid_InvalidData(t *testing.T) {
	_, err := GLBToSolid([]byte("not a glb"))
	require.Error(t, err)
	assert.Equal(t, types.ErrGenerationFailed, types.GetErrorCode(err))
}

func TestWriteOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.obj")
	require.NoError(t, WriteOBJ(BoxSolid(boxDims()), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 36, strings.Count(text, "\nv "))
	assert.Equal(t, 12, strings.Count(text, "\nf "))
	assert.Contains(t, text, "f 1 2 3")
}

func TestGenerateDielineSVG_Box(t *testing.T) {
	pkg := state.NewPackagingState()
	svg := GenerateDielineSVG(pkg)

	assert.Contains(t, svg, `<svg width="800" height="600" viewBox="0 0 440 390"`)
	// top flap starts at (margin+depth, margin)
	assert.Contains(t, svg, `M 120 20`)
	assert.Equal(t, 3, strings.Count(svg, strokePanel))
	assert.Equal(t, 3, strings.Count(svg, strokeFlap))
	assert.Equal(t, 6, strings.Count(svg, "<path"))
	assert.Contains(t, svg, `stroke-linecap="round"`)
}

func TestGenerateDielineSVG_Cylinder(t *testing.T) {
	pkg := state.NewPackagingState()
	pkg.PackageType = state.PackageCylinder
	svg := GenerateDielineSVG(pkg)

	// body panel and top cap are green, bottom cap slate
	assert.Equal(t, 2, strings.Count(svg, strokePanel))
	assert.Equal(t, 1, strings.Count(svg, strokeFlap))
	assert.Equal(t, 3, strings.Count(svg, "<path"))
}

func TestBoxDieline_Bounds(t *testing.T) {
	_, maxX, maxY := boxDieline(boxDims())
	assert.InDelta(t, 420, maxX, 1e-9)
	assert.InDelta(t, 370, maxY, 1e-9)
}

func TestRenderPreviewJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.jpg")
	require.NoError(t, RenderPreviewJPEG(BoxSolid(boxDims()), "Package preview", path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.NotZero(t, img.Bounds().Dx())
}

func TestRenderPreviewJPEG_EmptySolidWritesPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placeholder.jpg")
	require.NoError(t, RenderPreviewJPEG(nil, "No geometry", path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.ExportConfig{Dir: t.TempDir()}, nil, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestService_ExportPackage(t *testing.T) {
	svc := newTestService(t)
	pkg := state.NewPackagingState()

	files, err := svc.ExportPackage(context.Background(), pkg, "1700000000")
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.True(t, strings.HasSuffix(files["stl"], "package_1700000000.stl"))
	assert.True(t, strings.HasSuffix(files["blend"], "package_1700000000.obj"))
	assert.True(t, strings.HasSuffix(files["jpg"], "package_1700000000.jpg"))
	for _, path := range files {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestService_ExportProduct(t *testing.T) {
	glb := encodeTriangleGLB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(glb)
	}))
	defer srv.Close()

	svc := newTestService(t)
	st := state.NewProductState()
	st.Trellis = &state.TrellisArtifacts{ModelFile: srv.URL + "/model.glb"}

	files, err := svc.ExportProduct(context.Background(), st, "42")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, strings.HasSuffix(files["blend"], "product_42.obj"))
}

func TestService_ExportProduct_NoModel(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ExportProduct(context.Background(), state.NewProductState(), "42")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "No product model available")
}

func TestService_ExportProduct_DownloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := newTestService(t)
	st := state.NewProductState()
	st.Trellis = &state.TrellisArtifacts{ModelFile: srv.URL + "/gone.glb"}

	_, err := svc.ExportProduct(context.Background(), st, "42")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestService_ExportDieline(t *testing.T) {
	svc := newTestService(t)
	pkg := state.NewPackagingState()

	files, err := svc.ExportDieline(context.Background(), pkg, "99")
	require.NoError(t, err)
	require.Len(t, files, 3)

	pdfData, err := os.ReadFile(files["pdf"])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdfData, []byte("%PDF")))

	svgData, err := os.ReadFile(files["svg"])
	require.NoError(t, err)
	assert.Contains(t, string(svgData), "<svg")
}

func TestService_LookupExportFile(t *testing.T) {
	svc := newTestService(t)
	pkg := state.NewPackagingState()

	_, err := svc.ExportPackage(context.Background(), pkg, "7")
	require.NoError(t, err)

	path, ok := svc.LookupExportFile(FileTypePackage, "7", "stl")
	assert.True(t, ok)
	assert.True(t, strings.HasSuffix(path, "package_7.stl"))

	// blend resolves to the OBJ file
	path, ok = svc.LookupExportFile(FileTypePackage, "7", "blend")
	assert.True(t, ok)
	assert.True(t, strings.HasSuffix(path, ".obj"))

	_, ok = svc.LookupExportFile(FileTypePackage, "8", "stl")
	assert.False(t, ok)

	_, ok = svc.LookupExportFile("unknown", "7", "stl")
	assert.False(t, ok)
}
