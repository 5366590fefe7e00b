package export

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hschendel/stl"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/internal/metrics"
	"github.com/openfoundry/forge3d/state"
	"github.com/openfoundry/forge3d/types"
)

// File types addressable through the download endpoints.
const (
	FileTypeProduct = "product"
	FileTypePackage = "package"
	FileTypeDieline = "dieline"
)

// Service materializes product and packaging exports on disk. Files are
// named {file_type}_{session_id}.{ext}; the "blend" format is stored as
// OBJ, which Blender imports directly.
type Service struct {
	dir     string
	client  *http.Client
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewService creates an export service rooted at cfg.Dir, falling back to
// a directory under the system temp dir.
func NewService(cfg config.ExportConfig, collector *metrics.Collector, logger *zap.Logger) (*Service, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "forge3d_exports")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	return &Service{
		dir:     dir,
		client:  &http.Client{Timeout: 120 * time.Second},
		metrics: collector,
		logger:  logger.With(zap.String("component", "export")),
	}, nil
}

// Dir returns the export directory.
func (s *Service) Dir() string {
	return s.dir
}

func (s *Service) basePath(fileType, sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s", fileType, sessionID))
}

// ExportProduct downloads the generated model and writes STL, OBJ, and a
// JPG preview. Returns format -> path.
func (s *Service) ExportProduct(ctx context.Context, st *state.ProductState, sessionID string) (map[string]string, error) {
	if st.Trellis == nil || st.Trellis.ModelFile == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "No product model available for export").
			WithHTTPStatus(http.StatusBadRequest)
	}

	data, err := DownloadModel(ctx, s.client, st.Trellis.ModelFile)
	if err != nil {
		s.recordExport("product", "error")
		return nil, err
	}
	solid, err := GLBToSolid(data)
	if err != nil {
		s.recordExport("product", "error")
		return nil, err
	}
	solid.Name = "product"

	files, err := s.writeMeshFormats(solid, FileTypeProduct, sessionID, "Product preview")
	if err != nil {
		s.recordExport("product", "error")
		return nil, err
	}

	s.recordExport("product", "success")
	s.logger.Info("product export complete",
		zap.String("session_id", sessionID),
		zap.Int("triangles", len(solid.Triangles)))
	return files, nil
}

// ExportPackage synthesizes a mesh from the active package dimensions and
// writes STL, OBJ, and a JPG preview.
func (s *Service) ExportPackage(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error) {
	var solid *stl.Solid
	if pkg.PackageType == state.PackageCylinder {
		solid = CylinderSolid(pkg.ActiveDimensions())
	} else {
		solid = BoxSolid(pkg.ActiveDimensions())
	}

	files, err := s.writeMeshFormats(solid, FileTypePackage, sessionID, "Package preview")
	if err != nil {
		s.recordExport("package", "error")
		return nil, err
	}

	s.recordExport("package", "success")
	s.logger.Info("package export complete",
		zap.String("session_id", sessionID),
		zap.String("package_type", string(pkg.PackageType)))
	return files, nil
}

// ExportDieline writes the unfolded packaging drawing as SVG, PDF, and JPG.
func (s *Service) ExportDieline(ctx context.Context, pkg *state.PackagingState, sessionID string) (map[string]string, error) {
	base := s.basePath(FileTypeDieline, sessionID)
	files := map[string]string{}

	svgPath := base + ".svg"
	if err := os.WriteFile(svgPath, []byte(GenerateDielineSVG(pkg)), 0o644); err != nil {
		s.recordExport("dieline", "error")
		return nil, fmt.Errorf("write dieline SVG: %w", err)
	}
	files["svg"] = svgPath

	pdfPath := base + ".pdf"
	if err := WriteDielinePDF(pkg, pdfPath); err != nil {
		s.recordExport("dieline", "error")
		return nil, fmt.Errorf("write dieline PDF: %w", err)
	}
	files["pdf"] = pdfPath

	jpgPath := base + ".jpg"
	if err := WriteDielineJPEG(pkg, jpgPath); err != nil {
		s.recordExport("dieline", "error")
		return nil, fmt.Errorf("write dieline JPG: %w", err)
	}
	files["jpg"] = jpgPath

	s.recordExport("dieline", "success")
	s.logger.Info("dieline export complete",
		zap.String("session_id", sessionID),
		zap.String("package_type", string(pkg.PackageType)))
	return files, nil
}

func (s *Service) writeMeshFormats(solid *stl.Solid, fileType, sessionID, label string) (map[string]string, error) {
	base := s.basePath(fileType, sessionID)
	files := map[string]string{}

	stlPath := base + ".stl"
	if err := solid.WriteFile(stlPath); err != nil {
		return nil, fmt.Errorf("write STL: %w", err)
	}
	files["stl"] = stlPath

	objPath := base + ".obj"
	if err := WriteOBJ(solid, objPath); err != nil {
		return nil, fmt.Errorf("write OBJ: %w", err)
	}
	files["blend"] = objPath

	jpgPath := base + ".jpg"
	if err := RenderPreviewJPEG(solid, label, jpgPath); err != nil {
		return nil, fmt.Errorf("write JPG preview: %w", err)
	}
	files["jpg"] = jpgPath

	return files, nil
}

// LookupExportFile returns the path of a previously exported file, or
// false when it does not exist. The "blend" format resolves to the OBJ
// file.
func (s *Service) LookupExportFile(fileType, sessionID, format string) (string, bool) {
	switch fileType {
	case FileTypeProduct, FileTypePackage, FileTypeDieline:
	default:
		return "", false
	}

	ext := format
	if format == "blend" {
		ext = "obj"
	}
	path := s.basePath(fileType, sessionID) + "." + ext

	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (s *Service) recordExport(format, status string) {
	s.metrics.RecordExport(format, status)
}
