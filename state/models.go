// Package state defines the session state model and its persistence layer.
// The service is single-session: one product state, one status projection,
// and one packaging state live under a fixed set of keys.
package state

import "time"

// PipelineStatus is the lifecycle phase of a generation run.
type PipelineStatus string

const (
	StatusIdle             PipelineStatus = "idle"
	StatusPending          PipelineStatus = "pending"
	StatusGeneratingImages PipelineStatus = "generating_images"
	StatusGeneratingModel  PipelineStatus = "generating_model"
	StatusComplete         PipelineStatus = "complete"
	StatusError            PipelineStatus = "error"
)

// GenerationMode distinguishes how the current run was started.
type GenerationMode string

const (
	ModeIdle   GenerationMode = "idle"
	ModeCreate GenerationMode = "create"
	ModeEdit   GenerationMode = "edit"
)

// PackageType is the packaging shape the user is working on.
type PackageType string

const (
	PackageBox      PackageType = "box"
	PackageCylinder PackageType = "cylinder"
)

// TrellisArtifacts holds the outputs of a mesh generation run.
type TrellisArtifacts struct {
	// ModelFile is the URL of the generated GLB asset.
	ModelFile string `json:"model_file,omitempty"`
	// NoBackgroundImages are background-removed views, when the
	// provider returns them.
	NoBackgroundImages []string `json:"no_background_images,omitempty"`
}

// ProductIteration is one completed generation step in the session history.
// Iterations are ordered oldest first; rewind truncates the tail.
type ProductIteration struct {
	ID              string            `json:"id"`
	Type            GenerationMode    `json:"type"`
	Prompt          string            `json:"prompt"`
	Images          []string          `json:"images"`
	Artifacts       *TrellisArtifacts `json:"artifacts,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	Note            string            `json:"note,omitempty"`
}

// ProductState is the full session state for the product workflow.
type ProductState struct {
	Prompt            string             `json:"prompt"`
	LatestInstruction string             `json:"latest_instruction,omitempty"`
	Mode              GenerationMode     `json:"mode"`
	Status            PipelineStatus     `json:"status"`
	Message           string             `json:"message,omitempty"`
	InProgress        bool               `json:"in_progress"`
	GenerationStarted *time.Time         `json:"generation_started,omitempty"`
	ImageCount        int                `json:"image_count"`
	Images            []string           `json:"images"`
	Trellis           *TrellisArtifacts  `json:"trellis,omitempty"`
	Iterations        []ProductIteration `json:"iterations"`
	LastError         string             `json:"last_error,omitempty"`
	ExportFiles       map[string]string  `json:"export_files,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewProductState returns an empty idle state.
func NewProductState() *ProductState {
	now := time.Now().UTC()
	return &ProductState{
		Mode:       ModeIdle,
		Status:     StatusIdle,
		Images:     []string{},
		Iterations: []ProductIteration{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch refreshes the updated timestamp.
func (s *ProductState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// HasModel reports whether a generated mesh is available.
func (s *ProductState) HasModel() bool {
	return s.Trellis != nil && s.Trellis.ModelFile != ""
}

// ProductStatus is the lightweight projection polled by clients during a run.
type ProductStatus struct {
	Status       PipelineStatus `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	ModelFile    string         `json:"model_file,omitempty"`
	PreviewImage string         `json:"preview_image,omitempty"`
}

// NewProductStatus returns an idle status at zero progress.
func NewProductStatus() *ProductStatus {
	return &ProductStatus{Status: StatusIdle, Progress: 0}
}

// Dimensions are physical package dimensions in millimeters. For cylinders
// the width is the diameter and depth is unused.
type Dimensions struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
	DepthMM  float64 `json:"depth_mm,omitempty"`
}

// PanelTexture is a generated texture bound to one dieline panel.
type PanelTexture struct {
	PanelID     string    `json:"panel_id"`
	TextureURL  string    `json:"texture_url"`
	Prompt      string    `json:"prompt"`
	WidthMM     float64   `json:"width_mm"`
	HeightMM    float64   `json:"height_mm"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PackagingState is the session state for the packaging workflow.
type PackagingState struct {
	PackageType       PackageType             `json:"package_type"`
	Box               Dimensions              `json:"box"`
	Cylinder          Dimensions              `json:"cylinder"`
	PanelTextures     map[string]PanelTexture `json:"panel_textures"`
	InProgress        bool                    `json:"in_progress"`
	GeneratingPanelID string                  `json:"generating_panel_id,omitempty"`
	LastError         string                  `json:"last_error,omitempty"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// NewPackagingState returns a default box-shaped packaging state.
func NewPackagingState() *PackagingState {
	return &PackagingState{
		PackageType:   PackageBox,
		Box:           Dimensions{WidthMM: 100, HeightMM: 150, DepthMM: 100},
		Cylinder:      Dimensions{WidthMM: 80, HeightMM: 120},
		PanelTextures: map[string]PanelTexture{},
		UpdatedAt:     time.Now().UTC(),
	}
}

// ActiveDimensions returns the dimensions for the selected package type.
func (p *PackagingState) ActiveDimensions() Dimensions {
	if p.PackageType == PackageCylinder {
		return p.Cylinder
	}
	return p.Box
}
