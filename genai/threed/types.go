// Package threed provides the Trellis mesh generation client, backed by the
// fal.ai queue API.
package threed

import "context"

// Artifacts is the output of a mesh generation run.
type Artifacts struct {
	// ModelFile is the URL of the generated GLB mesh.
	ModelFile string

	// NoBackgroundImages are background-removed input views, when the
	// model returns them.
	NoBackgroundImages []string
}

// ProgressFunc receives progress updates while a request moves through the
// queue. Progress is a percentage milestone, message a display string.
type ProgressFunc func(progress int, message string)

// Generator is the interface the pipeline consumes.
type Generator interface {
	GenerateAsset(ctx context.Context, images []string, progress ProgressFunc) (*Artifacts, error)
}
