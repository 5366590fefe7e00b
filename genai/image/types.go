// Package image provides the Gemini-backed product image generation client.
package image

import "context"

// Workflow selects the generation model. Create runs on the pro model with
// thinking enabled, edit on the flash model.
type Workflow string

const (
	WorkflowCreate Workflow = "create"
	WorkflowEdit   Workflow = "edit"
)

// ProductImageRequest describes one batch of product views to generate.
type ProductImageRequest struct {
	// Prompt is the product description or edit instruction.
	Prompt string

	// Workflow is create or edit.
	Workflow Workflow

	// Count is the number of views to generate.
	Count int

	// ReferenceImages are data-URL images the edit workflow conditions on.
	ReferenceImages []string

	// Texture requests a flat texture instead of a product photograph.
	// The prompt is sent as-is without photo enhancement.
	Texture bool

	// OnImage, when set, is called after each view attempt with the
	// number of attempts made so far and the total requested.
	OnImage func(done, total int)
}

// Generator is the interface the pipeline and panel services consume.
type Generator interface {
	GenerateProductImages(ctx context.Context, req ProductImageRequest) ([]string, error)
}
