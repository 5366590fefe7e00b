package image

import "fmt"

// Camera angles for multi-view 3D reconstruction. Indexed by view position;
// positions past the list fall back to "alternate angle".
var cameraAngles = []string{
	"front view at eye level, perfectly centered",
	"45-degree angle from upper right, showing top and right side",
	"side profile view from the left at eye level",
}

func angleDescription(index int) string {
	if index < len(cameraAngles) {
		return cameraAngles[index]
	}
	return "alternate angle"
}

// enhancePrompt wraps the user prompt in studio product-photo instructions.
// With a reference image the wording locks design consistency to it; without
// one it establishes the product for the first view.
func enhancePrompt(prompt string, angleIndex int, hasReference bool) string {
	angle := angleDescription(angleIndex)

	if hasReference {
		return fmt.Sprintf(
			"Create a professional product photograph of the exact same product shown in the reference image, "+
				"photographed from a %s. %s\n\n"+
				"Match the reference image precisely in terms of design, colors, materials, and all details. "+
				"Photograph the product on a clean white studio background with professional lighting that creates "+
				"soft shadows. Ensure sharp focus throughout with well-defined edges. "+
				"Center the product in the frame and fill the frame while keeping the entire product visible - "+
				"no parts should be cropped or cut off. Avoid any text, watermarks, or distracting elements.",
			angle, prompt)
	}

	return fmt.Sprintf(
		"Create a professional studio product photograph of %s, "+
			"shot from a %s. "+
			"Photograph the product on a pure white background with professional studio lighting that creates "+
			"soft, subtle shadows. Use sharp focus to capture clear, well-defined edges. "+
			"Center the product in the frame and fill the frame while ensuring the entire product is visible - "+
			"nothing should be cropped or cut off. The design should be consistent and suitable for viewing "+
			"from multiple camera angles. Avoid any text overlays, watermarks, or distracting elements.",
		prompt, angle)
}
