package export

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/fogleman/fauxgl"
	"github.com/fogleman/gg"
	"github.com/hschendel/stl"
	"golang.org/x/image/font/basicfont"
)

const (
	renderWidth  = 800
	renderHeight = 600
	renderScale  = 2 // supersampling
)

// RenderPreviewJPEG writes a JPG preview of a solid. It degrades rather
// than fails: a shaded render first, a wireframe sketch if shading goes
// wrong, and a labeled placeholder card as the last resort. An error is
// returned only when the file itself cannot be written.
func RenderPreviewJPEG(solid *stl.Solid, label, path string) error {
	img := renderShaded(solid)
	if img == nil {
		img = renderWireframe(solid)
	}
	if img == nil {
		img = renderPlaceholder(label)
	}
	return writeJPEG(img, path)
}

func renderShaded(solid *stl.Solid) (img image.Image) {
	if solid == nil || len(solid.Triangles) == 0 {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			img = nil
		}
	}()

	triangles := make([]*fauxgl.Triangle, 0, len(solid.Triangles))
	for _, t := range solid.Triangles {
		triangles = append(triangles, fauxgl.NewTriangleForPoints(
			fauxgl.V(float64(t.Vertices[0][0]), float64(t.Vertices[0][1]), float64(t.Vertices[0][2])),
			fauxgl.V(float64(t.Vertices[1][0]), float64(t.Vertices[1][1]), float64(t.Vertices[1][2])),
			fauxgl.V(float64(t.Vertices[2][0]), float64(t.Vertices[2][1]), float64(t.Vertices[2][2])),
		))
	}

	mesh := fauxgl.NewTriangleMesh(triangles)
	mesh.BiUnitCube()
	mesh.SmoothNormalsThreshold(fauxgl.Radians(30))

	eye := fauxgl.V(2.2, 1.6, 2.2)
	center := fauxgl.V(0, 0, 0)
	up := fauxgl.V(0, 1, 0)
	light := fauxgl.V(1, 2, 1.5).Normalize()

	ctx := fauxgl.NewContext(renderWidth*renderScale, renderHeight*renderScale)
	ctx.ClearColorBufferWith(fauxgl.HexColor("#f1f5f9"))

	aspect := float64(renderWidth) / float64(renderHeight)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(32, aspect, 0.1, 100)

	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = fauxgl.HexColor("#64748b")
	ctx.Shader = shader
	ctx.DrawMesh(mesh)

	return ctx.Image()
}

// renderWireframe projects the mesh onto the XY plane and sketches the
// triangle edges. Good enough for a thumbnail when shading fails.
func renderWireframe(solid *stl.Solid) image.Image {
	if solid == nil || len(solid.Triangles) == 0 {
		return nil
	}

	min, max := solidBounds(solid)
	spanX := float64(max[0] - min[0])
	spanY := float64(max[1] - min[1])
	if spanX <= 0 || spanY <= 0 {
		return nil
	}

	const margin = 60.0
	scale := (renderWidth - 2*margin) / spanX
	if s := (renderHeight - 2*margin) / spanY; s < scale {
		scale = s
	}

	project := func(v stl.Vec3) (float64, float64) {
		x := margin + (float64(v[0])-float64(min[0]))*scale
		y := float64(renderHeight) - margin - (float64(v[1])-float64(min[1]))*scale
		return x, y
	}

	dc := gg.NewContext(renderWidth, renderHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB255(100, 116, 139)
	dc.SetLineWidth(0.5)

	for _, t := range solid.Triangles {
		x0, y0 := project(t.Vertices[0])
		x1, y1 := project(t.Vertices[1])
		x2, y2 := project(t.Vertices[2])
		dc.MoveTo(x0, y0)
		dc.LineTo(x1, y1)
		dc.LineTo(x2, y2)
		dc.ClosePath()
	}
	dc.Stroke()

	return dc.Image()
}

func renderPlaceholder(label string) image.Image {
	dc := gg.NewContext(renderWidth, renderHeight)
	dc.SetRGB255(241, 245, 249)
	dc.Clear()

	dc.SetRGB255(148, 163, 184)
	dc.SetLineWidth(2)
	dc.DrawRoundedRectangle(40, 40, renderWidth-80, renderHeight-80, 16)
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB255(71, 85, 105)
	if label == "" {
		label = "Preview unavailable"
	}
	dc.DrawStringAnchored(label, renderWidth/2, renderHeight/2, 0.5, 0.5)

	return dc.Image()
}

func writeJPEG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return fmt.Errorf("encode preview: %w", err)
	}
	return f.Close()
}
