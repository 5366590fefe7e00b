package export

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/openfoundry/forge3d/state"
)

// Dieline stroke colors match the frontend preview: green for panels the
// user can texture, slate for flaps and hidden faces.
const (
	strokePanel = "#10b981"
	strokeFlap  = "#94a3b8"
)

type dielinePath struct {
	points [][2]float64
	color  string
}

// dielinePaths lays out the unfolded package as closed outlines plus the
// drawing bounds (margin excluded).
func dielinePaths(pkg *state.PackagingState) (paths []dielinePath, maxX, maxY float64) {
	dims := pkg.ActiveDimensions()

	if pkg.PackageType == state.PackageCylinder {
		return cylinderDieline(dims)
	}
	return boxDieline(dims)
}

func rectPath(x, y, w, h float64, color string) dielinePath {
	return dielinePath{
		points: [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}},
		color:  color,
	}
}

// boxDieline unfolds a box into a cross: top flap, then the
// left/front/right/back strip, then the bottom flap under the front.
func boxDieline(dims state.Dimensions) (paths []dielinePath, maxX, maxY float64) {
	const margin = 20.0
	w, h, d := dims.WidthMM, dims.HeightMM, dims.DepthMM

	paths = []dielinePath{
		rectPath(margin+d, margin, w, d, strokeFlap),           // top
		rectPath(margin, margin+d, d, h, strokePanel),          // left
		rectPath(margin+d, margin+d, w, h, strokePanel),        // front
		rectPath(margin+d+w, margin+d, d, h, strokePanel),      // right
		rectPath(margin+d+w+d, margin+d, w, h, strokeFlap),     // back
		rectPath(margin+d, margin+d+h, w, d, strokeFlap),       // bottom
	}

	maxX = margin + d + w + d + w
	maxY = margin + d + h + d
	return paths, maxX, maxY
}

// cylinderDieline unrolls the side wall into a rectangle one circumference
// wide, with octagon-approximated circles for the caps.
func cylinderDieline(dims state.Dimensions) (paths []dielinePath, maxX, maxY float64) {
	const margin = 10.0
	w, h := dims.WidthMM, dims.HeightMM
	circumference := math.Pi * w

	paths = append(paths, rectPath(margin, margin+w/2, circumference, h, strokePanel))

	octagon := func(cx, cy, r float64, color string) dielinePath {
		p := dielinePath{color: color}
		for i := 0; i < 8; i++ {
			angle := float64(i) * math.Pi * 2 / 8
			p.points = append(p.points, [2]float64{
				cx + math.Cos(angle)*r,
				cy + math.Sin(angle)*r,
			})
		}
		return p
	}

	bottomCenterY := margin + w/2 + h + w/2
	paths = append(paths,
		octagon(margin+circumference/2, margin, w/2, strokePanel),
		octagon(margin+circumference/2, bottomCenterY, w/2, strokeFlap),
	)

	maxX = margin + circumference
	maxY = bottomCenterY + w/2
	return paths, maxX, maxY
}

func dielineMargin(pkg *state.PackagingState) float64 {
	if pkg.PackageType == state.PackageCylinder {
		return 10
	}
	return 20
}

// GenerateDielineSVG renders the dieline as an SVG document. The outlines
// use the same coordinates and colors as the frontend preview.
func GenerateDielineSVG(pkg *state.PackagingState) string {
	paths, maxX, maxY := dielinePaths(pkg)
	margin := dielineMargin(pkg)

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<svg width=\"800\" height=\"600\" viewBox=\"0 0 %g %g\" xmlns=\"http://www.w3.org/2000/svg\">\n",
		maxX+margin, maxY+margin)

	for _, p := range paths {
		var d strings.Builder
		for i, pt := range p.points {
			if i == 0 {
				fmt.Fprintf(&d, "M %g %g", pt[0], pt[1])
			} else {
				fmt.Fprintf(&d, " L %g %g", pt[0], pt[1])
			}
		}
		d.WriteString(" Z")
		fmt.Fprintf(&b,
			"  <path d=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"1\" stroke-linecap=\"round\" stroke-linejoin=\"round\"/>\n",
			d.String(), p.color)
	}

	b.WriteString("</svg>")
	return b.String()
}

func hexToRGB(hex string) (r, g, b int) {
	fmt.Sscanf(strings.TrimPrefix(hex, "#"), "%02x%02x%02x", &r, &g, &b)
	return
}

// WriteDielinePDF draws the dieline onto an A4 page, scaled to fit with a
// 10 mm page margin.
func WriteDielinePDF(pkg *state.PackagingState, path string) error {
	paths, maxX, maxY := dielinePaths(pkg)
	margin := dielineMargin(pkg)
	drawW, drawH := maxX+margin, maxY+margin

	const pageW, pageH, pageMargin = 210.0, 297.0, 10.0
	scale := (pageW - 2*pageMargin) / drawW
	if s := (pageH - 2*pageMargin) / drawH; s < scale {
		scale = s
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetLineWidth(0.3)
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, p := range paths {
		r, g, b := hexToRGB(p.color)
		pdf.SetDrawColor(r, g, b)

		points := make([]fpdf.PointType, 0, len(p.points))
		for _, pt := range p.points {
			points = append(points, fpdf.PointType{
				X: pageMargin + pt[0]*scale,
				Y: pageMargin + pt[1]*scale,
			})
		}
		pdf.Polygon(points, "D")
	}

	return pdf.OutputFileAndClose(path)
}

// WriteDielineJPEG rasterizes the dieline SVG onto a white canvas.
func WriteDielineJPEG(pkg *state.PackagingState, path string) error {
	svg := GenerateDielineSVG(pkg)

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return fmt.Errorf("parse dieline SVG: %w", err)
	}

	const width, height = 800, 600
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)

	return writeJPEG(img, path)
}
