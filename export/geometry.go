// Package export turns generated assets and packaging data into
// downloadable files: STL and OBJ meshes, rendered JPG previews, and
// dieline drawings as SVG, PDF, and JPG.
package export

import (
	"math"

	"github.com/hschendel/stl"

	"github.com/openfoundry/forge3d/state"
)

// faceNormal computes the right-handed normal of a triangle.
func faceNormal(a, b, c stl.Vec3) stl.Vec3 {
	ux, uy, uz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	vx, vy, vz := c[0]-a[0], c[1]-a[1], c[2]-a[2]

	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx

	len := float32(math.Sqrt(float64(nx*nx + ny*ny + nz*nz)))
	if len == 0 {
		return stl.Vec3{0, 0, 1}
	}
	return stl.Vec3{nx / len, ny / len, nz / len}
}

func triangle(a, b, c stl.Vec3) stl.Triangle {
	return stl.Triangle{
		Normal:   faceNormal(a, b, c),
		Vertices: [3]stl.Vec3{a, b, c},
	}
}

// BoxSolid builds a closed box centered at the origin from package
// dimensions. Dimensions are millimeters; the mesh is in meters.
func BoxSolid(dims state.Dimensions) *stl.Solid {
	w := float32(dims.WidthMM / 1000.0)
	h := float32(dims.HeightMM / 1000.0)
	d := float32(dims.DepthMM / 1000.0)

	hw, hh, hd := w/2, h/2, d/2

	// corners: [x][y][z], 0 = negative half, 1 = positive half
	var c [2][2][2]stl.Vec3
	for xi, x := range []float32{-hw, hw} {
		for yi, y := range []float32{-hh, hh} {
			for zi, z := range []float32{-hd, hd} {
				c[xi][yi][zi] = stl.Vec3{x, y, z}
			}
		}
	}

	quads := [][4]stl.Vec3{
		{c[0][0][1], c[1][0][1], c[1][1][1], c[0][1][1]}, // +z
		{c[1][0][0], c[0][0][0], c[0][1][0], c[1][1][0]}, // -z
		{c[1][0][1], c[1][0][0], c[1][1][0], c[1][1][1]}, // +x
		{c[0][0][0], c[0][0][1], c[0][1][1], c[0][1][0]}, // -x
		{c[0][1][1], c[1][1][1], c[1][1][0], c[0][1][0]}, // +y
		{c[0][0][0], c[1][0][0], c[1][0][1], c[0][0][1]}, // -y
	}

	solid := &stl.Solid{Name: "package_box"}
	for _, q := range quads {
		solid.Triangles = append(solid.Triangles,
			triangle(q[0], q[1], q[2]),
			triangle(q[0], q[2], q[3]),
		)
	}
	return solid
}

// CylinderSolid builds a closed cylinder centered at the origin. Width is
// the diameter in millimeters, the mesh is in meters, side wall split into
// 32 sections.
func CylinderSolid(dims state.Dimensions) *stl.Solid {
	const sections = 32

	radius := float32(dims.WidthMM / 1000.0 / 2.0)
	height := float32(dims.HeightMM / 1000.0)
	hh := height / 2

	solid := &stl.Solid{Name: "package_cylinder"}

	topCenter := stl.Vec3{0, 0, hh}
	bottomCenter := stl.Vec3{0, 0, -hh}

	for i := 0; i < sections; i++ {
		a0 := 2 * math.Pi * float64(i) / sections
		a1 := 2 * math.Pi * float64(i+1) / sections

		x0, y0 := radius*float32(math.Cos(a0)), radius*float32(math.Sin(a0))
		x1, y1 := radius*float32(math.Cos(a1)), radius*float32(math.Sin(a1))

		bt0 := stl.Vec3{x0, y0, hh}
		bt1 := stl.Vec3{x1, y1, hh}
		bb0 := stl.Vec3{x0, y0, -hh}
		bb1 := stl.Vec3{x1, y1, -hh}

		// side wall
		solid.Triangles = append(solid.Triangles,
			triangle(bb0, bb1, bt1),
			triangle(bb0, bt1, bt0),
		)
		// caps
		solid.Triangles = append(solid.Triangles,
			triangle(topCenter, bt0, bt1),
			triangle(bottomCenter, bb1, bb0),
		)
	}

	return solid
}

// solidBounds returns the min and max corner of a solid.
func solidBounds(solid *stl.Solid) (min, max stl.Vec3) {
	if len(solid.Triangles) == 0 {
		return
	}
	min = solid.Triangles[0].Vertices[0]
	max = min
	for _, t := range solid.Triangles {
		for _, v := range t.Vertices {
			for i := 0; i < 3; i++ {
				if v[i] < min[i] {
					min[i] = v[i]
				}
				if v[i] > max[i] {
					max[i] = v[i]
				}
			}
		}
	}
	return
}
