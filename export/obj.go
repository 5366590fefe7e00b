package export

import (
	"bufio"
	"fmt"
	"os"

	"github.com/hschendel/stl"
)

// WriteOBJ writes a solid as a Wavefront OBJ file. Vertices are emitted
// per triangle without deduplication; viewers handle that fine and the
// writer stays single pass.
func WriteOBJ(solid *stl.Solid, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %s\n", solid.Name)

	for _, t := range solid.Triangles {
		for _, v := range t.Vertices {
			fmt.Fprintf(w, "v %g %g %g\n", v[0], v[1], v[2])
		}
	}
	for i := range solid.Triangles {
		base := i*3 + 1
		fmt.Fprintf(w, "f %d %d %d\n", base, base+1, base+2)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
