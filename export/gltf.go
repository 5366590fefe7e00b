package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hschendel/stl"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/openfoundry/forge3d/types"
)

// maxModelDownloadBytes caps GLB downloads at 200 MB.
const maxModelDownloadBytes = 200 << 20

// DownloadModel fetches a generated model file over HTTP.
func DownloadModel(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid model URL").WithCause(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to download model file").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("model download returned status %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= 500)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModelDownloadBytes))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read model file").WithCause(err)
	}
	return data, nil
}

// GLBToSolid parses a binary glTF payload and flattens every mesh
// primitive into one triangle soup.
func GLBToSolid(data []byte) (*stl.Solid, error) {
	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, types.NewError(types.ErrGenerationFailed, "invalid glTF model file").WithCause(err)
	}

	solid := &stl.Solid{Name: "product"}

	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			positions, err := modeler.ReadPosition(&doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, types.NewError(types.ErrGenerationFailed, "failed to read mesh positions").WithCause(err)
			}

			var indices []uint32
			if prim.Indices != nil {
				indices, err = modeler.ReadIndices(&doc, doc.Accessors[*prim.Indices], nil)
				if err != nil {
					return nil, types.NewError(types.ErrGenerationFailed, "failed to read mesh indices").WithCause(err)
				}
			} else {
				indices = make([]uint32, len(positions))
				for i := range indices {
					indices[i] = uint32(i)
				}
			}

			for i := 0; i+2 < len(indices); i += 3 {
				a := positions[indices[i]]
				b := positions[indices[i+1]]
				c := positions[indices[i+2]]
				solid.Triangles = append(solid.Triangles, triangle(
					stl.Vec3{a[0], a[1], a[2]},
					stl.Vec3{b[0], b[1], b[2]},
					stl.Vec3{c[0], c[1], c[2]},
				))
			}
		}
	}

	if len(solid.Triangles) == 0 {
		return nil, types.NewError(types.ErrGenerationFailed, "model file contains no triangle geometry")
	}
	return solid, nil
}
