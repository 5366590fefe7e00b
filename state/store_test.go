package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(config.RedisConfig{
		Addr:      mr.Addr(),
		KeyPrefix: "test",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// stores under test share one behavioral contract
func testStores(t *testing.T, run func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("redis", func(t *testing.T) {
		run(t, newTestRedisStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		run(t, NewMemoryStore())
	})
}

func TestStore_ProductDefaults(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		st, err := s.GetProduct(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, st.Status)
		assert.Equal(t, ModeIdle, st.Mode)
		assert.Empty(t, st.Images)
		assert.Empty(t, st.Iterations)
		assert.False(t, st.InProgress)
	})
}

func TestStore_ProductRoundTrip(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		st := NewProductState()
		st.Prompt = "a ceramic coffee mug"
		st.Mode = ModeCreate
		st.Status = StatusGeneratingImages
		st.InProgress = true
		st.Images = []string{"data:image/png;base64,AAAA"}
		st.Iterations = append(st.Iterations, ProductIteration{
			ID:        "iter-1",
			Type:      ModeCreate,
			Prompt:    "a ceramic coffee mug",
			Images:    []string{"data:image/png;base64,AAAA"},
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, s.SaveProduct(ctx, st))

		got, err := s.GetProduct(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a ceramic coffee mug", got.Prompt)
		assert.Equal(t, StatusGeneratingImages, got.Status)
		assert.True(t, got.InProgress)
		require.Len(t, got.Iterations, 1)
		assert.Equal(t, "iter-1", got.Iterations[0].ID)

		require.NoError(t, s.ClearProduct(ctx))
		got, err = s.GetProduct(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, got.Status)
		assert.Empty(t, got.Iterations)
	})
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		st := NewProductState()
		st.Images = []string{"one"}
		require.NoError(t, s.SaveProduct(ctx, st))

		a, err := s.GetProduct(ctx)
		require.NoError(t, err)
		a.Images[0] = "mutated"
		a.Prompt = "mutated"

		b, err := s.GetProduct(ctx)
		require.NoError(t, err)
		assert.Equal(t, "one", b.Images[0])
		assert.Empty(t, b.Prompt)
	})
}

func TestStore_StatusRoundTrip(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		got, err := s.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, got.Status)
		assert.Equal(t, 0, got.Progress)

		require.NoError(t, s.SaveStatus(ctx, &ProductStatus{
			Status:   StatusGeneratingModel,
			Progress: 70,
			Message:  "Generating 3D model...",
		}))

		got, err = s.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusGeneratingModel, got.Status)
		assert.Equal(t, 70, got.Progress)

		require.NoError(t, s.ClearStatus(ctx))
		got, err = s.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, got.Status)
	})
}

func TestStore_PackagingRoundTrip(t *testing.T) {
	testStores(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		got, err := s.GetPackaging(ctx)
		require.NoError(t, err)
		assert.Equal(t, PackageBox, got.PackageType)
		assert.NotNil(t, got.PanelTextures)

		got.PackageType = PackageCylinder
		got.Cylinder = Dimensions{WidthMM: 60, HeightMM: 200}
		got.PanelTextures["front"] = PanelTexture{
			PanelID:    "front",
			TextureURL: "data:image/png;base64,BBBB",
			Prompt:     "solid red",
			WidthMM:    100,
			HeightMM:   150,
		}
		require.NoError(t, s.SavePackaging(ctx, got))

		again, err := s.GetPackaging(ctx)
		require.NoError(t, err)
		assert.Equal(t, PackageCylinder, again.PackageType)
		assert.Equal(t, 60.0, again.ActiveDimensions().WidthMM)
		require.Contains(t, again.PanelTextures, "front")
		assert.Equal(t, "solid red", again.PanelTextures["front"].Prompt)
	})
}

func TestRedisStore_CorruptBlobTreatedAsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test"}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, mr.Set("test:product:state", "{not json"))

	st, err := store.GetProduct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestRedisStore_Ping(t *testing.T) {
	store := newTestRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
