package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routelens/internal/extractor"
)

func TestFileRegistryStatusNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	registry := NewFileRegistry(store)

	_, err := registry.Status(context.Background(), "missing.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRegistryUpsert(t *testing.T) {
	store, _ := newTestStore(t)
	registry := NewFileRegistry(store)
	ctx := context.Background()

	rec := &FileRecord{
		RelPath:       "api/users.py",
		SHA256:        "aaa",
		MtimeNs:       111,
		SizeBytes:     42,
		LastScannedAt: 1000,
	}
	require.NoError(t, registry.Upsert(ctx, rec))

	got, err := registry.Status(ctx, "api/users.py")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.SHA256 = "bbb"
	rec.LastScannedAt = 2000
	require.NoError(t, registry.Upsert(ctx, rec))

	got, err = registry.Status(ctx, "api/users.py")
	require.NoError(t, err)
	assert.Equal(t, "bbb", got.SHA256)
	assert.Equal(t, int64(2000), got.LastScannedAt)

	paths, err := registry.ListTracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api/users.py"}, paths)
}

func TestFileRegistryRemoveDropsRoutes(t *testing.T) {
	store, _ := newTestStore(t)
	registry := NewFileRegistry(store)
	routes := NewRouteRepository(store)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, &FileRecord{RelPath: "app.py", SHA256: "x"}))
	require.NoError(t, registry.Upsert(ctx, &FileRecord{RelPath: "other.py", SHA256: "y"}))

	_, err := routes.ReplaceForFile(ctx, "app.py", []extractor.RouteDecl{
		{Method: "GET", Path: "/a", HandlerName: "a", DeclLine: 1},
	}, "ast")
	require.NoError(t, err)
	_, err = routes.ReplaceForFile(ctx, "other.py", []extractor.RouteDecl{
		{Method: "GET", Path: "/b", HandlerName: "b", DeclLine: 1},
	}, "ast")
	require.NoError(t, err)

	require.NoError(t, registry.Remove(ctx, "app.py"))

	_, err = registry.Status(ctx, "app.py")
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := routes.Query(ctx, RouteFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "other.py", rows[0].RelPath)
}
