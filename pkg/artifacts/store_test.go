package artifacts

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"streamId":"BATCH-1","version":"1.0"}`)
	id, err := store.Put(ctx, data)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "sha256:"))
	require.Equal(t, ContentID(data), id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"a":1}`)
	first, err := store.Put(ctx, data)
	require.NoError(t, err)
	second, err := store.Put(ctx, data)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := store.Put(ctx, []byte(`{"a":2}`))
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestFileStoreExistsAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)

	ok, err := store.Exists(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, id))

	ok, err = store.Exists(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = store.Get(ctx, id)
	require.Error(t, err)

	// Deleting absent content is not an error.
	require.NoError(t, store.Delete(ctx, id))
}

func TestFileStoreRejectsMalformedID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"", "md5:abcd", "sha256:not-hex", "sha256:"} {
		_, err := store.Get(ctx, id)
		require.Error(t, err, "id %q", id)
	}
}

func TestGatewayURL(t *testing.T) {
	id := ContentID([]byte("doc"))
	raw := strings.TrimPrefix(id, "sha256:")

	require.Equal(t, DefaultGatewayBase+raw, GatewayURL("", id))
	require.Equal(t, "https://cdn.example.com/"+raw, GatewayURL("https://cdn.example.com", id))
	require.Equal(t, "https://cdn.example.com/"+raw, GatewayURL("https://cdn.example.com/", id))
}
