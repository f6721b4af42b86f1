package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/inventory"
)

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "reserve.json"))
	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reserve.json")
	s := NewFileStore(path)

	want := inventory.Reserve{Base: d("3000000.123456789012345678"), Quote: d("120.00000000000000000001")}
	require.NoError(t, s.Save(ctx, want))

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Base.Equal(want.Base))
	assert.True(t, got.Quote.Equal(want.Quote))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"quote":"120.00000000000000000001"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileStoreLegacyKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ethfinex_reserve.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{"eth":"12","pnk":"300000"}`), 0o600))

	got, ok, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Base.Equal(d("300000")))
	assert.True(t, got.Quote.Equal(d("12")))
}

func TestFileStoreRejectsBadContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "hello"},
		{"missing quote", `{"base":"1"}`},
		{"non positive", `{"base":"0","quote":"1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "reserve.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, ok, err := NewFileStore(path).Load(context.Background())
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "r.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "redis"})
	assert.True(t, errors.Is(err, ErrUnknownDriver))

	_, err = Open(ctx, Config{Driver: "file"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)

	s, err = Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Save(ctx, inventory.Reserve{Base: d("1"), Quote: d("2")}))
	got, ok, _ := s.Load(ctx)
	assert.True(t, ok)
	assert.True(t, got.Quote.Equal(d("2")))
	assert.Equal(t, 1, s.(*MemoryStore).Saves())
}

// 需要真实数据库：MM_TEST_POSTGRES_DSN=postgres://... go test ./internal/store
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MM_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, "test-"+t.Name())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.db.ExecContext(ctx, `DELETE FROM reserve_snapshots WHERE pair = $1`, s.pair)
	require.NoError(t, err)

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := inventory.Reserve{Base: d("300000"), Quote: d("12")}
	second := inventory.Reserve{Base: d("299999.85"), Quote: d("12.00000600000450000338")}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Quote.Equal(second.Quote))

	hist, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[1].Base.Equal(first.Base))
}
