package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T, s Storage) {
	ctx := context.Background()
	key := Key{Size: "toy", Name: EvaluationKeyName}

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Load(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Store(ctx, key, []byte("first")))
	require.NoError(t, s.Store(ctx, key, []byte("second")))

	data, err := s.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	// Same name under another size is a different artifact.
	_, err = s.Load(ctx, Key{Size: "small", Name: EvaluationKeyName})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, key))
	require.ErrorIs(t, s.Delete(ctx, key), ErrNotFound)

	require.ErrorIs(t, s.Store(ctx, Key{Size: "toy", Name: "../escape"}, nil), ErrInvalidKey)
	require.ErrorIs(t, s.Store(ctx, Key{Name: ResultName}, nil), ErrInvalidKey)
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage(1)
	defer s.Close()
	testBackend(t, s)
}

func TestMemoryStorageCapacity(t *testing.T) {
	s := NewMemoryStorage(1)
	ctx := context.Background()

	big := make([]byte, 600*1024)
	require.NoError(t, s.Store(ctx, Key{"toy", "a"}, big))
	require.ErrorIs(t, s.Store(ctx, Key{"toy", "b"}, big), ErrStorageFull)
	// Replacing an artifact only counts the difference.
	require.NoError(t, s.Store(ctx, Key{"toy", "a"}, big))
}

func TestFileStorage(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	testBackend(t, s)
}

func TestFileStorageDetectsCorruption(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := Key{Size: "toy", Name: ResultName}

	require.NoError(t, s.Store(ctx, key, []byte("bits")))
	require.NoError(t, os.WriteFile(s.Path(key), []byte("flipped"), 0600))

	_, err = s.Load(ctx, key)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDigest(t *testing.T) {
	require.Len(t, Digest(nil), 64)
	require.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
	require.Equal(t, Digest([]byte("a")), Digest([]byte("a")))
}

func TestBinaryHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(1)
	key := Key{Size: "toy", Name: ResultName}

	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, StoreBinary(ctx, s, key, want))

	var got time.Time
	require.NoError(t, LoadBinary(ctx, s, key, &got))
	require.True(t, want.Equal(got))

	require.NoError(t, s.Store(ctx, key, []byte{0xff}))
	require.Error(t, LoadBinary(ctx, s, key, &got))
	require.ErrorIs(t, LoadBinary(ctx, s, Key{Size: "toy", Name: "missing"}, &got), ErrNotFound)
}
