package metadata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagAndLookup(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	when := time.Date(2024, 3, 1, 10, 30, 0, 123, time.FixedZone("CET", 3600))
	require.NoError(t, s.TagSigned(ctx, "docs/a.pdf", SignedAspect{
		SignatureDate: when,
		SignedBy:      "Jane Signer",
		Reason:        "Approved",
	}))

	got, err := s.Lookup(ctx, "docs/a.pdf")
	require.NoError(t, err)
	assert.True(t, got.SignatureDate.Equal(when))
	assert.Equal(t, "Jane Signer", got.SignedBy)
	assert.Equal(t, "Approved", got.Reason)
	assert.Empty(t, got.Location)
}

func TestTagReplacesEarlierAspect(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.TagSigned(ctx, "a.pdf", SignedAspect{SignatureDate: time.Unix(1, 0), SignedBy: "First"}))
	require.NoError(t, s.TagSigned(ctx, "a.pdf", SignedAspect{SignatureDate: time.Unix(2, 0), SignedBy: "Second"}))

	got, err := s.Lookup(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.SignedBy)
	assert.Equal(t, int64(2), got.SignatureDate.Unix())
}

func TestLookupMissing(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Lookup(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrNotTagged)
}

func TestTagRequiresHandle(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.TagSigned(context.Background(), "", SignedAspect{}))
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "signed.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.TagSigned(ctx, "a.pdf", SignedAspect{SignatureDate: time.Unix(5, 0), SignedBy: "Jane"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Lookup(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.SignedBy)
}
