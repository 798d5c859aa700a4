package blocksync

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/stretchr/testify/require"
)

func TestApply_AllRefsReconstructsBase(t *testing.T) {
	base := randomContent(t, 10000)
	sig, err := Signature(base, 4096)
	require.NoError(t, err)

	blocks := make([]Block, 0, len(sig.Blocks))
	for _, b := range sig.Blocks {
		blocks = append(blocks, RefBlock(b.Index))
	}

	out, err := Apply(base, 4096, blocks)
	require.NoError(t, err)
	require.True(t, bytes.Equal(base, out))
	require.Equal(t, StrongChecksum(base), StrongChecksum(out))
}

func TestApply_LiteralAndRefMix(t *testing.T) {
	base := []byte("0123456789abcdef") // one short block at 512
	out, err := Apply(base, 512, []Block{
		DataBlock([]byte("new-prefix-")),
		RefBlock(0),
	})
	require.NoError(t, err)
	require.Equal(t, []byte("new-prefix-0123456789abcdef"), out)
}

func TestApply_RefOutOfRange(t *testing.T) {
	base := []byte("short")

	_, err := Apply(base, 512, []Block{RefBlock(1)})
	require.True(t, errors.Is(err, common.ErrBlockOutOfRange))

	_, err = Apply(base, 512, []Block{RefBlock(-1)})
	require.True(t, errors.Is(err, common.ErrBlockOutOfRange))
}

func TestApply_RejectsAmbiguousBlock(t *testing.T) {
	idx := int64(0)
	_, err := Apply([]byte("base"), 512, []Block{{Ref: &idx, Data: []byte("x")}})
	require.True(t, errors.Is(err, common.ErrorValidation))

	_, err = Apply([]byte("base"), 512, []Block{{}})
	require.True(t, errors.Is(err, common.ErrorValidation))
}

func TestApply_BlockSizeBounds(t *testing.T) {
	_, err := Apply(nil, 100, nil)
	require.True(t, errors.Is(err, common.ErrBlockSizeRange))
}

func roundTrip(t *testing.T, base, target []byte, blockSize int) {
	t.Helper()

	sig, err := Signature(base, blockSize)
	require.NoError(t, err)

	delta, err := Delta(sig, target)
	require.NoError(t, err)

	out, err := Apply(base, blockSize, delta)
	require.NoError(t, err)
	require.True(t, bytes.Equal(target, out),
		"reconstructed content differs (base %d bytes, target %d bytes)", len(base), len(target))
	require.Equal(t, StrongChecksum(target), StrongChecksum(out))
}

func TestDelta_RoundTrip_Unchanged(t *testing.T) {
	base := randomContent(t, 10000)
	roundTrip(t, base, base, 4096)

	// An unchanged file is all references, no literals.
	sig, _ := Signature(base, 4096)
	delta, err := Delta(sig, base)
	require.NoError(t, err)
	require.Len(t, delta, 3)
	for _, b := range delta {
		require.NotNil(t, b.Ref)
		require.Nil(t, b.Data)
	}
}

func TestDelta_RoundTrip_EditedMiddle(t *testing.T) {
	base := randomContent(t, 10000)
	target := append([]byte(nil), base...)
	copy(target[5000:], []byte("EDITED REGION"))
	roundTrip(t, base, target, 1024)
}

func TestDelta_RoundTrip_InsertShiftsContent(t *testing.T) {
	base := randomContent(t, 8192)
	target := append([]byte("inserted at the very beginning"), base...)
	roundTrip(t, base, target, 1024)

	// Shifted blocks must still be found via the rolling checksum.
	sig, _ := Signature(base, 1024)
	delta, err := Delta(sig, target)
	require.NoError(t, err)

	refs := 0
	for _, b := range delta {
		if b.Ref != nil {
			refs++
		}
	}
	require.Equal(t, 8, refs, "all base blocks should be reused despite the shift")
}

func TestDelta_RoundTrip_Truncated(t *testing.T) {
	base := randomContent(t, 10000)
	roundTrip(t, base, base[:3000], 1024)
}

func TestDelta_RoundTrip_Appended(t *testing.T) {
	base := randomContent(t, 4096)
	target := append(append([]byte(nil), base...), []byte("tail data")...)
	roundTrip(t, base, target, 1024)
}

func TestDelta_RoundTrip_CompletelyNewContent(t *testing.T) {
	base := randomContent(t, 4096)
	target := bytes.Repeat([]byte{0xAA}, 3000)
	roundTrip(t, base, target, 1024)
}

func TestDelta_RoundTrip_ShortFinalBlockReused(t *testing.T) {
	base := randomContent(t, 2500) // 1024+1024+452
	target := append([]byte("prefix"), base...)
	roundTrip(t, base, target, 1024)
}

func TestDelta_EmptyBase(t *testing.T) {
	sig, err := Signature(nil, 1024)
	require.NoError(t, err)

	delta, err := Delta(sig, []byte("brand new"))
	require.NoError(t, err)
	require.Len(t, delta, 1)
	require.Equal(t, []byte("brand new"), delta[0].Data)

	delta, err = Delta(sig, nil)
	require.NoError(t, err)
	require.Empty(t, delta)
}

func TestDelta_EmptyTarget(t *testing.T) {
	base := randomContent(t, 4096)
	roundTrip(t, base, nil, 1024)
}
