package blocksync

import (
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
)

// Block is one instruction of a delta upload: either a reference to an
// unchanged base block by index (Ref set, Data nil) or literal bytes for a
// changed/new region (Data set, Ref nil).
type Block struct {
	Ref  *int64 `json:"ref,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// RefBlock returns a reference instruction for base block index.
func RefBlock(index int64) Block {
	return Block{Ref: &index}
}

// DataBlock returns a literal instruction carrying p verbatim.
func DataBlock(p []byte) Block {
	return Block{Data: p}
}

// Apply materializes the candidate new content from the base version's bytes
// and the delta instructions, concatenating in instruction order. It performs
// no checksum verification; callers compare StrongChecksum of the result
// against the declared final checksum before publishing anything.
func Apply(base []byte, blockSize int, blocks []Block) ([]byte, error) {
	if err := ValidateBlockSize(blockSize); err != nil {
		return nil, err
	}

	var out []byte
	for i, b := range blocks {
		switch {
		case b.Ref != nil && b.Data == nil:
			idx := *b.Ref
			start := idx * int64(blockSize)
			if idx < 0 || start >= int64(len(base)) {
				return nil, fmt.Errorf("block %d: ref %d: %w", i, idx, common.ErrBlockOutOfRange)
			}
			end := start + int64(blockSize)
			if end > int64(len(base)) {
				end = int64(len(base))
			}
			out = append(out, base[start:end]...)
		case b.Ref == nil && b.Data != nil:
			out = append(out, b.Data...)
		default:
			return nil, fmt.Errorf("block %d: exactly one of ref or data required: %w", i, common.ErrorValidation)
		}
	}
	return out, nil
}
