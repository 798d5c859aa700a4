package blocksync

import "github.com/dmitrijs2005/syncdrive/internal/common"

const (
	// DefaultBlockSize is used when a request does not specify one.
	DefaultBlockSize = 4096
	// MinBlockSize and MaxBlockSize bound client-supplied block sizes.
	MinBlockSize = 512
	MaxBlockSize = 65536
)

// BlockSignature describes one fixed-size block of a file version.
type BlockSignature struct {
	Index  int64  `json:"index"`
	Weak   uint32 `json:"weak"`
	Strong string `json:"strong"`
}

// FileSignature is the ordered per-block signature of a file version.
// It is computed on demand and never persisted.
type FileSignature struct {
	BlockSize int              `json:"blockSize"`
	Blocks    []BlockSignature `json:"blocks"`
}

// ValidateBlockSize checks the protocol bounds for a block size.
func ValidateBlockSize(blockSize int) error {
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return common.ErrBlockSizeRange
	}
	return nil
}

// Signature splits content into blockSize-sized blocks (the final block may
// be short) and computes the weak and strong checksum of each.
func Signature(content []byte, blockSize int) (*FileSignature, error) {
	if err := ValidateBlockSize(blockSize); err != nil {
		return nil, err
	}

	nblocks := (len(content) + blockSize - 1) / blockSize
	sig := &FileSignature{
		BlockSize: blockSize,
		Blocks:    make([]BlockSignature, 0, nblocks),
	}

	for i := 0; i < len(content); i += blockSize {
		end := i + blockSize
		if end > len(content) {
			end = len(content)
		}
		block := content[i:end]
		sig.Blocks = append(sig.Blocks, BlockSignature{
			Index:  int64(i / blockSize),
			Weak:   WeakChecksum(block),
			Strong: StrongChecksum(block),
		})
	}

	return sig, nil
}
