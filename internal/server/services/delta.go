package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/blocksync"
	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/events"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/syncdrive/internal/server/storage"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// signatureCacheSize bounds the in-process signature cache. Entries are keyed
// by (user, item, version, blockSize); version bytes are immutable, so cached
// signatures never go stale.
const signatureCacheSize = 256

// DeltaService drives the signature/delta exchange for item content: it
// serves block signatures of stored versions and applies client deltas,
// publishing the reconstructed content as a new immutable version plus a
// MODIFY journal entry.
type DeltaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.Backend
	publisher   events.Publisher
	log         logging.Logger
	sigCache    *lru.Cache[string, *blocksync.FileSignature]
}

// NewDeltaService constructs a DeltaService.
func NewDeltaService(db *sql.DB, m repomanager.RepositoryManager, store storage.Backend,
	publisher events.Publisher, log logging.Logger) (*DeltaService, error) {
	cache, err := lru.New[string, *blocksync.FileSignature](signatureCacheSize)
	if err != nil {
		return nil, err
	}
	return &DeltaService{
		db:          db,
		repomanager: m,
		store:       store,
		publisher:   publisher,
		log:         log.With("service", "delta"),
		sigCache:    cache,
	}, nil
}

func signatureCacheKey(userID, itemID string, version int64, blockSize int) string {
	return fmt.Sprintf("%s|%s|%d|%d", userID, itemID, version, blockSize)
}

// GetSignature computes (or serves from cache) the block signature of a
// stored item version. version 0 means the latest version.
func (s *DeltaService) GetSignature(ctx context.Context, userID, itemID string,
	version int64, blockSize int) (int64, *blocksync.FileSignature, error) {

	if blockSize == 0 {
		blockSize = blocksync.DefaultBlockSize
	}
	if err := blocksync.ValidateBlockSize(blockSize); err != nil {
		return 0, nil, err
	}

	versionRepo := s.repomanager.Versions(s.db)

	var iv *models.ItemVersion
	var err error
	if version == 0 {
		iv, err = versionRepo.Latest(ctx, userID, itemID)
	} else {
		iv, err = versionRepo.Get(ctx, userID, itemID, version)
	}
	if err != nil {
		return 0, nil, err
	}

	key := signatureCacheKey(userID, itemID, iv.Version, blockSize)
	if sig, ok := s.sigCache.Get(key); ok {
		return iv.Version, sig, nil
	}

	content, err := s.store.Retrieve(ctx, iv.StorageKey)
	if err != nil {
		return 0, nil, err
	}

	sig, err := blocksync.Signature(content, blockSize)
	if err != nil {
		return 0, nil, err
	}
	s.sigCache.Add(key, sig)

	return iv.Version, sig, nil
}

// DeltaResult reports a published delta upload.
type DeltaResult struct {
	Version *models.ItemVersion
	Change  *models.Change
	// AppliedBlockCount is the number of delta instructions applied, both
	// base-block references and literal blocks.
	AppliedBlockCount int
}

// ApplyDelta reconstructs item content from a client delta against a stored
// base version, verifies it against the declared whole-file checksum, and on
// success publishes it: the blob is stored under a fresh key first, then the
// version row and the MODIFY journal entry commit in one transaction. A
// checksum mismatch rejects the upload with storage and journal untouched.
// baseVersion 0 means the delta is against empty content (new or
// content-less item).
func (s *DeltaService) ApplyDelta(ctx context.Context, userID, deviceID, itemID string,
	baseVersion int64, blockSize int, blocks []blocksync.Block,
	finalChecksum string) (*DeltaResult, error) {

	device, err := requireActiveDevice(ctx, s.repomanager, s.db, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", common.ErrorValidation)
	}
	if finalChecksum == "" {
		return nil, fmt.Errorf("%w: final checksum is required", common.ErrorValidation)
	}
	if blockSize == 0 {
		blockSize = blocksync.DefaultBlockSize
	}

	var base []byte
	if baseVersion != 0 {
		bv, err := s.repomanager.Versions(s.db).Get(ctx, userID, itemID, baseVersion)
		if err != nil {
			return nil, err
		}
		if base, err = s.store.Retrieve(ctx, bv.StorageKey); err != nil {
			return nil, err
		}
	}

	content, err := blocksync.Apply(base, blockSize, blocks)
	if err != nil {
		return nil, err
	}

	if blocksync.StrongChecksum(content) != finalChecksum {
		return nil, fmt.Errorf("%w: reconstructed content does not match declared checksum", common.ErrChecksumMismatch)
	}

	// Write-then-publish: the blob lands under a key nothing references yet,
	// so a crash before commit leaves an orphan object, never a journal entry
	// pointing at missing content.
	storageKey := newStorageKey(userID)
	if err := s.store.Store(ctx, storageKey, content); err != nil {
		return nil, err
	}

	var iv *models.ItemVersion
	var change *models.Change

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		versionRepo := s.repomanager.Versions(tx)
		changeRepo := s.repomanager.Changes(tx)
		conflictRepo := s.repomanager.Conflicts(tx)

		version, err := versionRepo.NextVersion(ctx, userID, itemID)
		if err != nil {
			return err
		}
		iv = &models.ItemVersion{
			ItemID:     itemID,
			UserID:     userID,
			Version:    version,
			StorageKey: storageKey,
			Checksum:   finalChecksum,
			Size:       int64(len(content)),
		}
		if err := versionRepo.Create(ctx, iv); err != nil {
			return err
		}

		change = &models.Change{
			ID:             uuid.NewString(),
			UserID:         userID,
			ItemID:         itemID,
			ChangeType:     models.ChangeModify,
			OriginDeviceID: deviceID,
			Checksum:       finalChecksum,
		}
		if _, err := detectConflict(ctx, changeRepo, conflictRepo, device.LastCursor, change); err != nil {
			return err
		}
		if change.Cursor, err = changeRepo.NextCursor(ctx, userID); err != nil {
			return err
		}
		return changeRepo.Append(ctx, change)
	})
	if err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil &&
			!errors.Is(delErr, common.ErrorNotFound) {
			s.log.Warn(ctx, "failed to delete orphan blob", "key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("error publishing version: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishChange(ctx, events.ChangeRecorded{UserID: userID, Change: *change}); err != nil {
			s.log.Warn(ctx, "failed to publish change event", "change_id", change.ID, "error", err)
		}
	}

	return &DeltaResult{Version: iv, Change: change, AppliedBlockCount: len(blocks)}, nil
}
