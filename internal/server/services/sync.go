package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/events"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/changes"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/conflicts"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/syncdrive/internal/server/storage"
	"github.com/google/uuid"
)

const (
	// DefaultPullLimit is applied when a pull request does not specify one.
	DefaultPullLimit = 100
	// MaxPullLimit caps a single pull page.
	MaxPullLimit = 500
)

// SyncService orchestrates push/pull against the change journal and the
// conflict lifecycle. It is stateless between requests; the only persistent
// per-device state is the Device record itself.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.Backend
	publisher   events.Publisher
	log         logging.Logger
}

// NewSyncService constructs a SyncService.
func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, store storage.Backend,
	publisher events.Publisher, log logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		store:       store,
		publisher:   publisher,
		log:         log.With("service", "sync"),
	}
}

// requireActiveDevice loads the device and rejects pushes/pulls from unknown
// or deactivated devices.
func requireActiveDevice(ctx context.Context, m repomanager.RepositoryManager, db dbx.DBTX, userID, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", common.ErrorValidation)
	}
	device, err := m.Devices(db).Get(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: device %q is not registered", common.ErrorValidation, deviceID)
		}
		return nil, err
	}
	if !device.IsActive {
		return nil, fmt.Errorf("%w: device %q is deactivated", common.ErrorValidation, deviceID)
	}
	return device, nil
}

// newStorageKey generates a fresh opaque storage key for a version blob.
func newStorageKey(userID string) string {
	d := time.Now()
	return fmt.Sprintf("users/%s/%d/%d/%d/%v", userID, d.Year(), d.Month(), d.Day(), uuid.New())
}

// classifyConflict maps the pair (unseen journal change, incoming change) to
// a conflict type. Two DELETEs of the same item have the same effect and do
// not conflict.
func classifyConflict(local, remote models.ChangeType) (models.ConflictType, bool) {
	switch {
	case local == models.ChangeDelete && remote == models.ChangeDelete:
		return "", false
	case local == models.ChangeDelete || remote == models.ChangeDelete:
		return models.ConflictModifyDelete, true
	case local == models.ChangeMove && remote == models.ChangeMove:
		return models.ConflictConcurrentMove, true
	default:
		return models.ConflictConcurrentModify, true
	}
}

// detectConflict checks whether change collides with a journal entry the
// pushing device has not observed and, if so, records a Conflict row and
// flags the incoming change. Runs inside the append transaction so the
// detection window and the cursor assignment share one critical section.
func detectConflict(ctx context.Context, changeRepo changes.Repository, conflictRepo conflicts.Repository,
	sinceCursor int64, change *models.Change) (*models.Conflict, error) {

	unseen, err := changeRepo.LastUnseenForItem(ctx, change.UserID, change.ItemID, change.OriginDeviceID, sinceCursor)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// MOVEs to the same destination are the same change made twice.
	if unseen.ChangeType == models.ChangeMove && change.ChangeType == models.ChangeMove &&
		unseen.NewPath == change.NewPath {
		return nil, nil
	}

	conflictType, ok := classifyConflict(unseen.ChangeType, change.ChangeType)
	if !ok {
		return nil, nil
	}

	change.Conflicted = true

	conflict := &models.Conflict{
		ID:             uuid.NewString(),
		UserID:         change.UserID,
		ItemID:         change.ItemID,
		ConflictType:   conflictType,
		LocalChangeID:  unseen.ID,
		RemoteChangeID: change.ID,
	}
	if err := conflictRepo.Create(ctx, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

func validateChange(c *models.Change) error {
	if c.ItemID == "" {
		return fmt.Errorf("%w: item id is required", common.ErrorValidation)
	}
	if !models.ValidChangeType(c.ChangeType) {
		return fmt.Errorf("%w: unknown change type %q", common.ErrorValidation, c.ChangeType)
	}
	if c.ChangeType == models.ChangeMove && (c.OldPath == "" || c.NewPath == "") {
		return fmt.Errorf("%w: MOVE requires oldPath and newPath", common.ErrorValidation)
	}
	return nil
}

// Push appends the device's local changes to the journal, running conflict
// detection for each against the journal window the device has not observed.
// Conflicted changes are still appended, flagged, so nothing is silently
// dropped. Changes carrying an id already present in the journal are skipped
// (idempotent retry).
//
// sinceCursor is the highest cursor the client claims to have pulled; the
// server hardens it against the device's recorded high-water mark.
func (s *SyncService) Push(ctx context.Context, userID, deviceID string, sinceCursor int64,
	incoming []*models.Change) ([]*models.Change, []*models.Conflict, error) {

	device, err := requireActiveDevice(ctx, s.repomanager, s.db, userID, deviceID)
	if err != nil {
		return nil, nil, err
	}

	for _, c := range incoming {
		if err := validateChange(c); err != nil {
			return nil, nil, err
		}
	}

	// A stale client may claim a cursor below what this device already pulled.
	effectiveSince := sinceCursor
	if device.LastCursor > effectiveSince {
		effectiveSince = device.LastCursor
	}

	var accepted, appended []*models.Change
	var detected []*models.Conflict

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		changeRepo := s.repomanager.Changes(tx)
		conflictRepo := s.repomanager.Conflicts(tx)

		for _, c := range incoming {
			if c.ID != "" {
				existing, err := changeRepo.GetByID(ctx, userID, c.ID)
				if err == nil {
					accepted = append(accepted, existing)
					continue
				}
				if !errors.Is(err, common.ErrorNotFound) {
					return err
				}
			} else {
				c.ID = uuid.NewString()
			}

			c.UserID = userID
			c.OriginDeviceID = deviceID

			conflict, err := detectConflict(ctx, changeRepo, conflictRepo, effectiveSince, c)
			if err != nil {
				return err
			}
			if conflict != nil {
				detected = append(detected, conflict)
			}

			cursor, err := changeRepo.NextCursor(ctx, userID)
			if err != nil {
				return err
			}
			c.Cursor = cursor

			if err := changeRepo.Append(ctx, c); err != nil {
				return err
			}
			accepted = append(accepted, c)
			appended = append(appended, c)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error appending changes: %w", err)
	}

	// The device's observation mark only advances on Pull; a device's own
	// appends are already excluded from its conflict window.

	s.publishAll(ctx, userID, appended)

	return accepted, detected, nil
}

// PullResult is one page of the journal plus the user's pending conflicts.
type PullResult struct {
	Changes []*models.Change
	// NextCursor is the cursor of the last returned change; clients pass it
	// back on the next pull.
	NextCursor int64
	// LatestCursor is the journal's current tail, so clients can show sync
	// progress without paging to the end.
	LatestCursor int64
	HasMore      bool
	Conflicts    []*models.Conflict
}

// Pull returns journal changes with cursors strictly greater than cursor, in
// cursor order, plus the user's pending conflicts. HasMore reports whether
// the journal extends beyond the returned page.
func (s *SyncService) Pull(ctx context.Context, userID, deviceID string, cursor int64, limit int) (*PullResult, error) {

	if _, err := requireActiveDevice(ctx, s.repomanager, s.db, userID, deviceID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPullLimit
	}
	if limit > MaxPullLimit {
		limit = MaxPullLimit
	}

	changeRepo := s.repomanager.Changes(s.db)

	// limit+1 probe to detect a following page without a COUNT.
	rows, err := changeRepo.ReadSince(ctx, userID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("error reading changes: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	nextCursor := cursor
	if len(rows) > 0 {
		nextCursor = rows[len(rows)-1].Cursor
	}

	latest, err := changeRepo.LatestCursor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reading latest cursor: %w", err)
	}

	pending, err := s.repomanager.Conflicts(s.db).ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing conflicts: %w", err)
	}

	if nextCursor > cursor {
		if err := s.repomanager.Devices(s.db).TouchSync(ctx, userID, deviceID, nextCursor); err != nil {
			s.log.Warn(ctx, "failed to update device sync mark", "device_id", deviceID, "error", err)
		}
	}

	return &PullResult{
		Changes:      rows,
		NextCursor:   nextCursor,
		LatestCursor: latest,
		HasMore:      hasMore,
		Conflicts:    pending,
	}, nil
}

// ListPending returns the user's unresolved conflicts.
func (s *SyncService) ListPending(ctx context.Context, userID string) ([]*models.Conflict, error) {
	return s.repomanager.Conflicts(s.db).ListPending(ctx, userID)
}

// Resolve applies a resolution policy to a pending conflict:
//
//   - KEEP_LOCAL: appends a compensating MODIFY restoring the change that was
//     already in the journal and, when a stored version still carries its
//     bytes, republishes them as the latest version.
//   - KEEP_REMOTE: accepts the conflicted change as-is; only the resolution
//     is recorded.
//   - KEEP_BOTH: keeps the current content under the original item and
//     publishes a renamed copy of it as a new item, via a storage-level copy
//     and a CREATE append.
//
// Resolving an already-resolved conflict returns the prior resolution
// without error.
func (s *SyncService) Resolve(ctx context.Context, userID, deviceID, conflictID string,
	resolution models.Resolution) (*models.Conflict, error) {

	if !models.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: unknown resolution %q", common.ErrorValidation, resolution)
	}
	if _, err := requireActiveDevice(ctx, s.repomanager, s.db, userID, deviceID); err != nil {
		return nil, err
	}

	conflictRepo := s.repomanager.Conflicts(s.db)
	conflict, err := conflictRepo.GetByID(ctx, userID, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Resolved() {
		return conflict, nil
	}

	// Storage copies happen outside the journal transaction so a failed
	// commit leaves only an orphan object, never a dangling journal entry.
	var local *models.Change
	var copyItemID, copyKey, copyName string
	var copySize int64
	var copyChecksum string

	switch resolution {
	case models.ResolutionKeepLocal:
		local, err = s.repomanager.Changes(s.db).GetByID(ctx, userID, conflict.LocalChangeID)
		if err != nil {
			return nil, err
		}
		// Republish the local bytes as the latest stored version, when a
		// stored version still carries them.
		if local.Checksum != "" {
			v, err := s.repomanager.Versions(s.db).FindByChecksum(ctx, userID, conflict.ItemID, local.Checksum)
			switch {
			case err == nil:
				copyKey = newStorageKey(userID)
				if err := s.store.Copy(ctx, v.StorageKey, copyKey); err != nil {
					return nil, err
				}
				copySize = v.Size
				copyChecksum = v.Checksum
			case errors.Is(err, common.ErrorNotFound):
				// Metadata-only change, or the local bytes were never stored;
				// the compensating append alone carries the resolution.
			default:
				return nil, err
			}
		}

	case models.ResolutionKeepBoth:
		copyItemID = uuid.NewString()
		remote, err := s.repomanager.Changes(s.db).GetByID(ctx, userID, conflict.RemoteChangeID)
		if err != nil {
			return nil, err
		}
		copyName = conflictCopyPath(remote.NewPath, remote.OriginDeviceID)

		latest, err := s.repomanager.Versions(s.db).Latest(ctx, userID, conflict.ItemID)
		switch {
		case err == nil:
			copyKey = newStorageKey(userID)
			if err := s.store.Copy(ctx, latest.StorageKey, copyKey); err != nil {
				return nil, err
			}
			copySize = latest.Size
			copyChecksum = latest.Checksum
		case errors.Is(err, common.ErrorNotFound):
			// Metadata-only item: the copy starts empty and content follows
			// by delta upload.
		default:
			return nil, err
		}
	}

	var appended []*models.Change

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		resolved, err := s.repomanager.Conflicts(tx).MarkResolved(ctx, userID, conflictID, resolution)
		if err != nil {
			return err
		}
		if !resolved {
			// Another device resolved it first; keep theirs.
			return nil
		}

		changeRepo := s.repomanager.Changes(tx)

		switch resolution {
		case models.ResolutionKeepLocal:
			if copyKey != "" {
				versionRepo := s.repomanager.Versions(tx)
				v, err := versionRepo.NextVersion(ctx, userID, conflict.ItemID)
				if err != nil {
					return err
				}
				iv := &models.ItemVersion{
					ItemID:     conflict.ItemID,
					UserID:     userID,
					Version:    v,
					StorageKey: copyKey,
					Checksum:   copyChecksum,
					Size:       copySize,
				}
				if err := versionRepo.Create(ctx, iv); err != nil {
					return err
				}
			}
			c := &models.Change{
				ID:             uuid.NewString(),
				UserID:         userID,
				ItemID:         conflict.ItemID,
				ChangeType:     models.ChangeModify,
				OriginDeviceID: deviceID,
				NewPath:        local.NewPath,
				Checksum:       local.Checksum,
			}
			if c.Cursor, err = changeRepo.NextCursor(ctx, userID); err != nil {
				return err
			}
			if err := changeRepo.Append(ctx, c); err != nil {
				return err
			}
			appended = append(appended, c)

		case models.ResolutionKeepBoth:
			if copyKey != "" {
				versionRepo := s.repomanager.Versions(tx)
				v, err := versionRepo.NextVersion(ctx, userID, copyItemID)
				if err != nil {
					return err
				}
				iv := &models.ItemVersion{
					ItemID:     copyItemID,
					UserID:     userID,
					Version:    v,
					StorageKey: copyKey,
					Checksum:   copyChecksum,
					Size:       copySize,
				}
				if err := versionRepo.Create(ctx, iv); err != nil {
					return err
				}
			}
			c := &models.Change{
				ID:             uuid.NewString(),
				UserID:         userID,
				ItemID:         copyItemID,
				ChangeType:     models.ChangeCreate,
				OriginDeviceID: deviceID,
				NewPath:        copyName,
				Checksum:       copyChecksum,
			}
			if c.Cursor, err = changeRepo.NextCursor(ctx, userID); err != nil {
				return err
			}
			if err := changeRepo.Append(ctx, c); err != nil {
				return err
			}
			appended = append(appended, c)
		case models.ResolutionKeepRemote:
			// The conflicted change is already the journal's latest word on
			// the item.
		}
		return nil
	})
	if err != nil {
		if copyKey != "" {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), copyKey); delErr != nil {
				s.log.Warn(ctx, "failed to delete orphan blob", "key", copyKey, "error", delErr)
			}
		}
		return nil, fmt.Errorf("error resolving conflict: %w", err)
	}

	s.publishAll(ctx, userID, appended)

	return conflictRepo.GetByID(ctx, userID, conflictID)
}

// conflictCopyPath derives the path of the renamed KEEP_BOTH copy.
func conflictCopyPath(path, deviceID string) string {
	return fmt.Sprintf("%s (conflicted copy %s)", path, deviceID)
}

// publishAll emits ChangeRecorded events for committed appends. Publish
// failures are logged, never returned: the journal is the source of truth.
func (s *SyncService) publishAll(ctx context.Context, userID string, changes []*models.Change) {
	if s.publisher == nil {
		return
	}
	for _, c := range changes {
		ev := events.ChangeRecorded{UserID: userID, Change: *c}
		if err := s.publisher.PublishChange(ctx, ev); err != nil {
			s.log.Warn(ctx, "failed to publish change event", "change_id", c.ID, "error", err)
		}
	}
}
