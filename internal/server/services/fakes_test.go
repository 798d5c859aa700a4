package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/events"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
	changesrepo "github.com/dmitrijs2005/syncdrive/internal/server/repositories/changes"
	conflictsrepo "github.com/dmitrijs2005/syncdrive/internal/server/repositories/conflicts"
	devicesrepo "github.com/dmitrijs2005/syncdrive/internal/server/repositories/devices"
	versionsrepo "github.com/dmitrijs2005/syncdrive/internal/server/repositories/versions"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- fake repositories ---

type fakeDevicesRepo struct {
	upsertErr error

	devices map[string]*models.Device // keyed by deviceID

	touchedCursor int64
	touchErr      error

	deactivated []string
	removed     []string
}

func (f *fakeDevicesRepo) Upsert(ctx context.Context, d *models.Device) (*models.Device, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	d.IsActive = true
	if f.devices == nil {
		f.devices = map[string]*models.Device{}
	}
	f.devices[d.DeviceID] = d
	return d, nil
}

func (f *fakeDevicesRepo) Get(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

func (f *fakeDevicesRepo) List(ctx context.Context, userID string, activeOnly bool) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range f.devices {
		if !activeOnly || d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevicesRepo) Deactivate(ctx context.Context, userID, deviceID string) error {
	f.deactivated = append(f.deactivated, deviceID)
	return nil
}

func (f *fakeDevicesRepo) Remove(ctx context.Context, userID, deviceID string) error {
	f.removed = append(f.removed, deviceID)
	return nil
}

func (f *fakeDevicesRepo) TouchSync(ctx context.Context, userID, deviceID string, cursor int64) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	if cursor > f.touchedCursor {
		f.touchedCursor = cursor
	}
	if d, ok := f.devices[deviceID]; ok && cursor > d.LastCursor {
		d.LastCursor = cursor
	}
	return nil
}

type fakeChangesRepo struct {
	cursor    int64
	nextErr   error
	appendErr error

	appended []*models.Change
	byID     map[string]*models.Change

	readOut []*models.Change
	readErr error

	unseenByItem map[string]*models.Change
}

func (f *fakeChangesRepo) NextCursor(ctx context.Context, userID string) (int64, error) {
	if f.nextErr != nil {
		return 0, f.nextErr
	}
	f.cursor++
	return f.cursor, nil
}

func (f *fakeChangesRepo) Append(ctx context.Context, c *models.Change) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, c)
	if f.byID == nil {
		f.byID = map[string]*models.Change{}
	}
	f.byID[c.ID] = c
	return nil
}

func (f *fakeChangesRepo) GetByID(ctx context.Context, userID, id string) (*models.Change, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeChangesRepo) ReadSince(ctx context.Context, userID string, cursor int64, limit int) ([]*models.Change, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []*models.Change
	for _, c := range f.readOut {
		if c.Cursor > cursor {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeChangesRepo) LatestCursor(ctx context.Context, userID string) (int64, error) {
	return f.cursor, nil
}

func (f *fakeChangesRepo) LastUnseenForItem(ctx context.Context, userID, itemID, excludeDeviceID string, sinceCursor int64) (*models.Change, error) {
	c, ok := f.unseenByItem[itemID]
	if !ok || c.Cursor <= sinceCursor || c.OriginDeviceID == excludeDeviceID {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

type fakeConflictsRepo struct {
	created   []*models.Conflict
	createErr error

	byID map[string]*models.Conflict

	pending    []*models.Conflict
	pendingErr error

	resolved   map[string]models.Resolution
	resolveErr error
}

func (f *fakeConflictsRepo) Create(ctx context.Context, c *models.Conflict) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, c)
	if f.byID == nil {
		f.byID = map[string]*models.Conflict{}
	}
	f.byID[c.ID] = c
	return nil
}

func (f *fakeConflictsRepo) GetByID(ctx context.Context, userID, id string) (*models.Conflict, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeConflictsRepo) ListPending(ctx context.Context, userID string) ([]*models.Conflict, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return f.pending, nil
}

func (f *fakeConflictsRepo) MarkResolved(ctx context.Context, userID, id string, resolution models.Resolution) (bool, error) {
	if f.resolveErr != nil {
		return false, f.resolveErr
	}
	c, ok := f.byID[id]
	if !ok || c.Resolved() {
		return false, nil
	}
	c.Resolution = resolution
	if f.resolved == nil {
		f.resolved = map[string]models.Resolution{}
	}
	f.resolved[id] = resolution
	return true, nil
}

type fakeVersionsRepo struct {
	versions map[string][]*models.ItemVersion // keyed by itemID, ascending

	nextErr   error
	createErr error
}

func (f *fakeVersionsRepo) NextVersion(ctx context.Context, userID, itemID string) (int64, error) {
	if f.nextErr != nil {
		return 0, f.nextErr
	}
	return int64(len(f.versions[itemID])) + 1, nil
}

func (f *fakeVersionsRepo) Create(ctx context.Context, v *models.ItemVersion) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.versions == nil {
		f.versions = map[string][]*models.ItemVersion{}
	}
	f.versions[v.ItemID] = append(f.versions[v.ItemID], v)
	return nil
}

func (f *fakeVersionsRepo) Get(ctx context.Context, userID, itemID string, version int64) (*models.ItemVersion, error) {
	for _, v := range f.versions[itemID] {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeVersionsRepo) Latest(ctx context.Context, userID, itemID string) (*models.ItemVersion, error) {
	vs := f.versions[itemID]
	if len(vs) == 0 {
		return nil, common.ErrorNotFound
	}
	return vs[len(vs)-1], nil
}

func (f *fakeVersionsRepo) FindByChecksum(ctx context.Context, userID, itemID, checksum string) (*models.ItemVersion, error) {
	vs := f.versions[itemID]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Checksum == checksum {
			return vs[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- fake repository manager ---

type fakeRepoManager struct {
	d *fakeDevicesRepo
	c *fakeChangesRepo
	k *fakeConflictsRepo
	v *fakeVersionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (m *fakeRepoManager) Devices(db dbx.DBTX) devicesrepo.Repository     { return m.d }
func (m *fakeRepoManager) Changes(db dbx.DBTX) changesrepo.Repository     { return m.c }
func (m *fakeRepoManager) Conflicts(db dbx.DBTX) conflictsrepo.Repository { return m.k }
func (m *fakeRepoManager) Versions(db dbx.DBTX) versionsrepo.Repository   { return m.v }

// --- fake collaborators ---

type fakeBackend struct {
	objects map[string][]byte

	storeErr    error
	retrieveErr error
	copyErr     error

	deleted []string
	copied  [][2]string
}

func (b *fakeBackend) Store(ctx context.Context, key string, data []byte) error {
	if b.storeErr != nil {
		return b.storeErr
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if b.retrieveErr != nil {
		return nil, b.retrieveErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (b *fakeBackend) Delete(ctx context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	delete(b.objects, key)
	return nil
}

func (b *fakeBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	if b.copyErr != nil {
		return b.copyErr
	}
	data, ok := b.objects[srcKey]
	if !ok {
		return common.ErrorNotFound
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[dstKey] = append([]byte(nil), data...)
	b.copied = append(b.copied, [2]string{srcKey, dstKey})
	return nil
}

func (b *fakeBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := b.objects[key]
	return ok, nil
}

func (b *fakeBackend) GetSize(ctx context.Context, key string) (int64, error) {
	data, ok := b.objects[key]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return int64(len(data)), nil
}

type fakePublisher struct {
	published []events.ChangeRecorded
	err       error
}

func (p *fakePublisher) PublishChange(ctx context.Context, ev events.ChangeRecorded) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

// activeDevice registers a ready-to-sync device in the fake registry.
func activeDevice(userID, deviceID string, lastCursor int64) *fakeDevicesRepo {
	return &fakeDevicesRepo{devices: map[string]*models.Device{
		deviceID: {UserID: userID, DeviceID: deviceID, DeviceType: models.DeviceTypeDesktop, IsActive: true, LastCursor: lastCursor},
	}}
}
