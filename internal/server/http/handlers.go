package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/syncdrive/internal/blocksync"
	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
	"github.com/dmitrijs2005/syncdrive/internal/server/services"
	"github.com/gin-gonic/gin"
)

// SyncHandler translates the HTTP surface into service calls and service
// errors back into statuses.
type SyncHandler struct {
	devices *services.DeviceService
	sync    *services.SyncService
	delta   *services.DeltaService
	log     logging.Logger
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(devices *services.DeviceService, sync *services.SyncService,
	delta *services.DeltaService, log logging.Logger) *SyncHandler {
	return &SyncHandler{devices: devices, sync: sync, delta: delta, log: log.With("component", "http")}
}

// writeError maps sentinel errors to HTTP statuses. Unrecognized errors are
// logged and returned as 500 without leaking details.
func (h *SyncHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrBlockSizeRange),
		errors.Is(err, common.ErrBlockOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrChecksumMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "checksum_mismatch"})
	case errors.Is(err, common.ErrStorageBackend):
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage backend unavailable"})
	default:
		h.log.Error(c.Request.Context(), "internal error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *SyncHandler) RegisterDevice(c *gin.Context) {
	var device models.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	d, err := h.devices.Register(c.Request.Context(), UserIDFromContext(c), &device)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SyncHandler) ListDevices(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	list, err := h.devices.List(c.Request.Context(), UserIDFromContext(c), activeOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": list})
}

func (h *SyncHandler) DeactivateDevice(c *gin.Context) {
	err := h.devices.Deactivate(c.Request.Context(), UserIDFromContext(c), c.Param("deviceId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SyncHandler) RemoveDevice(c *gin.Context) {
	err := h.devices.Remove(c.Request.Context(), UserIDFromContext(c), c.Param("deviceId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pushRequest struct {
	SinceCursor int64            `json:"sinceCursor"`
	Changes     []*models.Change `json:"changes"`
}

func (h *SyncHandler) Push(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	accepted, conflicts, err := h.sync.Push(c.Request.Context(), UserIDFromContext(c),
		DeviceIDFromContext(c), req.SinceCursor, req.Changes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"acceptedCount": len(accepted),
		"accepted":      accepted,
		"conflicts":     emptyIfNilConflicts(conflicts),
	})
}

func (h *SyncHandler) Pull(c *gin.Context) {
	cursor, err := parseInt64Query(c, "cursor", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	limit, err := parseInt64Query(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	page, err := h.sync.Pull(c.Request.Context(),
		UserIDFromContext(c), DeviceIDFromContext(c), cursor, int(limit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	rows := page.Changes
	if rows == nil {
		rows = []*models.Change{}
	}
	c.JSON(http.StatusOK, gin.H{
		"changes":      rows,
		"nextCursor":   page.NextCursor,
		"latestCursor": page.LatestCursor,
		"hasMore":      page.HasMore,
		"conflicts":    emptyIfNilConflicts(page.Conflicts),
	})
}

func (h *SyncHandler) GetSignature(c *gin.Context) {
	version, err := parseInt64Query(c, "version", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	blockSize, err := parseInt64Query(c, "block_size", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block_size"})
		return
	}

	v, sig, err := h.delta.GetSignature(c.Request.Context(), UserIDFromContext(c),
		c.Param("itemId"), version, int(blockSize))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"itemId":        c.Param("itemId"),
		"versionNumber": v,
		"blockSize":     sig.BlockSize,
		"blocks":        sig.Blocks,
	})
}

type deltaRequest struct {
	BaseVersionNumber int64             `json:"baseVersionNumber"`
	BlockSize         int               `json:"blockSize"`
	Blocks            []blocksync.Block `json:"blocks"`
	FinalChecksum     string            `json:"finalChecksum"`
}

func (h *SyncHandler) DeltaUpload(c *gin.Context) {
	var req deltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	res, err := h.delta.ApplyDelta(c.Request.Context(), UserIDFromContext(c),
		DeviceIDFromContext(c), c.Param("itemId"), req.BaseVersionNumber, req.BlockSize,
		req.Blocks, req.FinalChecksum)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"itemId":            c.Param("itemId"),
		"appliedBlockCount": res.AppliedBlockCount,
		"newVersion":        res.Version.Version,
		"newChecksum":       res.Version.Checksum,
		"change":            res.Change,
	})
}

func (h *SyncHandler) ListConflicts(c *gin.Context) {
	pending, err := h.sync.ListPending(c.Request.Context(), UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": emptyIfNilConflicts(pending)})
}

type resolveRequest struct {
	Resolution models.Resolution `json:"resolution"`
}

func (h *SyncHandler) ResolveConflict(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	conflict, err := h.sync.Resolve(c.Request.Context(), UserIDFromContext(c),
		DeviceIDFromContext(c), c.Param("conflictId"), req.Resolution)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conflict)
}

func parseInt64Query(c *gin.Context, name string, def int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid query parameter")
	}
	return v, nil
}

func emptyIfNilConflicts(in []*models.Conflict) []*models.Conflict {
	if in == nil {
		return []*models.Conflict{}
	}
	return in
}
