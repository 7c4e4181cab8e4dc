package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetops/telemetry-trainer/internal/cache"
	"github.com/fleetops/telemetry-trainer/internal/partition"
	"github.com/fleetops/telemetry-trainer/internal/pipeline"
	"github.com/fleetops/telemetry-trainer/internal/storage"
)

// TriggerFunc executes a training run for one partition date.
type TriggerFunc func(ctx context.Context, date time.Time) (*pipeline.TrainingRun, error)

// Handler serves the admin API: run history, manual triggers, and
// partition inspection.
type Handler struct {
	repo    pipeline.Repository
	cache   cache.PartitionCache
	store   storage.ObjectStorage
	trigger TriggerFunc
	truckID string
}

// NewHandler creates a new Handler.
func NewHandler(repo pipeline.Repository, pc cache.PartitionCache, store storage.ObjectStorage, trigger TriggerFunc, truckID string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   pc,
		store:   store,
		trigger: trigger,
		truckID: truckID,
	}
}

type runResponse struct {
	ID           int64      `json:"id"`
	TruckID      string     `json:"truck_id"`
	DS           string     `json:"ds"`
	Status       string     `json:"status"`
	KeyCount     int        `json:"key_count"`
	Attempts     int        `json:"attempts"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type partitionResponse struct {
	Prefix     string   `json:"prefix"`
	Count      int      `json:"count"`
	Keys       []string `json:"keys"`
	TotalBytes int64    `json:"total_bytes,omitempty"`
	Cached     bool     `json:"cached"`
}

func toRunResponse(run *pipeline.TrainingRun) runResponse {
	return runResponse{
		ID:           run.ID,
		TruckID:      run.TruckID,
		DS:           partition.DS(run.Date),
		Status:       string(run.Status),
		KeyCount:     run.KeyCount,
		Attempts:     run.Attempts,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		ErrorMessage: run.ErrorMessage,
	}
}

// ListRuns returns recent training runs, newest first.
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	runs, err := h.repo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out, "total": len(out)})
}

// GetRun returns the run for one partition date.
func (h *Handler) GetRun(c *gin.Context) {
	date, ok := h.parseDS(c)
	if !ok {
		return
	}

	run, err := h.repo.GetRunByDate(c.Request.Context(), h.truckID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run for " + c.Param("ds")})
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

// TriggerRun executes a training run for the given date immediately.
func (h *Handler) TriggerRun(c *gin.Context) {
	date, ok := h.parseDS(c)
	if !ok {
		return
	}

	run, err := h.trigger(c.Request.Context(), date)
	if err != nil {
		status := http.StatusInternalServerError
		resp := gin.H{"error": err.Error()}
		if run != nil {
			resp["run"] = toRunResponse(run)
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

// GetPartition returns the key listing for one partition date, served from
// the cache when a fresh entry exists.
func (h *Handler) GetPartition(c *gin.Context) {
	date, ok := h.parseDS(c)
	if !ok {
		return
	}
	prefix := partition.Prefix(h.truckID, date)

	if listing, hit, err := h.cache.GetListing(c.Request.Context(), prefix); err == nil && hit {
		c.JSON(http.StatusOK, partitionResponse{
			Prefix: listing.Prefix,
			Count:  listing.Count,
			Keys:   listing.Keys,
			Cached: true,
		})
		return
	}

	objects, err := h.store.ListObjects(c.Request.Context(), prefix)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	keys := make([]string, 0, len(objects))
	var totalBytes int64
	for _, obj := range objects {
		keys = append(keys, obj.Key)
		totalBytes += obj.Size
	}

	c.JSON(http.StatusOK, partitionResponse{
		Prefix:     prefix,
		Count:      len(keys),
		Keys:       keys,
		TotalBytes: totalBytes,
	})
}

// InvalidateCache drops every cached partition listing so the next reads
// go to storage.
func (h *Handler) InvalidateCache(c *gin.Context) {
	if err := h.cache.InvalidateAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

func (h *Handler) parseDS(c *gin.Context) (time.Time, bool) {
	date, err := partition.ParseDS(c.Param("ds"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}
