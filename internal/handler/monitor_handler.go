package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // a slow query must not hold the stream open silently
)

// Reports is the part of service.ReportService the handlers need.
type Reports interface {
	ListSubmissions(ctx context.Context, testID string, page, perPage int) ([]model.Submission, *response.Pagination, error)
	ViolationTallies(ctx context.Context, testID string) ([]model.ViolationTally, error)
	Snapshot(ctx context.Context, testID string) (*service.Snapshot, error)
	ExportSubmissions(ctx context.Context, testID string) ([]byte, error)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MonitorHandler serves persisted results and the live proctoring stream.
type MonitorHandler struct {
	rdb     *redis.Client
	catalog TestCatalog
	reports Reports
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, catalog TestCatalog, reports Reports, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		catalog: catalog,
		reports: reports,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListSubmissions godoc
// GET /api/v1/admin/tests/:test_id/submissions?page=1&per_page=20
func (h *MonitorHandler) ListSubmissions(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	subs, pagination, err := h.reports.ListSubmissions(c.Request.Context(), testID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": subs}, pagination)
}

// ListViolations godoc
// GET /api/v1/admin/tests/:test_id/violations
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	tallies, err := h.reports.ViolationTallies(c.Request.Context(), testID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": tallies})
}

// ExportSubmissions godoc
// GET /api/v1/admin/tests/:test_id/submissions/export
func (h *MonitorHandler) ExportSubmissions(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	data, err := h.reports.ExportSubmissions(c.Request.Context(), testID)
	if err != nil {
		h.log.Error().Err(err).Str("test_id", testID).Msg("Failed to export submissions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-submissions.xlsx"`, testID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// MonitorTestSSE godoc
// GET /api/v1/admin/tests/:test_id/monitor
// Streams a snapshot followed by every join, violation, submission and exit.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	summary, err := h.catalog.Summary(reqCtx, testID)
	if err != nil {
		if errors.Is(err, session.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.TestMonitorChannel(testID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, summary)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	log := h.log.With().Str("test_id", testID).Logger()
	log.Info().Msg("Admin attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Admin detached from live monitor")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Events are already JSON; forward them untouched.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, summary *model.TestSummary) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	data := gin.H{"test": summary}
	if snap, err := h.reports.Snapshot(ctx, summary.ID); err != nil {
		h.log.Warn().Err(err).Str("test_id", summary.ID).Msg("Failed to build monitor snapshot")
	} else {
		data["stats"] = snap
	}

	c.SSEvent("message", gin.H{"type": "snapshot", "data": data})
	c.Writer.Flush()
}
