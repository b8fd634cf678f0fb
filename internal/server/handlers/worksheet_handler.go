package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/foodcost/internal/csvio"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/internal/service/worksheet"
)

const maxImportBytes = 5 << 20

// DigestBuilder renders the daily digest across restaurants.
type DigestBuilder interface {
	DailyDigest(ctx context.Context, date string) (string, error)
}

// WorksheetHandler exposes the worksheet service over HTTP.
type WorksheetHandler struct {
	svc     *worksheet.Service
	reports DigestBuilder
	logger  *zap.Logger
}

// NewWorksheetHandler constructs the HTTP handler adapter.
func NewWorksheetHandler(svc *worksheet.Service, reports DigestBuilder, logger *zap.Logger) *WorksheetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorksheetHandler{svc: svc, reports: reports, logger: logger}
}

type restaurantRequest struct {
	Name string `json:"name"`
}

// ListRestaurants returns the active restaurants.
func (h *WorksheetHandler) ListRestaurants(c *gin.Context) {
	restaurants, err := h.svc.ListActiveRestaurants(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restaurants": restaurants})
}

// CreateRestaurant registers a restaurant.
func (h *WorksheetHandler) CreateRestaurant(c *gin.Context) {
	var req restaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid restaurant payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	restaurant, err := h.svc.CreateRestaurant(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, restaurant)
}

// RenameRestaurant updates a restaurant name.
func (h *WorksheetHandler) RenameRestaurant(c *gin.Context) {
	var req restaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid restaurant payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	restaurant, err := h.svc.RenameRestaurant(c.Request.Context(), c.Param("rid"), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

// ArchiveRestaurant deactivates a restaurant.
func (h *WorksheetHandler) ArchiveRestaurant(c *gin.Context) {
	restaurant, err := h.svc.ArchiveRestaurant(c.Request.Context(), c.Param("rid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

// ListRecentDays returns the most recently edited days.
func (h *WorksheetHandler) ListRecentDays(c *gin.Context) {
	days, err := h.svc.ListRecentDays(c.Request.Context(), c.Param("rid"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if days == nil {
		days = []models.DayOverview{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GetDay returns a day snapshot.
func (h *WorksheetHandler) GetDay(c *gin.Context) {
	day, err := h.svc.GetDay(c.Request.Context(), c.Param("rid"), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// StreamDay pushes a "snapshot" server-sent event on connect and after every
// change to the day.
func (h *WorksheetHandler) StreamDay(c *gin.Context) {
	ctx := c.Request.Context()
	updates := make(chan models.DaySnapshot, 1)

	stop, err := h.svc.SubscribeDay(ctx, c.Param("rid"), c.Param("date"), func(snapshot models.DaySnapshot) {
		// Only the latest snapshot matters to a slow client.
		select {
		case <-updates:
		default:
		}
		updates <- snapshot
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snapshot := <-updates:
			c.SSEvent("snapshot", snapshot)
			return true
		}
	})
}

// UpdateSettings replaces the day settings.
func (h *WorksheetHandler) UpdateSettings(c *gin.Context) {
	var settings models.DaySettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.logger.Warn("invalid settings payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	day, err := h.svc.UpdateSettings(c.Request.Context(), c.Param("rid"), c.Param("date"), settings)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// UpsertItem creates or replaces a line item.
func (h *WorksheetHandler) UpsertItem(c *gin.Context) {
	var draft worksheet.ItemDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.logger.Warn("invalid item payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := h.svc.UpsertItem(c.Request.Context(), c.Param("rid"), c.Param("date"), draft)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DeleteItem removes a line item.
func (h *WorksheetHandler) DeleteItem(c *gin.Context) {
	if err := h.svc.DeleteItem(c.Request.Context(), c.Param("rid"), c.Param("date"), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearDay removes every line item of the day.
func (h *WorksheetHandler) ClearDay(c *gin.Context) {
	if err := h.svc.ClearDay(c.Request.Context(), c.Param("rid"), c.Param("date")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Import reads CSV rows from the request body or a multipart "file" field.
func (h *WorksheetHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	body := io.Reader(c.Request.Body)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
			return
		}
		file, err := header.Open()
		if err != nil {
			h.writeError(c, fmt.Errorf("open upload: %w", err))
			return
		}
		defer file.Close()
		body = file
	}

	n, err := h.svc.ImportCSV(c.Request.Context(), c.Param("rid"), c.Param("date"), body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// Export downloads the day as CSV.
func (h *WorksheetHandler) Export(c *gin.Context) {
	rid, date := c.Param("rid"), c.Param("date")
	var buf strings.Builder
	if err := h.svc.ExportCSV(c.Request.Context(), rid, date, &buf); err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="foodcost-%s-%s.csv"`, rid, date))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(buf.String()))
}

// Recompute rebuilds the stored summary of a day.
func (h *WorksheetHandler) Recompute(c *gin.Context) {
	summary, err := h.svc.Recompute(c.Request.Context(), c.Param("rid"), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// DailyReport renders the plain-text digest for ?date=.
func (h *WorksheetHandler) DailyReport(c *gin.Context) {
	date := c.Query("date")
	if err := worksheet.ValidateDate(date); err != nil {
		h.writeError(c, err)
		return
	}

	digest, err := h.reports.DailyDigest(c.Request.Context(), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.String(http.StatusOK, digest)
}

func (h *WorksheetHandler) writeError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, worksheet.ErrInvalidDate),
		errors.Is(err, worksheet.ErrEmptyName),
		errors.Is(err, csvio.ErrEmptyInput),
		errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "import too large"})
	case errors.Is(err, worksheet.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
