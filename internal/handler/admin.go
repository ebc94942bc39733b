package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
	"schoolreg/internal/logging"
	"schoolreg/internal/report"
	"schoolreg/internal/students"
)

const (
	alertMinAttempts = 3
	maxAlertHours    = 24 * 30
)

// Stats handles GET /api/admin/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.students.Stats(c.Request.Context())
	if err != nil {
		apierr.Internal(c, err, "student stats")
		return
	}
	c.JSON(http.StatusOK, st)
}

// ExportExcel handles GET /api/admin/export/excel?class=&gender=.
func (h *Handler) ExportExcel(c *gin.Context) {
	f := students.Filter{Class: c.Query("class"), Gender: c.Query("gender")}
	audit.AddDetail(c, "class", f.Class)
	audit.AddDetail(c, "gender", f.Gender)
	download(c, report.SpreadsheetContentType, "students.xlsx", func(w io.Writer) error {
		return report.WriteSpreadsheet(c.Request.Context(), w, h.students, f)
	})
}

// ExportPDF handles GET /api/admin/export/pdf/:id.
func (h *Handler) ExportPDF(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid student id")
		return
	}
	audit.AddDetail(c, "studentId", id)
	ctx := c.Request.Context()
	s, err := h.students.Get(ctx, id)
	if err != nil {
		if errors.Is(err, students.ErrNotFound) {
			apierr.NotFound(c, "Student not found")
			return
		}
		apierr.Internal(c, err, "get student")
		return
	}
	download(c, report.PDFContentType, report.ProfileFilename(id), func(w io.Writer) error {
		return report.WriteProfile(ctx, w, s, report.ProfileOptions{
			SchoolName:    h.opts.SchoolName,
			Files:         h.files,
			MaxPhotoBytes: h.opts.MaxUploadBytes,
		})
	})
}

// download streams render's output as an attachment. If render fails before writing
// anything, the client gets a JSON 500 instead.
func download(c *gin.Context, contentType, filename string, render func(io.Writer) error) {
	hdr := c.Writer.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)

	if err := render(c.Writer); err != nil {
		if !c.Writer.Written() {
			hdr.Del("Content-Type")
			hdr.Del("Content-Disposition")
			apierr.Internal(c, err, "render "+filename)
			return
		}
		_ = c.Error(err)
		logging.Error().Err(err).Str("file", filename).Msg("download interrupted")
	}
}

// AuditLogs handles GET /api/admin/audit-logs?limit=&offset=&action=&userId=.
func (h *Handler) AuditLogs(c *gin.Context) {
	limit, ok1 := queryInt(c, "limit", audit.DefaultLimit)
	offset, ok2 := queryInt(c, "offset", 0)
	userID, ok3 := queryInt(c, "userId", 0)
	if !ok1 || !ok2 || !ok3 || limit < 0 || offset < 0 {
		apierr.Validation(c, "limit, offset and userId must be non-negative integers")
		return
	}
	entries, err := h.audit.List(c.Request.Context(), audit.Query{
		Limit:  limit,
		Offset: offset,
		Action: c.Query("action"),
		UserID: int64(userID),
	})
	if err != nil {
		apierr.Internal(c, err, "list audit logs")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// SecurityAlerts handles GET /api/admin/security-alerts?hours=24.
func (h *Handler) SecurityAlerts(c *gin.Context) {
	hours, ok := queryInt(c, "hours", 24)
	if !ok || hours <= 0 || hours > maxAlertHours {
		apierr.Validation(c, "hours must be between 1 and 720")
		return
	}
	since := h.now().UTC().Add(-time.Duration(hours) * time.Hour)
	alerts, err := h.audit.SecurityAlerts(c.Request.Context(), since, alertMinAttempts)
	if err != nil {
		apierr.Internal(c, err, "security alerts")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// RecentActivity handles GET /api/admin/recent-activity?limit=50.
func (h *Handler) RecentActivity(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit <= 0 {
		apierr.Validation(c, "limit must be a positive integer")
		return
	}
	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		apierr.Internal(c, err, "recent activity")
		return
	}
	c.JSON(http.StatusOK, entries)
}
