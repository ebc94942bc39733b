package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/logging"
	"schoolreg/internal/students"
	"schoolreg/internal/uploads"
)

// uploadsPrefix is where stored files are served from.
const uploadsPrefix = "/uploads"

// RegisterStudent handles POST /api/students/register: multipart fields plus optional
// photo and birthCertificate files. Files are stored before the record is inserted.
func (h *Handler) RegisterStudent(c *gin.Context) {
	// Two files at the limit plus the text fields.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.opts.MaxUploadBytes+(1<<20))

	var reg students.Registration
	if err := c.ShouldBind(&reg); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			apierr.Validation(c, "Request body too large")
			return
		}
		if fields := fieldErrors(err, students.FieldMessages); fields != nil {
			apierr.ValidationFields(c, "Validation failed", fields)
			return
		}
		apierr.Validation(c, "Invalid registration form")
		return
	}

	var accepted []uploads.File
	for _, kind := range []uploads.Kind{uploads.Photo, uploads.BirthCertificate} {
		fh, err := c.FormFile(kind.Field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			apierr.Validation(c, "Invalid "+kind.Field+" upload")
			return
		}
		f, err := uploads.Read(fh, kind, h.opts.MaxUploadBytes)
		if err != nil {
			var rejected *uploads.RejectedError
			if errors.As(err, &rejected) {
				apierr.ValidationFields(c, "Validation failed", map[string]string{rejected.Field: rejected.Message})
				return
			}
			apierr.Internal(c, err, "read upload")
			return
		}
		accepted = append(accepted, f)
	}

	ctx := c.Request.Context()
	refs := map[string]string{}
	var saved []string
	for _, f := range accepted {
		ref, err := h.files.Save(ctx, f)
		if err != nil {
			h.removeFiles(c, saved)
			apierr.Internal(c, err, "store upload")
			return
		}
		refs[f.Kind.Field] = ref
		saved = append(saved, ref)
	}

	rec := reg.Student(refs[uploads.Photo.Field], refs[uploads.BirthCertificate.Field], h.now())
	id, err := h.students.Create(ctx, rec)
	if err != nil {
		h.removeFiles(c, saved)
		apierr.Internal(c, err, "register student")
		return
	}

	audit.AddDetail(c, "studentId", id)
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Student registered successfully",
		"studentId": id,
	})
}

func (h *Handler) removeFiles(c *gin.Context, refs []string) {
	for _, ref := range refs {
		if err := h.files.Remove(c.Request.Context(), ref); err != nil {
			logging.Warn().Err(err).Str("ref", ref).Msg("remove orphaned upload")
		}
	}
}

// ListStudents handles GET /api/students?class=&gender=&search=.
func (h *Handler) ListStudents(c *gin.Context) {
	f := students.Filter{Class: c.Query("class"), Gender: c.Query("gender"), Search: c.Query("search")}
	list, err := h.students.List(c.Request.Context(), f)
	if err != nil {
		apierr.Internal(c, err, "list students")
		return
	}
	for i := range list {
		list[i] = list[i].WithURLs(uploadsPrefix)
	}
	c.JSON(http.StatusOK, list)
}

// GetStudent handles GET /api/students/:id.
func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid student id")
		return
	}
	s, err := h.students.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, students.ErrNotFound) {
			apierr.NotFound(c, "Student not found")
			return
		}
		apierr.Internal(c, err, "get student")
		return
	}
	c.JSON(http.StatusOK, s.WithURLs(uploadsPrefix))
}

// UpdateStudent handles PUT /api/students/:id.
func (h *Handler) UpdateStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid student id")
		return
	}
	var changes students.Changes
	if err := c.ShouldBindJSON(&changes); err != nil {
		if fields := fieldErrors(err, students.FieldMessages); fields != nil {
			apierr.ValidationFields(c, "Validation failed", fields)
			return
		}
		apierr.Validation(c, "Invalid request body")
		return
	}
	if changes.Empty() {
		apierr.Validation(c, "No fields to update")
		return
	}

	ctx := c.Request.Context()
	audit.AddDetail(c, "studentId", id)
	if err := h.students.Update(ctx, id, changes); err != nil {
		if errors.Is(err, students.ErrNotFound) {
			apierr.NotFound(c, "Student not found")
			return
		}
		apierr.Internal(c, err, "update student")
		return
	}
	s, err := h.students.Get(ctx, id)
	if err != nil {
		apierr.Internal(c, err, "reload student")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student updated successfully", "student": s.WithURLs(uploadsPrefix)})
}

// DeleteStudent handles DELETE /api/students/:id. The record is soft-deleted.
func (h *Handler) DeleteStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid student id")
		return
	}
	audit.AddDetail(c, "studentId", id)
	if err := h.students.SoftDelete(c.Request.Context(), id); err != nil {
		if errors.Is(err, students.ErrNotFound) {
			apierr.NotFound(c, "Student not found")
			return
		}
		apierr.Internal(c, err, "delete student")
		return
	}
	if who, ok := auth.IdentityFrom(c); ok {
		logging.Info().Int64("student_id", id).Str("by", who.Username).Msg("student soft-deleted")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}
