package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"

	"schoolreg/internal/logging"
	"schoolreg/internal/students"
)

// PDFContentType is the MIME type of a profile.
const PDFContentType = "application/pdf"

// FileOpener reads a stored upload by reference.
type FileOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// ProfileOptions configures the PDF profile.
type ProfileOptions struct {
	SchoolName string
	// Files provides the photo. A nil opener or an unreadable photo renders the profile without it.
	Files FileOpener
	// MaxPhotoBytes bounds how much of the photo is read.
	MaxPhotoBytes int64
}

// ProfileFilename is the download name of a student's profile.
func ProfileFilename(id int64) string {
	return fmt.Sprintf("student-%d.pdf", id)
}

// WriteProfile renders one student's full profile: header, photo when available, then the
// student, parent and health sections and a submission footer.
func WriteProfile(ctx context.Context, w io.Writer, s students.Student, opts ProfileOptions) error {
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = 2 << 20
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	pdf.SetTitle(ProfileFilename(s.ID), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(opts.SchoolName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 9, "Student Registration Profile", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	top := pdf.GetY()
	photoPlaced := embedPhoto(ctx, pdf, s, opts, top)

	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "BU", 14)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	line := func(label, value string) {
		width := 0.0
		if photoPlaced && pdf.GetY() < top+40 {
			width = 130
		}
		pdf.MultiCell(width, 6, tr(label+": "+value), "", "L", false)
	}
	optionalLine := func(label string, value *string) {
		if v := students.Deref(value); v != "" {
			line(label, v)
		}
	}

	section("Student Information")
	line("Full Name", s.FullName())
	line("Sex", s.Sex)
	line("Date of Birth", s.DateOfBirth)
	religion := s.Religion
	if other := students.Deref(s.ReligionOther); other != "" {
		religion += " - " + other
	}
	line("Religion", religion)
	line("Class", s.ClassEnrolled)
	line("Academic Session", s.AcademicSession)

	section("Parent/Guardian Information")
	line("Name", s.ParentName)
	line("Phone", s.ParentPhone)
	optionalLine("Alternative Phone", s.AlternativePhone)
	optionalLine("Email", s.Email)
	line("Address", s.HomeAddress)
	line("State", s.State)
	line("LGA", s.LGA)

	section("Health Information")
	line("Medical Condition", yesNo(s.HasMedicalCondition))
	optionalLine("Details", s.MedicalConditionDetails)
	line("Disability", yesNo(s.HasDisability))
	optionalLine("Type", s.DisabilityType)
	optionalLine("Details", s.DisabilityDetails)
	optionalLine("Emergency Instructions", s.EmergencyInstructions)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Submitted: "+s.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, tr("Parent Signature: "+s.ParentSignature), "", 1, "C", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render profile: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// embedPhoto places the photo in the top right corner and reports whether it did.
func embedPhoto(ctx context.Context, pdf *fpdf.Fpdf, s students.Student, opts ProfileOptions, top float64) bool {
	ref := students.Deref(s.PhotoPath)
	if ref == "" || opts.Files == nil {
		return false
	}
	log := logging.With().Int64("student_id", s.ID).Logger()

	rc, err := opts.Files.Open(ctx, ref)
	if err != nil {
		log.Warn().Err(err).Msg("profile photo unavailable")
		return false
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, opts.MaxPhotoBytes))
	if err != nil {
		log.Warn().Err(err).Msg("read profile photo")
		return false
	}

	var imageType string
	switch mimetype.Detect(data).String() {
	case "image/png":
		imageType = "PNG"
	case "image/jpeg":
		imageType = "JPG"
	default:
		return false
	}

	name := "photo-" + strings.ReplaceAll(ref, "/", "_")
	info := pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if !pdf.Ok() || info == nil {
		log.Warn().Err(pdf.Error()).Msg("decode profile photo")
		pdf.ClearError()
		return false
	}
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions(name, pageW-right-35, top, 35, 35, false, fpdf.ImageOptions{ImageType: imageType}, 0, "")
	return true
}
