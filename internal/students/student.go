// Package students is the record store for registrations.
package students

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// Student is a stored registration. Optional columns are nil when not supplied.
type Student struct {
	ID                      int64      `json:"id"`
	FirstName               string     `json:"first_name"`
	MiddleName              *string    `json:"middle_name"`
	LastName                string     `json:"last_name"`
	Sex                     string     `json:"sex"`
	DateOfBirth             string     `json:"date_of_birth"`
	Religion                string     `json:"religion"`
	ReligionOther           *string    `json:"religion_other"`
	ClassEnrolled           string     `json:"class_enrolled"`
	PhotoPath               *string    `json:"photo_path"`
	BirthCertificatePath    *string    `json:"birth_certificate_path"`
	ParentName              string     `json:"parent_name"`
	ParentPhone             string     `json:"parent_phone"`
	AlternativePhone        *string    `json:"alternative_phone"`
	Email                   *string    `json:"email"`
	HomeAddress             string     `json:"home_address"`
	State                   string     `json:"state"`
	LGA                     string     `json:"lga"`
	HasMedicalCondition     bool       `json:"has_medical_condition"`
	MedicalConditionDetails *string    `json:"medical_condition_details"`
	HasDisability           bool       `json:"has_disability"`
	DisabilityType          *string    `json:"disability_type"`
	DisabilityDetails       *string    `json:"disability_details"`
	EmergencyInstructions   *string    `json:"emergency_instructions"`
	ConsentGiven            bool       `json:"consent_given"`
	ParentSignature         string     `json:"parent_signature"`
	AcademicSession         string     `json:"academic_session"`
	CreatedBy               *int64     `json:"created_by"`
	SubmittedAt             time.Time  `json:"submitted_at"`
	UpdatedAt               *time.Time `json:"updated_at"`

	PhotoURL            *string `json:"photoUrl"`
	BirthCertificateURL *string `json:"birthCertificateUrl"`
}

// FullName joins first, middle and last name.
func (s Student) FullName() string {
	parts := []string{s.FirstName}
	if v := Deref(s.MiddleName); v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, s.LastName)
	return strings.Join(parts, " ")
}

// WithURLs fills the public URLs of the uploaded files, served under prefix.
func (s Student) WithURLs(prefix string) Student {
	s.PhotoURL = fileURL(prefix, s.PhotoPath)
	s.BirthCertificateURL = fileURL(prefix, s.BirthCertificatePath)
	return s
}

func fileURL(prefix string, ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}
	if strings.HasPrefix(*ref, "http://") || strings.HasPrefix(*ref, "https://") {
		return ref
	}
	u := strings.TrimSuffix(prefix, "/") + "/" + path.Base(*ref)
	return &u
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Filter narrows listings and exports.
type Filter struct {
	Class  string
	Gender string
	Search string
}

// Stats summarises non-deleted records.
type Stats struct {
	Total    int          `json:"total"`
	ByClass  []ClassCount `json:"byClass"`
	ByGender []SexCount   `json:"byGender"`
}

type ClassCount struct {
	ClassEnrolled string `json:"class_enrolled"`
	Count         int    `json:"count"`
}

type SexCount struct {
	Sex   string `json:"sex"`
	Count int    `json:"count"`
}

// DefaultSession returns the academic session starting in the year of now, e.g. "2026/2027".
func DefaultSession(now time.Time) string {
	y := now.Year()
	return strconv.Itoa(y) + "/" + strconv.Itoa(y+1)
}
