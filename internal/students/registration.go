package students

import (
	"regexp"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^(\+234|0)[0-9]{10}$`)

// ValidPhone reports whether s is a Nigerian phone number in local or +234 form.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Registration is the multipart form submitted by a parent.
// Validation tags are evaluated by the gin binding engine.
type Registration struct {
	FirstName               string `form:"firstName" binding:"notblank"`
	MiddleName              string `form:"middleName"`
	LastName                string `form:"lastName" binding:"notblank"`
	Sex                     string `form:"sex" binding:"oneof=Male Female"`
	DateOfBirth             string `form:"dateOfBirth" binding:"required,datetime=2006-01-02"`
	Religion                string `form:"religion" binding:"oneof=Christianity Islam Traditional Others"`
	ReligionOther           string `form:"religionOther"`
	ClassEnrolled           string `form:"classEnrolled" binding:"notblank"`
	ParentName              string `form:"parentName" binding:"notblank"`
	ParentPhone             string `form:"parentPhone" binding:"ngphone"`
	AlternativePhone        string `form:"alternativePhone" binding:"omitempty,ngphone"`
	Email                   string `form:"email" binding:"omitempty,email"`
	HomeAddress             string `form:"homeAddress" binding:"notblank"`
	State                   string `form:"state" binding:"notblank"`
	LGA                     string `form:"lga" binding:"notblank"`
	HasMedicalCondition     string `form:"hasMedicalCondition"`
	MedicalConditionDetails string `form:"medicalConditionDetails"`
	HasDisability           string `form:"hasDisability"`
	DisabilityType          string `form:"disabilityType"`
	DisabilityDetails       string `form:"disabilityDetails"`
	EmergencyInstructions   string `form:"emergencyInstructions"`
	ConsentGiven            string `form:"consentGiven" binding:"eq=true"`
	ParentSignature         string `form:"parentSignature" binding:"notblank"`
	AcademicSession         string `form:"academicSession"`
}

// FieldMessages are the client-facing messages for registration validation failures.
var FieldMessages = map[string]string{
	"firstName":        "First name is required",
	"lastName":         "Last name is required",
	"sex":              "Sex must be Male or Female",
	"dateOfBirth":      "Valid date of birth is required",
	"religion":         "Valid religion is required",
	"classEnrolled":    "Class to be enrolled is required",
	"parentName":       "Parent/Guardian name is required",
	"parentPhone":      "Valid Nigerian phone number is required",
	"alternativePhone": "Alternative phone must be a valid Nigerian phone number",
	"email":            "Email must be a valid address",
	"homeAddress":      "Home address is required",
	"state":            "State is required",
	"lga":              "Local Government Area is required",
	"consentGiven":     "Consent must be given",
	"parentSignature":  "Parent signature is required",
}

// Student converts the form into a record ready for insertion.
func (r Registration) Student(photoRef, certificateRef string, now time.Time) Student {
	s := Student{
		FirstName:               strings.TrimSpace(r.FirstName),
		MiddleName:              optional(r.MiddleName),
		LastName:                strings.TrimSpace(r.LastName),
		Sex:                     r.Sex,
		DateOfBirth:             r.DateOfBirth,
		Religion:                r.Religion,
		ReligionOther:           optional(r.ReligionOther),
		ClassEnrolled:           strings.TrimSpace(r.ClassEnrolled),
		PhotoPath:               optional(photoRef),
		BirthCertificatePath:    optional(certificateRef),
		ParentName:              strings.TrimSpace(r.ParentName),
		ParentPhone:             r.ParentPhone,
		AlternativePhone:        optional(r.AlternativePhone),
		Email:                   optional(r.Email),
		HomeAddress:             strings.TrimSpace(r.HomeAddress),
		State:                   strings.TrimSpace(r.State),
		LGA:                     strings.TrimSpace(r.LGA),
		HasMedicalCondition:     r.HasMedicalCondition == "true",
		MedicalConditionDetails: optional(r.MedicalConditionDetails),
		HasDisability:           r.HasDisability == "true",
		DisabilityType:          optional(r.DisabilityType),
		DisabilityDetails:       optional(r.DisabilityDetails),
		EmergencyInstructions:   optional(r.EmergencyInstructions),
		ConsentGiven:            r.ConsentGiven == "true",
		ParentSignature:         strings.TrimSpace(r.ParentSignature),
		AcademicSession:         strings.TrimSpace(r.AcademicSession),
	}
	if s.AcademicSession == "" {
		s.AcademicSession = DefaultSession(now)
	}
	return s
}

// Changes carries the editable fields of an existing record. Nil fields are left untouched.
type Changes struct {
	FirstName               *string `json:"firstName" binding:"omitempty,notblank"`
	MiddleName              *string `json:"middleName"`
	LastName                *string `json:"lastName" binding:"omitempty,notblank"`
	Sex                     *string `json:"sex" binding:"omitempty,oneof=Male Female"`
	DateOfBirth             *string `json:"dateOfBirth" binding:"omitempty,datetime=2006-01-02"`
	Religion                *string `json:"religion" binding:"omitempty,oneof=Christianity Islam Traditional Others"`
	ReligionOther           *string `json:"religionOther"`
	ClassEnrolled           *string `json:"classEnrolled" binding:"omitempty,notblank"`
	ParentName              *string `json:"parentName" binding:"omitempty,notblank"`
	ParentPhone             *string `json:"parentPhone" binding:"omitempty,ngphone"`
	AlternativePhone        *string `json:"alternativePhone" binding:"omitempty,ngphone"`
	Email                   *string `json:"email" binding:"omitempty,email"`
	HomeAddress             *string `json:"homeAddress" binding:"omitempty,notblank"`
	State                   *string `json:"state" binding:"omitempty,notblank"`
	LGA                     *string `json:"lga" binding:"omitempty,notblank"`
	HasMedicalCondition     *bool   `json:"hasMedicalCondition"`
	MedicalConditionDetails *string `json:"medicalConditionDetails"`
	HasDisability           *bool   `json:"hasDisability"`
	DisabilityType          *string `json:"disabilityType"`
	DisabilityDetails       *string `json:"disabilityDetails"`
	EmergencyInstructions   *string `json:"emergencyInstructions"`
	AcademicSession         *string `json:"academicSession" binding:"omitempty,notblank"`
}

type column struct {
	name  string
	value any
}

// columns lists the set fields in a fixed order.
func (c Changes) columns() []column {
	var cols []column
	add := func(name string, set bool, v any) {
		if set {
			cols = append(cols, column{name, v})
		}
	}
	add("first_name", c.FirstName != nil, trimmed(c.FirstName))
	add("middle_name", c.MiddleName != nil, optionalPtr(c.MiddleName))
	add("last_name", c.LastName != nil, trimmed(c.LastName))
	add("sex", c.Sex != nil, c.Sex)
	add("date_of_birth", c.DateOfBirth != nil, c.DateOfBirth)
	add("religion", c.Religion != nil, c.Religion)
	add("religion_other", c.ReligionOther != nil, optionalPtr(c.ReligionOther))
	add("class_enrolled", c.ClassEnrolled != nil, trimmed(c.ClassEnrolled))
	add("parent_name", c.ParentName != nil, trimmed(c.ParentName))
	add("parent_phone", c.ParentPhone != nil, c.ParentPhone)
	add("alternative_phone", c.AlternativePhone != nil, optionalPtr(c.AlternativePhone))
	add("email", c.Email != nil, optionalPtr(c.Email))
	add("home_address", c.HomeAddress != nil, trimmed(c.HomeAddress))
	add("state", c.State != nil, trimmed(c.State))
	add("lga", c.LGA != nil, trimmed(c.LGA))
	add("has_medical_condition", c.HasMedicalCondition != nil, c.HasMedicalCondition)
	add("medical_condition_details", c.MedicalConditionDetails != nil, optionalPtr(c.MedicalConditionDetails))
	add("has_disability", c.HasDisability != nil, c.HasDisability)
	add("disability_type", c.DisabilityType != nil, optionalPtr(c.DisabilityType))
	add("disability_details", c.DisabilityDetails != nil, optionalPtr(c.DisabilityDetails))
	add("emergency_instructions", c.EmergencyInstructions != nil, optionalPtr(c.EmergencyInstructions))
	add("academic_session", c.AcademicSession != nil, trimmed(c.AcademicSession))
	return cols
}

// Empty reports whether no field is set.
func (c Changes) Empty() bool {
	return len(c.columns()) == 0
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
