package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when an id does not resolve to a non-deleted record.
var ErrNotFound = errors.New("student not found")

const selectColumns = `id, first_name, middle_name, last_name, sex, date_of_birth::text, religion, religion_other,
	class_enrolled, photo_path, birth_certificate_path, parent_name, parent_phone, alternative_phone, email,
	home_address, state, lga, has_medical_condition, medical_condition_details, has_disability,
	disability_type, disability_details, emergency_instructions, consent_given, parent_signature,
	academic_session, created_by, submitted_at, updated_at`

// Repository persists student records in Postgres.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new record and returns its id. Ids come from the BIGSERIAL sequence,
// so concurrent registrations never share one.
func (r *Repository) Create(ctx context.Context, s Student) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (
			first_name, middle_name, last_name, sex, date_of_birth, religion, religion_other,
			class_enrolled, photo_path, birth_certificate_path, parent_name, parent_phone,
			alternative_phone, email, home_address, state, lga, has_medical_condition,
			medical_condition_details, has_disability, disability_type, disability_details,
			emergency_instructions, consent_given, parent_signature, academic_session, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
		RETURNING id
	`, s.FirstName, s.MiddleName, s.LastName, s.Sex, s.DateOfBirth, s.Religion, s.ReligionOther,
		s.ClassEnrolled, s.PhotoPath, s.BirthCertificatePath, s.ParentName, s.ParentPhone,
		s.AlternativePhone, s.Email, s.HomeAddress, s.State, s.LGA, s.HasMedicalCondition,
		s.MedicalConditionDetails, s.HasDisability, s.DisabilityType, s.DisabilityDetails,
		s.EmergencyInstructions, s.ConsentGiven, s.ParentSignature, s.AcademicSession, s.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}
	return id, nil
}

// List returns non-deleted records matching f, newest submission first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Student, error) {
	res := []Student{}
	err := r.Each(ctx, f, func(s Student) error {
		res = append(res, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Each streams the records List would return to fn, one row at a time.
// Iteration stops at the first error fn returns.
func (r *Repository) Each(ctx context.Context, f Filter, fn func(Student) error) error {
	clauses := []string{"is_deleted = FALSE"}
	args := []any{}
	if f.Class != "" {
		clauses = append(clauses, "class_enrolled = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.Class)
	}
	if f.Gender != "" {
		clauses = append(clauses, "sex = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.Gender)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		p := "$" + strconv.Itoa(len(args)+1)
		clauses = append(clauses, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR parent_name ILIKE "+p+")")
		args = append(args, "%"+escapeLike(term)+"%")
	}
	query := "SELECT " + selectColumns + " FROM students WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY submitted_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return fmt.Errorf("scan student: %w", err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Get returns a non-deleted record by id or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM students WHERE id = $1 AND is_deleted = FALSE", id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

// Update applies c to a non-deleted record and stamps updated_at.
func (r *Repository) Update(ctx context.Context, id int64, c Changes) error {
	cols := c.columns()
	args := []any{id}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		args = append(args, col.value)
		sets = append(sets, col.name+" = $"+strconv.Itoa(len(args)))
	}
	args = append(args, r.now().UTC())
	sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))

	res, err := r.db.ExecContext(ctx,
		"UPDATE students SET "+strings.Join(sets, ", ")+" WHERE id = $1 AND is_deleted = FALSE", args...)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return expectOne(res)
}

// SoftDelete flags a record as deleted. The row is kept for audit.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE
	`, id, r.now().UTC())
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectOne(res)
}

// Stats counts non-deleted records in total, per class and per sex.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByClass: []ClassCount{}, ByGender: []SexCount{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE is_deleted = FALSE`).Scan(&st.Total); err != nil {
		return Stats{}, fmt.Errorf("count students: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT class_enrolled, COUNT(*) FROM students WHERE is_deleted = FALSE
		GROUP BY class_enrolled ORDER BY class_enrolled
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("count by class: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc ClassCount
		if err := rows.Scan(&cc.ClassEnrolled, &cc.Count); err != nil {
			return Stats{}, err
		}
		st.ByClass = append(st.ByClass, cc)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	sexRows, err := r.db.QueryContext(ctx, `
		SELECT sex, COUNT(*) FROM students WHERE is_deleted = FALSE GROUP BY sex ORDER BY sex
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("count by sex: %w", err)
	}
	defer sexRows.Close()
	for sexRows.Next() {
		var sc SexCount
		if err := sexRows.Scan(&sc.Sex, &sc.Count); err != nil {
			return Stats{}, err
		}
		st.ByGender = append(st.ByGender, sc)
	}
	return st, sexRows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.FirstName, &s.MiddleName, &s.LastName, &s.Sex, &s.DateOfBirth, &s.Religion, &s.ReligionOther,
		&s.ClassEnrolled, &s.PhotoPath, &s.BirthCertificatePath, &s.ParentName, &s.ParentPhone, &s.AlternativePhone, &s.Email,
		&s.HomeAddress, &s.State, &s.LGA, &s.HasMedicalCondition, &s.MedicalConditionDetails, &s.HasDisability,
		&s.DisabilityType, &s.DisabilityDetails, &s.EmergencyInstructions, &s.ConsentGiven, &s.ParentSignature,
		&s.AcademicSession, &s.CreatedBy, &s.SubmittedAt, &s.UpdatedAt)
	return s, err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
