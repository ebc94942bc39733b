// Package handler implements the JSON API on gin.
package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/students"
	"schoolreg/internal/uploads"
	"schoolreg/internal/users"
)

// Authenticator is the auth service as the handlers use it.
type Authenticator interface {
	auth.TokenVerifier
	Authenticate(ctx context.Context, username, password, ip, userAgent string) (auth.Session, error)
	TrackFailedLogin(ctx context.Context, username, ip string) (int, error)
}

// UserStore is the credential store.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (users.User, error)
	List(ctx context.Context) ([]users.User, error)
	Create(ctx context.Context, username, passwordHash, role string) (users.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
}

// StudentStore is the record store.
type StudentStore interface {
	Create(ctx context.Context, s students.Student) (int64, error)
	List(ctx context.Context, f students.Filter) ([]students.Student, error)
	Each(ctx context.Context, f students.Filter, fn func(students.Student) error) error
	Get(ctx context.Context, id int64) (students.Student, error)
	Update(ctx context.Context, id int64, c students.Changes) error
	SoftDelete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (students.Stats, error)
}

// AuditReader serves the admin views of the audit trail.
type AuditReader interface {
	List(ctx context.Context, q audit.Query) ([]audit.Entry, error)
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
	SecurityAlerts(ctx context.Context, since time.Time, minAttempts int) ([]audit.Alert, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options carries the settings handlers need.
type Options struct {
	// UploadDir is served under /uploads when set.
	UploadDir      string
	MaxUploadBytes int64
	SchoolName     string
	CORSOrigins    []string
	Production     bool
}

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	auth     Authenticator
	users    UserStore
	students StudentStore
	audit    AuditReader
	recorder audit.Sink
	files    uploads.Store
	health   map[string]HealthCheck
	opts     Options
	now      func() time.Time
}

// Deps groups the constructor arguments.
type Deps struct {
	Auth     Authenticator
	Users    UserStore
	Students StudentStore
	Audit    AuditReader
	Recorder audit.Sink
	Files    uploads.Store
	Health   map[string]HealthCheck
}

// New builds a Handler.
func New(d Deps, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 2 << 20
	}
	if opts.SchoolName == "" {
		opts.SchoolName = "Future Mirror School"
	}
	return &Handler{
		auth:     d.Auth,
		users:    d.Users,
		students: d.Students,
		audit:    d.Audit,
		recorder: d.Recorder,
		files:    d.Files,
		health:   d.Health,
		opts:     opts,
		now:      time.Now,
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryInt parses an optional integer query parameter, returning def when absent.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
