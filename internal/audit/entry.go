// Package audit is the append-only trail of security-relevant actions and failed logins.
//
// Entries are recorded after the response is written and persisted asynchronously:
//
//	Middleware -> Recorder (buffered) -> queue.Queue -> Drain -> Repository
//
// A failure anywhere along that path is logged and counted, never returned to the client.
package audit

import (
	"time"

	"github.com/goccy/go-json"
)

// Actions recorded by the API.
const (
	ActionLoginAttempt       = "LOGIN_ATTEMPT"
	ActionLoginSuccess       = "LOGIN_SUCCESS"
	ActionViewStats          = "VIEW_STATS"
	ActionExportExcel        = "EXPORT_EXCEL"
	ActionExportPDF          = "EXPORT_PDF"
	ActionViewAuditLogs      = "VIEW_AUDIT_LOGS"
	ActionViewSecurityAlerts = "VIEW_SECURITY_ALERTS"
	ActionViewRecentActivity = "VIEW_RECENT_ACTIVITY"
	ActionViewUsers          = "VIEW_USERS"
	ActionCreateUser         = "CREATE_USER"
	ActionChangePassword     = "CHANGE_PASSWORD"
	ActionChangeOwnPassword  = "CHANGE_OWN_PASSWORD"
	ActionDeleteUser         = "DELETE_USER"
	ActionRegisterStudent    = "REGISTER_STUDENT"
	ActionViewStudents       = "VIEW_STUDENTS"
	ActionViewStudent        = "VIEW_STUDENT"
	ActionUpdateStudent      = "UPDATE_STUDENT"
	ActionDeleteStudent      = "DELETE_STUDENT"
)

// Anonymous is the username stored when a request carries no identity.
const Anonymous = "anonymous"

// Entry is one immutable audit fact.
type Entry struct {
	ID         int64           `json:"id,omitempty"`
	Action     string          `json:"action"`
	UserID     *int64          `json:"user_id"`
	Username   string          `json:"username"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	Method     string          `json:"method"`
	Path       string          `json:"path"`
	StatusCode int             `json:"status_code"`
	Details    json.RawMessage `json:"details,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Query selects a page of entries. Zero values mean no filter.
type Query struct {
	Limit  int
	Offset int
	Action string
	UserID int64
}

// DefaultLimit is the page size when Query.Limit is not positive.
const DefaultLimit = 100

// MaxLimit caps the page size.
const MaxLimit = 1000

// Normalize applies the default and maximum page size.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Alert aggregates recent failed logins for one username and address.
type Alert struct {
	Username    string    `json:"username"`
	IPAddress   string    `json:"ip_address"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}
