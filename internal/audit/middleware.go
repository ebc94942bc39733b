package audit

import (
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"schoolreg/internal/logging"
)

const (
	actorKey   = "audit.actor"
	detailsKey = "audit.details"
)

// Actor is the identity an entry is attributed to.
type Actor struct {
	ID       int64
	Username string
}

// SetActor attributes the current request to a. Authentication middleware calls it
// for bearer tokens; the login handler calls it with the attempted username.
func SetActor(c *gin.Context, a Actor) {
	c.Set(actorKey, a)
}

// AddDetail attaches a key to the details payload of the current request's entry.
func AddDetail(c *gin.Context, key string, value any) {
	d, _ := c.Get(detailsKey)
	details, ok := d.(map[string]any)
	if !ok {
		details = map[string]any{}
		c.Set(detailsKey, details)
	}
	details[key] = value
}

// Sink receives entries from the middleware.
type Sink interface {
	Record(e Entry)
}

// Middleware records one entry for action after the handler chain has written its response,
// so the stored status code is the one the client received.
func Middleware(sink Sink, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		sink.Record(FromContext(c, action))
	}
}

// FromContext builds the entry describing the finished request in c.
func FromContext(c *gin.Context, action string) Entry {
	e := Entry{
		Action:     action,
		Username:   Anonymous,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		StatusCode: c.Writer.Status(),
	}
	if e.UserAgent == "" {
		e.UserAgent = "unknown"
	}
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(Actor); ok {
			if a.ID != 0 {
				id := a.ID
				e.UserID = &id
			}
			if a.Username != "" {
				e.Username = a.Username
			}
		}
	}
	details := map[string]any{}
	if v, ok := c.Get(detailsKey); ok {
		if m, ok := v.(map[string]any); ok {
			for k, val := range m {
				details[k] = val
			}
		}
	}
	if id := c.GetString(logging.RequestIDKey); id != "" {
		details["request_id"] = id
	}
	if len(details) > 0 {
		body, err := json.Marshal(details)
		if err != nil {
			logging.Warn().Err(err).Str("action", action).Msg("encode audit details")
		} else {
			e.Details = body
		}
	}
	return e
}
