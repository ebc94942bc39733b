package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"schoolreg/internal/audit"
	"schoolreg/internal/store/storetest"
)

func TestRepositoryEntries(t *testing.T) {
	repo := audit.NewRepository(storetest.Open(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	uid := int64(3)
	require.NoError(t, repo.Insert(ctx, audit.Entry{Action: audit.ActionViewStats, UserID: &uid, Username: "admin", StatusCode: 200, Timestamp: base}))
	require.NoError(t, repo.Insert(ctx, audit.Entry{Action: audit.ActionViewUsers, UserID: &uid, Username: "admin", StatusCode: 200, Timestamp: base.Add(time.Minute),
		Details: json.RawMessage(`{"request_id":"r1"}`)}))
	require.NoError(t, repo.Insert(ctx, audit.Entry{Action: audit.ActionLoginAttempt, Username: audit.Anonymous, StatusCode: 401, Timestamp: base.Add(2 * time.Minute)}))

	all, err := repo.List(ctx, audit.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, audit.ActionLoginAttempt, all[0].Action, "newest first")
	require.Nil(t, all[0].UserID)
	require.JSONEq(t, `{"request_id":"r1"}`, string(all[1].Details))

	byAction, err := repo.List(ctx, audit.Query{Action: audit.ActionViewStats})
	require.NoError(t, err)
	require.Len(t, byAction, 1)

	byUser, err := repo.List(ctx, audit.Query{UserID: uid, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, audit.ActionViewStats, byUser[0].Action)

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestRepositoryFailedLogins(t *testing.T) {
	repo := audit.NewRepository(storetest.Open(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertFailedLogin(ctx, "admin", "10.0.0.1", now.Add(-time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.InsertFailedLogin(ctx, "bob", "10.0.0.1", now))
	require.NoError(t, repo.InsertFailedLogin(ctx, "carol", "10.0.0.9", now.Add(-2*time.Hour)))

	n, err := repo.CountFailedLogins(ctx, "admin", "10.0.0.2", now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = repo.CountFailedLogins(ctx, "nobody", "10.0.0.1", now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 4, n, "ip match counts every username")

	alerts, err := repo.SecurityAlerts(ctx, now.Add(-24*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "admin", alerts[0].Username)
	require.Equal(t, 3, alerts[0].Attempts)
}
