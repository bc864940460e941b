package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

func TestAuditAnalyticsRepositoryAggregates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditAnalyticsRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	insert(t, db, seed{actor: "t1", role: models.RoleTeacher, action: models.ActionStudentViewed, at: now.Add(-time.Hour)})
	insert(t, db, seed{actor: "t1", role: models.RoleTeacher, action: models.ActionStudentViewed, at: now.Add(-2 * time.Hour)})
	insert(t, db, seed{actor: "t2", role: models.RoleTeacher, action: models.ActionGradeUpdated, risk: models.RiskMedium, at: now.Add(-3 * time.Hour)})
	insert(t, db, seed{actor: "c1", role: models.RoleCounselor, action: models.ActionLoginFailed, status: models.StatusFailed, suspicious: true, at: now.Add(-4 * time.Hour)})
	// outside the window
	insert(t, db, seed{actor: "t1", role: models.RoleTeacher, action: models.ActionStudentViewed, at: now.AddDate(0, 0, -40)})

	since := now.AddDate(0, 0, -30)

	totals, err := repo.Totals(ctx, since, now)
	require.NoError(t, err)
	require.Equal(t, AuditTotals{Total: 4, Suspicious: 1, Failed: 1}, totals)

	roles, err := repo.RoleActivity(ctx, since, now)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Equal(t, models.RoleTeacher, roles[0].Role)
	require.Equal(t, int64(3), roles[0].Events)
	require.Equal(t, int64(2), roles[0].Actors)

	actions, err := repo.ActionCounts(ctx, since, now)
	require.NoError(t, err)
	require.Equal(t, models.ActionStudentViewed, actions[0].Action)
	require.Equal(t, int64(2), actions[0].Events)
	require.Equal(t, int64(1), actions[0].Actors)

	risks, err := repo.RiskCounts(ctx, since, now)
	require.NoError(t, err)
	require.Len(t, risks, 2)
	require.Equal(t, models.RiskLow, risks[0].RiskLevel)
	require.Equal(t, int64(3), risks[0].Events)

	days, err := repo.ActionDailyCounts(ctx, since, now)
	require.NoError(t, err)
	var daily int64
	for _, day := range days {
		daily += day.Events
	}
	require.Equal(t, totals.Total, daily)
}

func TestAuditAnalyticsRepositoryDailyCountsGroupInStore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditAnalyticsRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		insert(t, db, seed{actor: fmt.Sprintf("t%d", i%5), role: models.RoleTeacher, action: models.ActionStudentViewed, at: now.Add(-time.Duration(i) * time.Minute)})
	}
	insert(t, db, seed{actor: "t1", role: models.RoleTeacher, action: models.ActionStudentViewed, at: now.Add(-24 * time.Hour)})
	insert(t, db, seed{actor: "t1", role: models.RoleTeacher, action: models.ActionGradeUpdated, at: now.Add(-24 * time.Hour)})

	days, err := repo.ActionDailyCounts(ctx, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Equal(t, []ActionDayRow{
		{Action: models.ActionGradeUpdated, EventDay: "2026-03-14", Events: 1},
		{Action: models.ActionStudentViewed, EventDay: "2026-03-14", Events: 1},
		{Action: models.ActionStudentViewed, EventDay: "2026-03-15", Events: 50},
	}, days)
}

func TestAuditAnalyticsRepositoryFailedLoginsByIP(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditAnalyticsRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		insert(t, db, seed{
			actor:    "anonymous",
			role:     models.RoleAnonymous,
			action:   models.ActionLoginFailed,
			status:   models.StatusFailed,
			ip:       "203.0.113.5",
			at:       now.Add(-time.Duration(i+1) * time.Minute),
			metadata: map[string]interface{}{"attemptedIdentifier": fmt.Sprintf("user%d@school.test", i%2)},
		})
	}
	for i := 0; i < 4; i++ {
		insert(t, db, seed{actor: "u9", action: models.ActionLogin, status: models.StatusFailed, ip: "198.51.100.7", at: now.Add(-time.Minute)})
	}
	// a successful login never counts
	insert(t, db, seed{actor: "u9", action: models.ActionLogin, ip: "198.51.100.7", at: now.Add(-time.Minute)})

	since := now.Add(-24 * time.Hour)
	rows, err := repo.FailedLoginsByIP(ctx, since, now, 5)
	require.NoError(t, err)
	require.Equal(t, []IPAttemptRow{{IPAddress: "203.0.113.5", Attempts: 5}}, rows)

	rows, err = repo.FailedLoginsByIP(ctx, since, now, 4)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	logins, err := repo.FailedLogins(ctx, since, now, []string{"203.0.113.5"})
	require.NoError(t, err)
	require.Len(t, logins, 5)
	require.Contains(t, []interface{}{"user0@school.test", "user1@school.test"}, logins[0].Metadata["attemptedIdentifier"])
}

func TestAuditAnalyticsRepositoryReadAccess(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditAnalyticsRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		insert(t, db, seed{actor: "t1", action: models.ActionStudentViewed, resource: models.ResourceStudent, resourceID: fmt.Sprintf("s%d", i%3), at: now.Add(-time.Minute)})
	}
	insert(t, db, seed{actor: "t1", action: models.ActionStudentUpdated, resource: models.ResourceStudent, resourceID: "s9", at: now.Add(-time.Minute)})
	insert(t, db, seed{actor: "t2", action: models.ActionDocumentDownloaded, resource: models.ResourceDocument, resourceID: "d1", at: now.Add(-time.Minute)})

	since := now.Add(-24 * time.Hour)
	actions := models.ReadAccessActions()

	actors, err := repo.ReadAccessByActor(ctx, since, now, actions, 6)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	require.Equal(t, "t1", actors[0].ActorID)
	require.Equal(t, int64(6), actors[0].Events)

	resources, err := repo.ReadAccessResources(ctx, since, now, actions, []string{"t1"})
	require.NoError(t, err)
	ids := make([]string, 0, len(resources))
	for _, row := range resources {
		ids = append(ids, row.ResourceID)
	}
	require.Equal(t, []string{"s0", "s1", "s2"}, ids)
}
