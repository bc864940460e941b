package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-audit-api/internal/dto"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/repository"
)

func seedAudit(t *testing.T, repo repository.AuditLogRepository, mutate func(*models.AuditLogParams)) models.AuditLog {
	t.Helper()
	params := models.AuditLogParams{
		Actor:       teacherActor(),
		Action:      models.ActionStudentViewed,
		Description: "Jane Teacher viewed student John Doe",
		Resource:    &models.ResourceRef{Type: models.ResourceStudent, ID: "s1", Name: "John Doe"},
		Request:     models.RequestSnapshot{IPAddress: "10.0.0.1", Headers: map[string]interface{}{"Accept": "application/json"}},
		Timestamp:   time.Now().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(&params)
	}

	record, err := models.NewAuditLog(params)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &record))
	return record
}

func newTestQueryService(repo repository.AuditLogRepository, now time.Time) *auditQueryService {
	svc := NewAuditQueryService(repo, testLogger()).(*auditQueryService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestQueryPagesNeverOverlap(t *testing.T) {
	repo := repository.NewAuditLogRepository(setupAuditDB(t))
	now := time.Now().UTC()
	svc := newTestQueryService(repo, now)

	shared := now.Add(-2 * time.Hour)
	for i := 0; i < 12; i++ {
		seedAudit(t, repo, func(p *models.AuditLogParams) {
			p.Actor.ID = fmt.Sprintf("u%d", i%3)
			p.Timestamp = shared
		})
	}

	seen := map[string]struct{}{}
	var snapshot *time.Time
	for page := 1; page <= 3; page++ {
		result, err := svc.Query(context.Background(), dto.AuditLogQuery{Page: page, Limit: 5, SnapshotAt: snapshot})
		require.NoError(t, err)
		require.Equal(t, int64(12), result.Pagination.TotalItems)
		require.Equal(t, 3, result.Pagination.TotalPages)
		require.NotNil(t, result.SnapshotAt)
		snapshot = result.SnapshotAt

		for _, item := range result.Items {
			_, dup := seen[item.ID]
			require.False(t, dup, "record %s appeared on two pages", item.ID)
			seen[item.ID] = struct{}{}
		}
	}
	require.Len(t, seen, 12)
}

func TestQuerySnapshotPinsLaterPages(t *testing.T) {
	snapshot := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	storeClock := snapshot.Add(-time.Hour)
	repo := repository.NewAuditLogRepository(setupAuditDBWithClock(t, func() time.Time { return storeClock }))
	svc := newTestQueryService(repo, snapshot)

	for i := 0; i < 3; i++ {
		seedAudit(t, repo, func(p *models.AuditLogParams) { p.Timestamp = snapshot.Add(-time.Duration(i+1) * time.Minute) })
	}

	first, err := svc.Query(context.Background(), dto.AuditLogQuery{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, snapshot, *first.SnapshotAt)
	require.Equal(t, int64(3), first.Pagination.TotalItems)

	// committed after the first page was served
	storeClock = snapshot.Add(time.Second)
	seedAudit(t, repo, func(p *models.AuditLogParams) { p.Timestamp = snapshot.Add(time.Minute) })
	// stamped before the snapshot, committed after it
	seedAudit(t, repo, func(p *models.AuditLogParams) { p.Timestamp = snapshot.Add(-30 * time.Second) })

	second, err := svc.Query(context.Background(), dto.AuditLogQuery{Page: 2, Limit: 2, SnapshotAt: first.SnapshotAt})
	require.NoError(t, err)
	require.Equal(t, int64(3), second.Pagination.TotalItems)
	require.Len(t, second.Items, 1)
	require.True(t, second.Items[0].Timestamp.Equal(snapshot.Add(-3*time.Minute)))

	svc.now = func() time.Time { return snapshot.Add(time.Hour) }
	fresh, err := svc.Query(context.Background(), dto.AuditLogQuery{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), fresh.Pagination.TotalItems)
}

func TestQueryRejectsMalformedInput(t *testing.T) {
	repo := repository.NewAuditLogRepository(setupAuditDB(t))
	svc := newTestQueryService(repo, time.Now())

	later := time.Now()
	earlier := later.Add(-time.Hour)

	cases := map[string]struct {
		query dto.AuditLogQuery
		field string
	}{
		"negative page":     {query: dto.AuditLogQuery{Page: -1}, field: "page"},
		"negative limit":    {query: dto.AuditLogQuery{Limit: -5}, field: "limit"},
		"unsupported sort":  {query: dto.AuditLogQuery{SortBy: "request_headers"}, field: "sortBy"},
		"bad sort order":    {query: dto.AuditLogQuery{SortOrder: "sideways"}, field: "sortOrder"},
		"unknown action":    {query: dto.AuditLogQuery{Action: "STUDENT_TELEPORTED"}, field: "action"},
		"unknown risk":      {query: dto.AuditLogQuery{RiskLevel: "Extreme"}, field: "riskLevel"},
		"unknown status":    {query: dto.AuditLogQuery{Status: "Maybe"}, field: "status"},
		"unknown resource":  {query: dto.AuditLogQuery{ResourceType: "Spaceship"}, field: "resourceType"},
		"inverted interval": {query: dto.AuditLogQuery{StartDate: &later, EndDate: &earlier}, field: "startDate"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Query(context.Background(), tc.query)
			require.Error(t, err)
			require.True(t, IsQueryError(err))

			var queryErr *QueryError
			require.ErrorAs(t, err, &queryErr)
			require.Equal(t, tc.field, queryErr.Field)
		})
	}
}

func TestQueryClampsLimitAndFilters(t *testing.T) {
	repo := repository.NewAuditLogRepository(setupAuditDB(t))
	svc := newTestQueryService(repo, time.Now())

	seedAudit(t, repo, func(p *models.AuditLogParams) { p.RiskLevel = models.RiskHigh })
	seedAudit(t, repo, nil)

	result, err := svc.Query(context.Background(), dto.AuditLogQuery{Limit: 500, RiskLevel: "high", SortBy: "riskLevel", SortOrder: "ASC"})
	require.NoError(t, err)
	require.Equal(t, 100, result.Pagination.PageSize)
	require.Equal(t, 1, result.Pagination.Page)
	require.Len(t, result.Items, 1)
	require.Equal(t, models.RiskHigh, result.Items[0].RiskLevel)
	require.Empty(t, result.Items[0].Request.Headers)
}

func TestGetByID(t *testing.T) {
	repo := repository.NewAuditLogRepository(setupAuditDB(t))
	svc := newTestQueryService(repo, time.Now())
	record := seedAudit(t, repo, nil)

	found, err := svc.GetByID(context.Background(), record.ID, false)
	require.NoError(t, err)
	require.Equal(t, record.ID, found.ID)
	require.Equal(t, models.DomainStudent, found.Domain)
	require.Empty(t, found.Request.Headers)

	sensitive, err := svc.GetByID(context.Background(), record.ID, true)
	require.NoError(t, err)
	require.Equal(t, "application/json", sensitive.Request.Headers["Accept"])

	_, err = svc.GetByID(context.Background(), "does-not-exist", false)
	require.ErrorIs(t, err, ErrAuditLogNotFound)

	_, err = svc.GetByID(context.Background(), " ", false)
	require.True(t, IsQueryError(err))
}

func TestHistoryQueries(t *testing.T) {
	repo := repository.NewAuditLogRepository(setupAuditDB(t))
	svc := newTestQueryService(repo, time.Now())
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		seedAudit(t, repo, func(p *models.AuditLogParams) {
			p.Timestamp = now.Add(-time.Duration(i+1) * time.Hour)
			p.RelatedStudentID = "s1"
		})
	}
	seedAudit(t, repo, func(p *models.AuditLogParams) {
		p.Actor = models.ActorSnapshot{ID: "c1", Role: models.RoleCounselor}
		p.Action = models.ActionSessionScheduled
		p.Resource = &models.ResourceRef{Type: models.ResourceSession, ID: "sess1"}
		p.RelatedStudentID = "s2"
	})

	activity, err := svc.ActivityForActor(context.Background(), "u1", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	for i := 1; i < len(activity); i++ {
		require.False(t, activity[i].Timestamp.After(activity[i-1].Timestamp))
	}

	start := now.Add(-90 * time.Minute)
	recent, err := svc.ActivityForActor(context.Background(), "u1", &start, nil, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	resource, err := svc.HistoryForResource(context.Background(), "session", "sess1", 10)
	require.NoError(t, err)
	require.Len(t, resource, 1)
	require.Equal(t, "c1", resource[0].Actor.ID)

	student, err := svc.HistoryForStudent(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, student, 2)

	_, err = svc.HistoryForResource(context.Background(), "Spaceship", "x", 10)
	require.True(t, IsQueryError(err))
	_, err = svc.HistoryForStudent(context.Background(), "", 10)
	require.True(t, IsQueryError(err))
	_, err = svc.ActivityForActor(context.Background(), "u1", nil, nil, -1)
	require.True(t, IsQueryError(err))
}
