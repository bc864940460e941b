package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

func TestAuthEntryFailedLogin(t *testing.T) {
	entry := AuthEntry(AuthEvent{
		AuditContext:        AuditContext{Actor: models.ActorSnapshot{ID: "anonymous", Role: models.RoleAnonymous}, Action: models.ActionLoginFailed},
		AttemptedIdentifier: "jane@school.test",
		Reason:              "invalid password",
	})

	require.Equal(t, models.StatusFailed, entry.Params.Status)
	require.Equal(t, models.RiskMedium, entry.Params.RiskLevel)
	require.Equal(t, "jane@school.test", entry.Params.Metadata["attemptedIdentifier"])
	require.Equal(t, "invalid password", entry.Params.ErrorMessage)
	require.Equal(t, "Failed sign-in for jane@school.test", entry.Params.Description)
	require.Nil(t, entry.Params.Resource)
	require.False(t, entry.Params.IsComplianceRelevant)

	locked := AuthEntry(AuthEvent{AuditContext: AuditContext{Actor: teacherActor(), Action: models.ActionAccountLocked}})
	require.True(t, locked.Params.IsSuspicious)
	require.Equal(t, "account locked", locked.Params.SuspiciousReason)
	require.Equal(t, models.RiskHigh, locked.Params.RiskLevel)
	require.Equal(t, models.ResourceUser, locked.Params.Resource.Type)
}

func TestRiskEntryEscalates(t *testing.T) {
	student := StudentRef{ID: "s1", Name: "John Doe", ClassID: "7A"}

	routine := RiskEntry(RiskEvent{
		AuditContext:  AuditContext{Actor: teacherActor(), Action: models.ActionRiskLevelChanged},
		Student:       student,
		AssessmentID:  "ra1",
		PreviousLevel: "Low",
		NewLevel:      "Medium",
	})
	require.Equal(t, models.RiskMedium, routine.Params.RiskLevel)

	escalated := RiskEntry(RiskEvent{
		AuditContext:  AuditContext{Actor: teacherActor(), Action: models.ActionRiskLevelChanged},
		Student:       student,
		AssessmentID:  "ra1",
		PreviousLevel: "Medium",
		NewLevel:      "Critical",
		Score:         0.91,
	})
	require.Equal(t, models.RiskHigh, escalated.Params.RiskLevel)
	require.Equal(t, "Critical", escalated.Params.Changes.After["riskLevel"])
	require.Equal(t, "s1", escalated.Params.RelatedStudentID)
	require.Equal(t, "7A", escalated.Params.RelatedClassID)
	require.Equal(t, models.ComplianceFERPA, escalated.Params.ComplianceType)

	record, err := models.NewAuditLog(withIP(escalated.Params))
	require.NoError(t, err)
	require.Equal(t, []string{"riskLevel"}, []string(record.ChangedFields))
}

func TestSystemEntryMarksFailures(t *testing.T) {
	ok := SystemEntry(SystemEvent{
		AuditContext: AuditContext{Actor: teacherActor(), Action: models.ActionDataExported},
		Component:    "sis-export",
		RecordCount:  420,
	})
	require.Equal(t, models.StatusSuccess, ok.Params.Status)
	require.Equal(t, models.RiskHigh, ok.Params.RiskLevel)
	require.Equal(t, models.ComplianceGDPR, ok.Params.ComplianceType)
	require.Equal(t, 420, ok.Params.Metadata["recordCount"])

	failed := SystemEntry(SystemEvent{
		AuditContext: AuditContext{Actor: teacherActor(), Action: models.ActionSystemBackup},
		Component:    "nightly-backup",
		Err:          errors.New("disk full"),
	})
	require.Equal(t, models.StatusFailed, failed.Params.Status)
	require.Equal(t, "disk full", failed.Params.ErrorMessage)
}

func TestEveryWrapperBuildsAValidRecord(t *testing.T) {
	actor := teacherActor()
	student := StudentRef{ID: "s1", Name: "John Doe"}
	ctx := func(action models.Action) AuditContext { return AuditContext{Actor: actor, Action: action} }

	entries := map[string]AuditEntry{
		"auth":         AuthEntry(AuthEvent{AuditContext: ctx(models.ActionLogin)}),
		"student":      StudentEntry(StudentEvent{AuditContext: ctx(models.ActionStudentCreated), Student: student}),
		"attendance":   AttendanceEntry(AttendanceEvent{AuditContext: ctx(models.ActionAttendanceRecorded), Student: student, RecordID: "a1", Date: "2026-03-02", State: "Absent"}),
		"import":       AttendanceEntry(AttendanceEvent{AuditContext: ctx(models.ActionAttendanceImported), RecordID: "batch-7", Date: "2026-03-02", RecordCount: 310}),
		"grade":        GradeEntry(GradeEvent{AuditContext: ctx(models.ActionGradeViewed), Student: student, GradeID: "g1", Subject: "Math"}),
		"intervention": InterventionEntry(InterventionEvent{AuditContext: ctx(models.ActionInterventionCreated), Student: student, InterventionID: "i1", Title: "Weekly mentoring", Kind: "mentoring"}),
		"session":      SessionEntry(SessionEvent{AuditContext: ctx(models.ActionSessionNotesViewed), Student: student, SessionID: "c1", Topic: "Attendance"}),
		"risk":         RiskEntry(RiskEvent{AuditContext: ctx(models.ActionRiskAssessed), Student: student, AssessmentID: "ra1", NewLevel: "High"}),
		"document":     DocumentEntry(DocumentEvent{AuditContext: ctx(models.ActionDocumentUploaded), Student: student, DocumentID: "d1", FileName: "iep.pdf"}),
		"notification": NotificationEntry(NotificationEvent{AuditContext: ctx(models.ActionNotificationSent), NotificationID: "n1", RecipientID: "p1", Channel: "email"}),
		"report":       ReportEntry(ReportEvent{AuditContext: ctx(models.ActionReportExported), ReportID: "r1", ReportName: "At-risk students", Format: "csv"}),
		"user":         UserEntry(UserEvent{AuditContext: ctx(models.ActionUserRoleChanged), UserID: "u7", UserName: "Sam", TargetRole: models.RoleCounselor}),
		"system":       SystemEntry(SystemEvent{AuditContext: ctx(models.ActionSystemConfigChanged), Component: "risk-weights"}),
	}

	for name, entry := range entries {
		t.Run(name, func(t *testing.T) {
			require.NotEmpty(t, entry.Params.Description)
			require.Equal(t, []string{string(entry.Params.Action.Domain())}, entry.Params.Tags)

			record, err := models.NewAuditLog(withIP(entry.Params))
			require.NoError(t, err)
			require.NotEmpty(t, record.ActorID)
			require.True(t, record.Action.IsValid())
			require.True(t, record.RiskLevel.IsValid())
			require.True(t, record.Status.IsValid())
			require.Equal(t, record.IsComplianceRelevant, record.ComplianceType != "")
		})
	}
}

func withIP(params models.AuditLogParams) models.AuditLogParams {
	params.Request.IPAddress = "10.0.0.1"
	return params
}
