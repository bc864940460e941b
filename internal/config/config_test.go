package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("AUDIT_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 2*time.Second, cfg.RecordTimeout)
	require.Equal(t, 2555, cfg.RetentionMaxDays)
	require.Equal(t, time.Hour, cfg.RetentionSweepInterval)
	require.Equal(t, 30, cfg.AnalyticsWindowDays)
	require.Equal(t, 24*time.Hour, cfg.AnomalyWindow)
	require.Equal(t, 5, cfg.FailedLoginThreshold)
	require.Equal(t, 100, cfg.BulkAccessThreshold)
	require.Equal(t, "audit.events", cfg.NATSSubject)
}

func TestLoadOverridesAnomalyThresholds(t *testing.T) {
	t.Setenv("AUDIT_JWT_SECRET", "secret")
	t.Setenv("AUDIT_ANOMALY_FAILED_LOGIN_THRESHOLD", "8")
	t.Setenv("AUDIT_ANOMALY_BULK_ACCESS_THRESHOLD", "250")
	t.Setenv("AUDIT_ANOMALY_WINDOW", "6h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.FailedLoginThreshold)
	require.Equal(t, 250, cfg.BulkAccessThreshold)
	require.Equal(t, 6*time.Hour, cfg.AnomalyWindow)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SECRET", "secret")
		t.Setenv("AUDIT_AUDIT_RECORD_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("non positive threshold", func(t *testing.T) {
		t.Setenv("AUDIT_JWT_SECRET", "secret")
		t.Setenv("AUDIT_ANOMALY_FAILED_LOGIN_THRESHOLD", "0")
		_, err := Load()
		require.Error(t, err)
	})
}
