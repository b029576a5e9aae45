package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

type mockAlertStore struct {
	records   []domain.LogRecord
	readErr   error
	saveErrs  []error
	saveCalls int
	saved     []domain.AlertRecord
	lastLimit int
}

func (m *mockAlertStore) RecentLogs(_ context.Context, limit int) ([]domain.LogRecord, error) {
	m.lastLimit = limit
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.records) > limit {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func (m *mockAlertStore) SaveAlert(_ context.Context, a domain.AlertRecord) error {
	m.saveCalls++
	if len(m.saveErrs) > 0 {
		err := m.saveErrs[0]
		m.saveErrs = m.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	m.saved = append(m.saved, a)
	return nil
}

func flagged(role, flag string) domain.LogRecord {
	return domain.LogRecord{Actor: domain.ActorUser, ActorRole: role, FlagLabel: flag, Content: "..."}
}

func repeatRecord(rec domain.LogRecord, n int) []domain.LogRecord {
	out := make([]domain.LogRecord, n)
	for i := range out {
		out[i] = rec
	}
	return out
}

func TestDetectAlerts_ExactCount(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name   string
		window []domain.LogRecord
		want   int
	}{
		{name: "two occurrences", window: repeatRecord(flagged("parent", "confusion"), 2), want: 0},
		{name: "three occurrences", window: repeatRecord(flagged("parent", "confusion"), 3), want: 1},
		{name: "five occurrences still one alert", window: repeatRecord(flagged("parent", "confusion"), 5), want: 1},
		{
			name: "split across flags",
			window: []domain.LogRecord{
				flagged("teacher", "confusion"), flagged("teacher", "confusion"), flagged("teacher", "overwhelm"),
			},
			want: 0,
		},
		{
			name: "split across roles",
			window: []domain.LogRecord{
				flagged("teacher", "confusion"), flagged("mentor", "confusion"), flagged("teacher", "confusion"),
			},
			want: 0,
		},
		{
			name: "assistant and unflagged records ignored",
			window: []domain.LogRecord{
				flagged("parent", "overwhelm"),
				{Actor: domain.ActorAssistant, ActorRole: "parent", FlagLabel: "overwhelm"},
				{Actor: domain.ActorUser, ActorRole: "parent"},
				flagged("parent", "overwhelm"),
			},
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerts := DetectAlerts(tc.window, now)
			require.Len(t, alerts, tc.want)
		})
	}
}

func TestDetectAlerts_RecordShape(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	window := append(repeatRecord(flagged("", "focus issue"), 3), repeatRecord(flagged("mentor", "overwhelm"), 3)...)

	alerts := DetectAlerts(window, now)
	require.Equal(t, []domain.AlertRecord{
		{ActorRole: "general", Flag: "focus issue", Timestamp: now, Message: "⚠️ Frequent signs of focus issue detected.", Type: domain.AlertTypeBehavioral},
		{ActorRole: "mentor", Flag: "overwhelm", Timestamp: now, Message: "⚠️ Frequent signs of overwhelm detected.", Type: domain.AlertTypeBehavioral},
	}, alerts)
}

func TestDetectAlerts_EmptyWindowIsEmptyList(t *testing.T) {
	alerts := DetectAlerts(nil, time.Now())
	require.NotNil(t, alerts)
	require.Empty(t, alerts)
}

func TestAnalyze_PersistsAlerts(t *testing.T) {
	store := &mockAlertStore{records: repeatRecord(flagged("parent", "confusion"), 3)}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewAnalyzeService(store, 0, WithAnalyzeClock(func() time.Time { return now }), WithRetryDelay(0))
	require.NoError(t, err)

	out, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, analysisCompleted, out.Message)
	require.Len(t, out.AlertsTriggered, 1)
	require.Equal(t, out.AlertsTriggered, store.saved)
	require.Equal(t, DefaultAnalyzeWindow, store.lastLimit)
}

func TestAnalyze_OnlyReadsWindow(t *testing.T) {
	records := append(repeatRecord(flagged("parent", "confusion"), 2), repeatRecord(flagged("parent", "confusion"), 5)...)
	store := &mockAlertStore{records: records}
	svc, err := NewAnalyzeService(store, 2, WithRetryDelay(0))
	require.NoError(t, err)

	out, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Empty(t, out.AlertsTriggered)
	require.Equal(t, 2, store.lastLimit)
}

func TestAnalyze_RetriesPersistence(t *testing.T) {
	store := &mockAlertStore{
		records:  repeatRecord(flagged("parent", "confusion"), 3),
		saveErrs: []error{errors.New("throttled"), nil},
	}
	svc, err := NewAnalyzeService(store, 0, WithRetryDelay(0))
	require.NoError(t, err)

	out, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, out.AlertsTriggered, 1)
	require.Equal(t, 2, store.saveCalls)
	require.Len(t, store.saved, 1)
}

func TestAnalyze_ReturnsAlertsWhenPersistenceKeepsFailing(t *testing.T) {
	boom := errors.New("table missing")
	store := &mockAlertStore{
		records:  repeatRecord(flagged("teacher", "overwhelm"), 3),
		saveErrs: []error{boom, boom, boom, boom},
	}
	svc, err := NewAnalyzeService(store, 0, WithRetryDelay(0))
	require.NoError(t, err)

	out, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, out.AlertsTriggered, 1)
	require.Equal(t, alertSaveAttempts, store.saveCalls)
	require.Empty(t, store.saved)
}

func TestAnalyze_ReadFailure(t *testing.T) {
	svc, err := NewAnalyzeService(&mockAlertStore{readErr: errors.New("down")}, 0)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background())
	requireErrorCode(t, err, ErrorInternal)
}

func TestNewAnalyzeService_ValidatesStore(t *testing.T) {
	_, err := NewAnalyzeService(nil, 10)
	require.Error(t, err)
}
