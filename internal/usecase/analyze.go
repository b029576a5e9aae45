package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"support-agent/internal/domain"
)

const (
	DefaultAnalyzeWindow = 100
	// alertOccurrences is the exact count at which a (role, flag) pair alerts.
	alertOccurrences  = 3
	alertSaveAttempts = 3
	defaultRetryDelay = 200 * time.Millisecond

	analysisCompleted = "Analysis completed"
)

type AlertStore interface {
	RecentLogs(ctx context.Context, limit int) ([]domain.LogRecord, error)
	SaveAlert(ctx context.Context, alert domain.AlertRecord) error
}

type AnalyzeService struct {
	store      AlertStore
	window     int
	now        func() time.Time
	retryDelay time.Duration
}

type AnalyzeOption func(*AnalyzeService)

func WithAnalyzeClock(now func() time.Time) AnalyzeOption {
	return func(s *AnalyzeService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetryDelay sets the pause between alert persistence attempts.
func WithRetryDelay(d time.Duration) AnalyzeOption {
	return func(s *AnalyzeService) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

type AnalyzeOutput struct {
	Message         string
	AlertsTriggered []domain.AlertRecord
}

func NewAnalyzeService(store AlertStore, window int, opts ...AnalyzeOption) (*AnalyzeService, error) {
	if store == nil {
		return nil, errors.New("usecase: alert store must not be nil")
	}
	if window <= 0 {
		window = DefaultAnalyzeWindow
	}
	s := &AnalyzeService{
		store:      store,
		window:     window,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze scans the most recent log records and persists an alert for every
// (role, flag) pair that occurs exactly alertOccurrences times. Persistence
// failures do not remove an alert from the output.
func (s *AnalyzeService) Analyze(ctx context.Context) (AnalyzeOutput, error) {
	records, err := s.store.RecentLogs(ctx, s.window)
	if err != nil {
		slog.Error("failed to read chat logs", "err", err)
		return AnalyzeOutput{}, newError(ErrorInternal, "log_read_error", err)
	}

	alerts := DetectAlerts(records, s.now().UTC())
	for _, a := range alerts {
		if err := s.saveAlert(ctx, a); err != nil {
			slog.Error("giving up on alert persistence", "role", a.ActorRole, "flag", a.Flag, "err", err)
		}
	}
	return AnalyzeOutput{Message: analysisCompleted, AlertsTriggered: alerts}, nil
}

func (s *AnalyzeService) saveAlert(ctx context.Context, a domain.AlertRecord) error {
	var err error
	for attempt := 1; attempt <= alertSaveAttempts; attempt++ {
		if err = s.store.SaveAlert(ctx, a); err == nil {
			return nil
		}
		slog.Warn("alert persistence failed", "attempt", attempt, "flag", a.Flag, "err", err)
		if attempt == alertSaveAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	return err
}

type alertKey struct {
	role string
	flag string
}

// DetectAlerts counts flagged user records in window order. An alert is
// emitted at the moment a pair's count becomes exactly alertOccurrences, so
// each pair alerts at most once per window.
func DetectAlerts(window []domain.LogRecord, now time.Time) []domain.AlertRecord {
	counts := make(map[alertKey]int)
	alerts := []domain.AlertRecord{}
	for _, rec := range window {
		if rec.Actor != domain.ActorUser || rec.FlagLabel == "" {
			continue
		}
		role := rec.ActorRole
		if role == "" {
			role = string(domain.RoleGeneral)
		}
		k := alertKey{role: role, flag: rec.FlagLabel}
		counts[k]++
		if counts[k] == alertOccurrences {
			alerts = append(alerts, domain.AlertRecord{
				ActorRole: role,
				Flag:      rec.FlagLabel,
				Timestamp: now,
				Message:   alertMessage(rec.FlagLabel),
				Type:      domain.AlertTypeBehavioral,
			})
		}
	}
	return alerts
}

func alertMessage(flag string) string {
	return "⚠️ Frequent signs of " + flag + " detected."
}
