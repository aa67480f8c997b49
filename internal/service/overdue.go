package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lendkeeper/internal/model"
	"github.com/and161185/lendkeeper/internal/repository"
)

// OverdueService finds open borrows past the lending period.
type OverdueService struct {
	borrows repository.BorrowRepository
	log     *zap.Logger
	now     func() time.Time
}

// NewOverdueService constructs OverdueService. now defaults to time.Now.
func NewOverdueService(borrows repository.BorrowRepository, log *zap.Logger, now func() time.Time) *OverdueService {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &OverdueService{borrows: borrows, log: log, now: now}
}

// Now returns the service clock reading, used when callers do not pin a date.
func (s *OverdueService) Now() time.Time { return s.now() }

// FindOverdue returns open borrows started more than BorrowPeriodDays before the day of now.
// A book borrowed exactly BorrowPeriodDays ago is due today and not yet overdue.
func (s *OverdueService) FindOverdue(ctx context.Context, now time.Time) ([]model.BorrowRecord, error) {
	threshold := model.Day(now).AddDate(0, 0, -model.BorrowPeriodDays)
	return s.borrows.ListOpenBefore(ctx, threshold)
}

// OverdueReport is FindOverdue with due dates.
func (s *OverdueService) OverdueReport(ctx context.Context, now time.Time) ([]model.OverdueEntry, error) {
	recs, err := s.FindOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]model.OverdueEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.OverdueEntry{
			BorrowID:   r.ID,
			BookTitle:  r.BookTitle,
			Username:   r.Username,
			BorrowDate: r.BorrowDate,
			DueDate:    model.DueDate(r.BorrowDate),
		})
	}
	return out, nil
}

// RunPeriodic scans once immediately and then every interval until ctx is done.
func (s *OverdueService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.scan(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *OverdueService) scan(ctx context.Context) {
	recs, err := s.FindOverdue(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("overdue scan failed", zap.Error(err))
		}
		return
	}
	if len(recs) == 0 {
		s.log.Debug("overdue scan", zap.Int("overdue", 0))
		return
	}
	oldest := recs[0]
	s.log.Warn("overdue borrows",
		zap.Int("overdue", len(recs)),
		zap.Int64("oldest_borrow_id", oldest.ID),
		zap.Time("oldest_due", model.DueDate(oldest.BorrowDate)))
}
