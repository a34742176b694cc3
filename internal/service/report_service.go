package service

import (
	"context"
	"errors"
	"reviewlens/internal/model"
	"reviewlens/internal/repository"
	"time"
)

var ErrReportNotFound = errors.New("report not found")

// ReportService stores and serves final analyses
type ReportService struct {
	reportRepo repository.ReportRepo
}

// NewReportService creates a new report service
func NewReportService(reportRepo repository.ReportRepo) *ReportService {
	return &ReportService{reportRepo: reportRepo}
}

// Save stores the final analysis of a session, replacing an earlier one
func (s *ReportService) Save(ctx context.Context, rec *model.SessionRecord, analysis *model.Analysis) (*model.Report, error) {
	report := &model.Report{
		SessionID:   rec.ID,
		Category:    rec.Category,
		ProductID:   rec.ProductID,
		ProductName: rec.ProductName,
		Analysis:    *analysis,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.reportRepo.Save(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Get(ctx context.Context, sessionID string) (*model.Report, error) {
	report, err := s.reportRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}
