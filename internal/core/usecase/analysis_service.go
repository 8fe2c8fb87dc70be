package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

const (
	defaultNearbyRadiusKM = 10.0
	maxNearbyRadiusKM     = 200.0
	defaultNearbyLimit    = 20
)

// AnalysisService serves owner-scoped reads and mutations of analyses.
type AnalysisService struct {
	repo     ports.AnalysisRepository
	storage  ports.ImageStorage
	chats    ports.ChatRepository
	exporter ports.AnalysisExporter
}

func NewAnalysisService(
	repo ports.AnalysisRepository,
	storage ports.ImageStorage,
	chats ports.ChatRepository,
	exporter ports.AnalysisExporter,
) *AnalysisService {
	return &AnalysisService{
		repo:     repo,
		storage:  storage,
		chats:    chats,
		exporter: exporter,
	}
}

func (s *AnalysisService) Get(ctx context.Context, id, requester string) (*domain.Analysis, error) {
	analysis, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !analysis.ReadableBy(requester) {
		return nil, domain.WrapError(domain.ErrAccessDenied, "get analysis", fmt.Errorf("analysis %s is private", id))
	}
	return analysis, nil
}

func (s *AnalysisService) List(ctx context.Context, requester string, query domain.AnalysisListQuery) (domain.AnalysisPage, error) {
	if requester == "" {
		return domain.AnalysisPage{}, domain.WrapError(domain.ErrUnauthorized, "list analyses", errors.New("missing user identity"))
	}
	query = query.Normalize()
	if query.Status != "" {
		if _, err := domain.ParseAnalysisStatus(string(query.Status)); err != nil {
			return domain.AnalysisPage{}, err
		}
	}

	items, total, err := s.repo.List(ctx, requester, query)
	if err != nil {
		return domain.AnalysisPage{}, fmt.Errorf("list analyses: %w", err)
	}
	if items == nil {
		items = []domain.Analysis{}
	}
	return domain.AnalysisPage{
		Analyses:   items,
		Page:       query.Page,
		PageSize:   query.PageSize,
		Total:      total,
		TotalPages: domain.TotalPages(total, query.PageSize),
	}, nil
}

// Delete removes the stored image before the record. A storage failure keeps the record.
func (s *AnalysisService) Delete(ctx context.Context, id, requester string) error {
	analysis, err := s.owned(ctx, id, requester, "delete analysis")
	if err != nil {
		return err
	}
	if analysis.ImageKey != "" {
		if err := s.storage.Delete(ctx, analysis.ImageKey); err != nil {
			return fmt.Errorf("delete stored image: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return nil
}

func (s *AnalysisService) SetVisibility(ctx context.Context, id, requester string, isPublic bool) (*domain.Analysis, error) {
	analysis, err := s.owned(ctx, id, requester, "set visibility")
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetVisibility(ctx, id, isPublic); err != nil {
		return nil, fmt.Errorf("set visibility: %w", err)
	}
	analysis.IsPublic = isPublic
	return analysis, nil
}

func (s *AnalysisService) Nearby(ctx context.Context, requester string, query domain.NearbyQuery) ([]domain.NearbyAnalysis, error) {
	if err := query.Point.Validate(); err != nil {
		return nil, err
	}
	if query.RadiusKM <= 0 {
		query.RadiusKM = defaultNearbyRadiusKM
	}
	if query.RadiusKM > maxNearbyRadiusKM {
		query.RadiusKM = maxNearbyRadiusKM
	}
	if query.Limit <= 0 {
		query.Limit = defaultNearbyLimit
	}
	if query.Limit > domain.MaxPageSize {
		query.Limit = domain.MaxPageSize
	}

	items, err := s.repo.ListNearby(ctx, requester, query)
	if err != nil {
		return nil, fmt.Errorf("list nearby analyses: %w", err)
	}
	if items == nil {
		items = []domain.NearbyAnalysis{}
	}
	return items, nil
}

func (s *AnalysisService) Stats(ctx context.Context, requester string) (domain.DashboardStats, error) {
	stats, err := s.repo.Stats(ctx, requester)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("analysis stats: %w", err)
	}
	if s.chats != nil {
		count, err := s.chats.CountByUser(ctx, requester)
		if err != nil {
			return domain.DashboardStats{}, fmt.Errorf("count chats: %w", err)
		}
		stats.ChatSessions = count
	}
	return stats, nil
}

// Export writes every analysis of requester to w and returns the content type.
func (s *AnalysisService) Export(ctx context.Context, requester string, w io.Writer) (string, error) {
	if s.exporter == nil {
		return "", domain.WrapError(domain.ErrTemporary, "export analyses", errors.New("exporter is not configured"))
	}
	items, err := s.repo.ListAll(ctx, requester)
	if err != nil {
		return "", fmt.Errorf("list analyses for export: %w", err)
	}
	if err := s.exporter.Export(ctx, items, w); err != nil {
		return "", fmt.Errorf("export analyses: %w", err)
	}
	return s.exporter.ContentType(), nil
}

func (s *AnalysisService) owned(ctx context.Context, id, requester, op string) (*domain.Analysis, error) {
	analysis, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !analysis.OwnedBy(requester) {
		return nil, domain.WrapError(domain.ErrAccessDenied, op, fmt.Errorf("analysis %s is not owned by requester", id))
	}
	return analysis, nil
}
