package realtime

import (
	"context"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

// AnalysisLookup returns an analysis when requester may read it.
type AnalysisLookup interface {
	Get(ctx context.Context, id, requester string) (*domain.Analysis, error)
}

// AnalysisRooms admits users to rooms named after analyses they can read.
type AnalysisRooms struct {
	analyses AnalysisLookup
}

func NewAnalysisRooms(analyses AnalysisLookup) *AnalysisRooms {
	return &AnalysisRooms{analyses: analyses}
}

func (a *AnalysisRooms) CanJoin(ctx context.Context, userID, room string) error {
	_, err := a.analyses.Get(ctx, room, userID)
	return err
}
