package service

import (
	"context"
	"fmt"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
)

// PortfolioService exposes the stored portfolio of an owner: positions,
// summary and import history. It never writes; imports are the only writer
// of the financial fields.
type PortfolioService struct {
	holdingsRepo *repository.HoldingsRepository
}

// NewPortfolioService creates a new PortfolioService with the provided repository.
func NewPortfolioService(holdingsRepo *repository.HoldingsRepository) *PortfolioService {
	return &PortfolioService{
		holdingsRepo: holdingsRepo,
	}
}

// GetPositions retrieves all stored positions of an owner, ordered by symbol,
// including the CASH position when present.
func (s *PortfolioService) GetPositions(ctx context.Context, ownerID string) ([]model.StoredPosition, error) {
	positions, err := s.holdingsRepo.ListPositions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrievePositions, err)
	}
	return positions, nil
}

// GetSummary retrieves the portfolio summary of an owner together with the
// current total of the stored positions.
//
// Errors:
//   - apperrors.ErrSummaryNotFound if the owner has never completed an import
func (s *PortfolioService) GetSummary(ctx context.Context, ownerID string) (model.PortfolioOverview, error) {
	summary, err := s.holdingsRepo.GetSummary(ctx, ownerID)
	if err != nil {
		return model.PortfolioOverview{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveSummary, err)
	}
	if summary == nil {
		return model.PortfolioOverview{}, apperrors.ErrSummaryNotFound
	}

	positions, err := s.GetPositions(ctx, ownerID)
	if err != nil {
		return model.PortfolioOverview{}, err
	}

	overview := model.PortfolioOverview{PortfolioSummary: *summary}
	for _, p := range positions {
		if p.Symbol == model.CashSymbol {
			continue
		}
		overview.PositionCount++
		overview.PositionsValue += p.CurrentValue
	}
	overview.TotalValue = overview.PositionsValue + summary.CashBalance
	return overview, nil
}

// GetHistory retrieves the import history of an owner, newest first.
// A positive limit keeps only the most recent records.
func (s *PortfolioService) GetHistory(ctx context.Context, ownerID string, limit int) ([]model.ImportHistoryRecord, error) {
	history, err := s.holdingsRepo.ListHistory(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveHistory, err)
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}
