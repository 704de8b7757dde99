package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
)

// Apply steps, in execution order.
const (
	StepDeleteRemoved   = "delete removed positions"
	StepUpsertPositions = "upsert positions"
	StepCash            = "reconcile cash position"
	StepSummary         = "upsert portfolio summary"
	StepHistory         = "append import history"
)

// ApplyRequest is everything an apply needs: the confirmed change summary and
// the parse result it was computed from.
type ApplyRequest struct {
	OwnerID        string
	FileNames      []string
	Result         model.ParseResult
	Summary        model.ChangeSummary
	CashZeroPolicy model.CashZeroPolicy
	Now            time.Time
}

// ApplyChanges issues the store mutations of an accepted change summary in order:
// delete removed positions, upsert parsed positions, reconcile the CASH
// position, upsert the portfolio summary and append a history record.
//
// The first failing step stops the sequence and is reported as
// *apperrors.ApplyStepError. ApplyChanges does not undo completed steps; run it
// inside Transactor.WithinTx for an all-or-nothing apply.
func ApplyChanges(ctx context.Context, store repository.Store, req ApplyRequest) (model.ImportHistoryRecord, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	removed := make([]string, 0, len(req.Summary.RemovedPositions))
	for _, r := range req.Summary.RemovedPositions {
		removed = append(removed, r.ID)
	}
	if err := store.DeletePositions(ctx, req.OwnerID, removed); err != nil {
		return model.ImportHistoryRecord{}, &apperrors.ApplyStepError{Step: StepDeleteRemoved, Err: err}
	}

	for _, p := range req.Result.Positions {
		if err := store.UpsertPosition(ctx, req.OwnerID, toUpsert(p)); err != nil {
			return model.ImportHistoryRecord{}, &apperrors.ApplyStepError{Step: StepUpsertPositions, Err: err}
		}
	}

	if err := reconcileCash(ctx, store, req); err != nil {
		return model.ImportHistoryRecord{}, &apperrors.ApplyStepError{Step: StepCash, Err: err}
	}

	summary := model.PortfolioSummary{
		OwnerID:        req.OwnerID,
		CashBalance:    req.Result.CashBalance,
		LastImportDate: &now,
	}
	if err := store.UpsertSummary(ctx, req.OwnerID, summary); err != nil {
		return model.ImportHistoryRecord{}, &apperrors.ApplyStepError{Step: StepSummary, Err: err}
	}

	fileNames := append([]string{}, req.FileNames...)
	record := model.ImportHistoryRecord{
		ID:             uuid.New().String(),
		OwnerID:        req.OwnerID,
		FileNames:      fileNames,
		TotalPositions: len(req.Result.Positions),
		TotalValue:     req.Summary.NewTotal,
		Timestamp:      now,
	}
	if err := store.AppendHistory(ctx, req.OwnerID, record); err != nil {
		return model.ImportHistoryRecord{}, &apperrors.ApplyStepError{Step: StepHistory, Err: err}
	}

	return record, nil
}

func reconcileCash(ctx context.Context, store repository.Store, req ApplyRequest) error {
	balance := req.Result.CashBalance
	if balance > 0 {
		return store.UpsertPosition(ctx, req.OwnerID, cashUpsert(balance, req.Result.CashAccounts))
	}

	switch req.CashZeroPolicy {
	case model.CashZeroKeep:
		return nil
	case model.CashZeroUpsert:
		return store.UpsertPosition(ctx, req.OwnerID, cashUpsert(balance, req.Result.CashAccounts))
	default:
		positions, err := store.ListPositions(ctx, req.OwnerID)
		if err != nil {
			return err
		}
		for _, p := range positions {
			if p.Symbol == model.CashSymbol {
				return store.DeletePositions(ctx, req.OwnerID, []string{p.ID})
			}
		}
		return nil
	}
}

func cashUpsert(balance float64, accounts []model.AccountBreakdown) model.PositionUpsert {
	return model.PositionUpsert{
		Symbol:       model.CashSymbol,
		CompanyName:  "Cash",
		Shares:       balance,
		CurrentPrice: 1,
		CurrentValue: balance,
		CostBasis:    balance,
		Accounts:     accounts,
	}
}

func toUpsert(p model.ParsedPosition) model.PositionUpsert {
	return model.PositionUpsert{
		Symbol:       p.Symbol,
		CompanyName:  p.CompanyName,
		Shares:       p.Shares,
		CurrentPrice: p.CurrentPrice,
		CurrentValue: p.CurrentValue,
		CostBasis:    p.CostBasis,
		Accounts:     p.Accounts,
	}
}
