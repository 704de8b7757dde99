package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/response"
	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
)

// PortfolioHandler handles read requests on an owner's stored portfolio.
type PortfolioHandler struct {
	portfolioService *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(portfolioService *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// Positions handles GET requests for every stored position of an owner.
//
// Endpoint: GET /api/owners/{uuid}/positions
// Response: 200 OK with array of model.StoredPosition
// Error: 500 Internal Server Error if retrieval fails
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.portfolioService.GetPositions(r.Context(), ownerID(r))
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrievePositions.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, positions)
}

// Summary handles GET requests for the portfolio summary of an owner.
//
// Endpoint: GET /api/owners/{uuid}/summary
// Response: 200 OK with model.PortfolioOverview
// Error: 404 Not Found if the owner never completed an import
// Error: 500 Internal Server Error if retrieval fails
func (h *PortfolioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	overview, err := h.portfolioService.GetSummary(r.Context(), ownerID(r))
	if err != nil {
		if errors.Is(err, apperrors.ErrSummaryNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrSummaryNotFound.Error(), err.Error())
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveSummary.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, overview)
}

// History handles GET requests for the import history of an owner, newest first.
// The optional limit query parameter keeps only the most recent records.
//
// Endpoint: GET /api/owners/{uuid}/history?limit=N
// Response: 200 OK with array of model.ImportHistoryRecord
// Error: 400 Bad Request if limit is not a positive integer
// Error: 500 Internal Server Error if retrieval fails
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := h.portfolioService.GetHistory(r.Context(), ownerID(r), limit)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveHistory.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, history)
}
