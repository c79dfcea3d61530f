package treasury_controller

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/services/report_service"
	"github.com/joy095/treasury/services/treasury_service"
	"github.com/joy095/treasury/utils"
	"github.com/shopspring/decimal"
)

// TreasuryController serves the admin API.
type TreasuryController struct {
	Treasury *treasury_service.TreasuryService
	Reports  *report_service.ReportService
	Ledger   ledger_models.Ledger
}

func NewTreasuryController(ledger ledger_models.Ledger, ts *treasury_service.TreasuryService, rs *report_service.ReportService) (*TreasuryController, error) {
	if ledger == nil || ts == nil || rs == nil {
		return nil, fmt.Errorf("treasury controller: ledger and services are required")
	}
	return &TreasuryController{Treasury: ts, Reports: rs, Ledger: ledger}, nil
}

type issuePayoutRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Notes  string           `json:"notes" binding:"max=1000"`
}

// IssuePayout pays a store; the amount defaults to everything pending.
func (tc *TreasuryController) IssuePayout(c *gin.Context) {
	actor, err := utils.GetUserIDFromContext(c)
	if err != nil {
		logger.ErrorLogger.Errorf("unauthorized access: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "Unauthorized"})
		return
	}

	storeID, err := utils.ParseUUIDParam(c, "store_id")
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	var req issuePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.ErrorLogger.Errorf("invalid payout request: %v", err)
		respondError(c, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	result, err := tc.Treasury.IssuePayout(c.Request.Context(), treasury_service.PayoutCommand{
		StoreID: storeID,
		Amount:  req.Amount,
		Notes:   req.Notes,
		Actor:   actor,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (tc *TreasuryController) GetPendingForStore(c *gin.Context) {
	storeID, err := utils.ParseUUIDParam(c, "store_id")
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	pending, err := tc.Reports.PendingForStore(c.Request.Context(), storeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (tc *TreasuryController) GetTreasury(c *gin.Context) {
	t, err := tc.Reports.TreasurySnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (tc *TreasuryController) GetDashboard(c *gin.Context) {
	dash, err := tc.Reports.DashboardTotals(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (tc *TreasuryController) GetPendingByStore(c *gin.Context) {
	groups, err := tc.Reports.PendingPayoutsGroupedByStore(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": groups})
}

// GetPayoutHistory lists payouts, optionally filtered by ?store_id=, ?status= and ?limit=.
func (tc *TreasuryController) GetPayoutHistory(c *gin.Context) {
	storeID, err := utils.ParseOptionalUUIDQuery(c, "store_id")
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	limit, err := utils.ParseIntQuery(c, "limit", 0)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	payouts, err := tc.Reports.PayoutHistory(c.Request.Context(), report_service.HistoryFilter{
		StoreID: storeID,
		Status:  c.Query("status"),
		Limit:   limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// Health reports whether the ledger store is reachable.
func (tc *TreasuryController) Health(c *gin.Context) {
	if err := tc.Ledger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "ok from treasury service"})
}
