package handler

import (
	"context"
	"net/http"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/services/bidding/helpers"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AccountServiceInterface interface {
	GetAccount(ctx context.Context, accountID string) (model.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error)
	Transactions(ctx context.Context, accountID string) ([]model.Transaction, error)
	History(ctx context.Context, accountID string, kind model.HistoryKind) ([]model.HistoryRecord, error)
}

type AccountHandler struct {
	service AccountServiceInterface
}

func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// ownerOrElevated resolves the :account_id path param and checks the caller
// may see it. Admins and CSRs may act on any account.
func ownerOrElevated(c *gin.Context, handlerName string) (string, bool) {
	actor, ok := requireActor(c, handlerName)
	if !ok {
		return "", false
	}
	accountID := c.Param("account_id")
	if actor.ID != accountID && !actor.Role.IsElevated() {
		helpers.RespondError(c, handlerName,
			biddingerrors.Unauthorized(actor.ID, "You can only access your own account"),
			map[string]any{"account_id": accountID, "actor_id": actor.ID})
		return "", false
	}
	return accountID, true
}

// GetAccountHandler handles GET /accounts/:account_id
func (h *AccountHandler) GetAccountHandler(c *gin.Context) {
	accountID, ok := ownerOrElevated(c, "GetAccountHandler")
	if !ok {
		return
	}

	acct, err := h.service.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		helpers.RespondError(c, "GetAccountHandler", err, map[string]any{"account_id": accountID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAccountResponse(acct), "account retrieved successfully")
}

// DepositHandler handles POST /accounts/:account_id/deposits
func (h *AccountHandler) DepositHandler(c *gin.Context) {
	accountID, ok := ownerOrElevated(c, "DepositHandler")
	if !ok {
		return
	}

	var req helpers.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DepositHandler", err)
		return
	}

	amount, err := helpers.Money("amount", req.Amount)
	if err != nil {
		helpers.RespondError(c, "DepositHandler", err, map[string]any{"account_id": accountID, "amount": req.Amount})
		return
	}

	acct, err := h.service.Deposit(c.Request.Context(), accountID, amount)
	if err != nil {
		helpers.RespondError(c, "DepositHandler", err, map[string]any{"account_id": accountID, "amount": req.Amount})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAccountResponse(acct), "deposit recorded successfully")
	helpers.LogSuccess("DepositHandler", "deposit recorded successfully", map[string]any{
		"account_id": accountID,
		"amount":     req.Amount,
		"balance":    acct.Balance.String(),
	})
}

// TransactionsHandler handles GET /accounts/:account_id/transactions
func (h *AccountHandler) TransactionsHandler(c *gin.Context) {
	accountID, ok := ownerOrElevated(c, "TransactionsHandler")
	if !ok {
		return
	}

	txs, err := h.service.Transactions(c.Request.Context(), accountID)
	if err != nil {
		helpers.RespondError(c, "TransactionsHandler", err, map[string]any{"account_id": accountID})
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	utils.JSONResponse(c, http.StatusOK, txs, "transactions retrieved successfully")
}

// HistoryHandler handles GET /accounts/:account_id/history?kind=
func (h *AccountHandler) HistoryHandler(c *gin.Context) {
	accountID, ok := ownerOrElevated(c, "HistoryHandler")
	if !ok {
		return
	}

	kind := model.HistoryKind(c.Query("kind"))
	switch kind {
	case "", model.HistoryPurchase, model.HistorySale, model.HistoryAuction:
	default:
		helpers.RespondError(c, "HistoryHandler",
			biddingerrors.Invalid("kind", "must be one of purchase, sale, auction"),
			map[string]any{"kind": kind})
		return
	}

	records, err := h.service.History(c.Request.Context(), accountID, kind)
	if err != nil {
		helpers.RespondError(c, "HistoryHandler", err, map[string]any{"account_id": accountID})
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}

	utils.JSONResponse(c, http.StatusOK, records, "history retrieved successfully")
}
