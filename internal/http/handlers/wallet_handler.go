// README: Wallet handlers: balance with recent ledger rows, card top-up.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bidride/internal/modules/wallet"
	"bidride/internal/types"
)

type WalletHandler struct {
	wallet *wallet.Service
}

func NewWalletHandler(svc *wallet.Service) *WalletHandler {
	return &WalletHandler{wallet: svc}
}

func (h *WalletHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	uid := callerID(c)
	balance, err := h.wallet.Balance(ctx, uid)
	if err != nil {
		writeAppError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	txs, err := h.wallet.Transactions(ctx, uid, limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if txs == nil {
		txs = []wallet.Transaction{}
	}
	writeJSON(c, http.StatusOK, gin.H{"balance": balance, "transactions": txs})
}

type topUpReq struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

// TopUp forwards the Idempotency-Key header so client retries charge once.
func (h *WalletHandler) TopUp(c *gin.Context) {
	var req topUpReq
	if !bindJSON(c, &req) {
		return
	}
	balance, err := h.wallet.TopUp(c.Request.Context(), wallet.TopUpCommand{
		UserID:          callerID(c),
		Amount:          types.RS(req.Amount),
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"balance": balance})
}
