package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/service"
	appErrors "github.com/PhmVu/EBN-Besu/pkg/errors"
	"github.com/PhmVu/EBN-Besu/pkg/response"
)

// WalletHandler exposes custodial key endpoints.
type WalletHandler struct {
	wallets *service.WalletService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type discloseRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// Status godoc
// @Summary Wallet key status
// @Description Report whether the current user's custodial key exists and whether it was already disclosed
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /wallet/key [get]
func (h *WalletHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	key, err := h.wallets.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// Disclose godoc
// @Summary Disclose private key
// @Description Reveal the custodial private key in plaintext, exactly once per account
// @Tags Wallet
// @Accept json
// @Produce json
// @Param payload body handler.discloseRequest true "Wallet secret"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /wallet/key/disclose [post]
func (h *WalletHandler) Disclose(c *gin.Context) {
	claims := claimsFromContext(c)
	var req discloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "wallet secret required"))
		return
	}

	key, err := h.wallets.Disclose(c.Request.Context(), claims.UserID, req.Secret)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"private_key": key}, nil)
}
