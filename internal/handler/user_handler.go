package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PhmVu/EBN-Besu/internal/service"
	"github.com/PhmVu/EBN-Besu/pkg/response"
)

// UserHandler exposes the account directory.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List godoc
// @Summary List accounts
// @Description Browse accounts, filterable by role and searchable by name or email
// @Tags Users
// @Produce json
// @Param role query string false "TEACHER or STUDENT"
// @Param search query string false "Match name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, pagination, err := h.users.List(c.Request.Context(), c.Query("role"), c.Query("search"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// ResolveWallet godoc
// @Summary Resolve a wallet address
// @Description Map an on-chain address back to the account that owns it
// @Tags Users
// @Produce json
// @Param address path string true "Wallet address"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/wallet/{address} [get]
func (h *UserHandler) ResolveWallet(c *gin.Context) {
	info, err := h.users.ResolveWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
