package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

type EscrowHandler struct {
	escrows *service.EscrowService
}

func NewEscrowHandler(escrows *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows}
}

// CreateEscrows POST /escrows
// Вызывается подсистемой заказов после оплаты: по одному escrow на долю продавца.
func (h *EscrowHandler) CreateEscrows(c *gin.Context) {
	var req dto.CreateEscrowsRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrows, err := h.escrows.CreateForOrder(c.Request.Context(), req.OrderID, req.BuyerID, req.Currency, req.ToSplits())
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrows": escrows})
}

// MarkDelivered POST /escrows/:id/delivered
func (h *EscrowHandler) MarkDelivered(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Get(c.Request.Context(), escrowID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	role, _ := common.CurrentUserRole(c)
	if escrow.SellerID != userID && role != "admin" {
		common.RespondForbidden(c, "отметить доставку может только продавец")
		return
	}

	escrow, err = h.escrows.MarkDelivered(c.Request.Context(), escrowID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// ConfirmReceipt POST /escrows/:id/confirm
func (h *EscrowHandler) ConfirmReceipt(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.ConfirmReceipt(c.Request.Context(), escrowID, userID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// GetEscrow GET /escrows/:id
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	escrowID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Get(c.Request.Context(), escrowID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// ListOrderEscrows GET /orders/:id/escrows
func (h *EscrowHandler) ListOrderEscrows(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrows, err := h.escrows.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrows": escrows})
}

// ListMyEscrows GET /escrows/my
func (h *EscrowHandler) ListMyEscrows(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	escrows, err := h.escrows.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrows": escrows})
}
