package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// OpenDispute POST /escrows/:id/dispute
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
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

	var req dto.OpenDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.Open(c.Request.Context(), escrowID, userID, req.Reason)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.Get(c.Request.Context(), disputeID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// ListMyDisputes GET /disputes/my
func (h *DisputeHandler) ListMyDisputes(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.disputes.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"disputes": disputes})
}

// ListDisputeActions GET /disputes/:id/actions
func (h *DisputeHandler) ListDisputeActions(c *gin.Context) {
	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	actions, err := h.disputes.ListActions(c.Request.Context(), disputeID)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// RequestClosure POST /disputes/:id/closure-request
func (h *DisputeHandler) RequestClosure(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RequestClosureRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.RequestClosure(c.Request.Context(), disputeID, userID, req.ResolutionType, req.Message)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// RespondClosure POST /disputes/:id/closure-response
func (h *DisputeHandler) RespondClosure(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RespondClosureRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.RespondToClosure(c.Request.Context(), disputeID, userID, *req.Approved, req.Message)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}
