package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// AdminHandler — административные операции: разрешение споров властью
// администратора, ручной запуск автовыпуска, привязка счетов для выплат.
type AdminHandler struct {
	disputes  *service.DisputeService
	scheduler *service.AutoReleaseScheduler
	payouts   *service.PayoutAdapter
}

func NewAdminHandler(disputes *service.DisputeService, scheduler *service.AutoReleaseScheduler, payouts *service.PayoutAdapter) *AdminHandler {
	return &AdminHandler{disputes: disputes, scheduler: scheduler, payouts: payouts}
}

// ResolveDispute POST /admin/disputes/:id/resolve
func (h *AdminHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.AdminResolveRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.disputes.AdminResolve(c.Request.Context(), disputeID, adminID, req.ResolutionType, req.Notes)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// RunSweep POST /admin/sweep
// Ручной запуск прохода автовыпуска вне расписания.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	result, err := h.scheduler.RunSweep(c.Request.Context())
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SavePayoutAccount PUT /admin/payout-accounts/:id
func (h *AdminHandler) SavePayoutAccount(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.PayoutAccountRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	account, err := h.payouts.BindAccount(c.Request.Context(), userID, req.Account)
	if err != nil {
		common.RespondFromError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}
