package httpapi

import (
	"net/http"

	"bizwallet/internal/apperr"
	"bizwallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// --- Admin wallet ---

func (h Handlers) actor(c *gin.Context) (wallet.Actor, bool) {
	uid, ok := callerID(c)
	if !ok {
		return wallet.Actor{}, false
	}
	return wallet.Actor{UserID: uid, IPAddress: c.ClientIP()}, true
}

func (h Handlers) PostAdjust(c *gin.Context) {
	acct, ok := h.targetBusiness(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var in wallet.AdjustmentInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Wallet.AdminAdjust(c.Request.Context(), acct.ID, in, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"adjustment": res,
		"business":   businessRef{ID: acct.ID, Name: acct.Name},
	})
}

func (h Handlers) PostFreeze(c *gin.Context)   { h.setFrozen(c, true) }
func (h Handlers) DeleteFreeze(c *gin.Context) { h.setFrozen(c, false) }

func (h Handlers) setFrozen(c *gin.Context, freeze bool) {
	acct, ok := h.targetBusiness(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var in wallet.FreezeInput
	if !bindJSON(c, &in) {
		return
	}

	var (
		res wallet.FreezeResult
		err error
	)
	if freeze {
		res, err = h.Wallet.Freeze(c.Request.Context(), acct.ID, in, actor)
	} else {
		res, err = h.Wallet.Unfreeze(c.Request.Context(), acct.ID, in, actor)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":   res,
		"business": businessRef{ID: acct.ID, Name: acct.Name},
	})
}

func (h Handlers) GetAudit(c *gin.Context) {
	acct, ok := h.targetBusiness(c)
	if !ok {
		return
	}
	f, err := auditFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := h.Audit.List(c.Request.Context(), acct.ID, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"business":   businessRef{ID: acct.ID, Name: acct.Name},
		"audit_logs": page.AuditLogs,
		"pagination": page.Pagination,
	})
}

// --- Admin bookings ---

func (h Handlers) DeleteBooking(c *gin.Context) {
	id, ok := pathUUID(c, "id", "booking id")
	if !ok {
		return
	}
	uid, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.Bookings.Delete(c.Request.Context(), id, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type bulkDeleteRequest struct {
	BookingIDs []string `json:"booking_ids"`
}

func (h Handlers) PostBulkDeleteBookings(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req bulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	ids := make([]uuid.UUID, 0, len(req.BookingIDs))
	for _, raw := range req.BookingIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperr.Validation("invalid booking id: "+raw))
			return
		}
		ids = append(ids, id)
	}
	res, err := h.Bookings.BulkDelete(c.Request.Context(), ids, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
