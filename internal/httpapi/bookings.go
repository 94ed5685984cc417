package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// --- Bookings ---

func (h Handlers) PostPayBooking(c *gin.Context) {
	biz, ok := callerBusiness(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id", "booking id")
	if !ok {
		return
	}
	uid, ok := callerID(c)
	if !ok {
		return
	}
	res, err := h.Bookings.PayWithWallet(c.Request.Context(), biz, id, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
