package handler

import (
	"context"
	"io"
	"net/http"

	"bidding-marketplace/internal/notification"
	"bidding-marketplace/services/bidding/helpers"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=trigger_handler.go -destination=mock_trigger_handler.go -package=handler

const maxPayloadBytes = 64 << 10

type ChangeHandler interface {
	HandleChange(ctx context.Context, ev notification.Event) notification.Result
}

// TriggerHandler receives document-change triggers for bid documents
type TriggerHandler struct {
	dispatcher ChangeHandler
}

func NewTriggerHandler(dispatcher ChangeHandler) *TriggerHandler {
	return &TriggerHandler{dispatcher: dispatcher}
}

// BidChangedHandler handles POST /triggers/bids/:bid_id. Delivery problems
// never fail the trigger: the bid write it reports has already committed.
func (h *TriggerHandler) BidChangedHandler(c *gin.Context) {
	bidID := c.Param("bid_id")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		helpers.HandleBindError(c, "BidChangedHandler", err)
		return
	}
	ev, err := notification.DecodeEvent(body, bidID)
	if err != nil {
		helpers.HandleBindError(c, "BidChangedHandler", err)
		return
	}

	result := h.dispatcher.HandleChange(c.Request.Context(), ev)

	status := http.StatusOK
	if result.Enqueued > 0 {
		status = http.StatusAccepted
	}
	utils.JSONResponse(c, status, gin.H{
		"bid_id":    ev.BidID,
		"kind":      result.Kind.String(),
		"duplicate": result.Duplicate,
		"enqueued":  result.Enqueued,
		"failed":    result.Failed,
	}, "bid change processed")
	helpers.LogSuccess("BidChangedHandler", "bid change processed", map[string]any{
		"bid_id":    ev.BidID,
		"kind":      result.Kind.String(),
		"duplicate": result.Duplicate,
		"enqueued":  result.Enqueued,
	})
}
