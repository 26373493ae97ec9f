package auctionhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bidspot/internal/services/auction"
	"bidspot/internal/services/bidledger"
	"bidspot/internal/services/capacitygate"
	"bidspot/internal/services/payment"
	"bidspot/internal/services/winnerresolver"
	"bidspot/internal/store"
)

type Handler struct {
	auctions auction.IAuctionService
	gate     capacitygate.ICapacityGate
	ledger   bidledger.IBidLedger
	resolver winnerresolver.IWinnerResolver
	payments payment.IPaymentConfirmer
	st       store.Store
}

func New(
	auctions auction.IAuctionService,
	gate capacitygate.ICapacityGate,
	ledger bidledger.IBidLedger,
	resolver winnerresolver.IWinnerResolver,
	payments payment.IPaymentConfirmer,
	st store.Store,
) *Handler {
	return &Handler{
		auctions: auctions,
		gate:     gate,
		ledger:   ledger,
		resolver: resolver,
		payments: payments,
		st:       st,
	}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/auctions", h.create)
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.POST("/auctions/:id/bid", h.bid)
	r.POST("/auctions/:id/resolve", h.resolve)
	r.GET("/auctions/:id/winners", h.winners)
	r.POST("/bids/:id/cancel", h.cancelBid)
	r.POST("/payments/confirm", h.confirmPayment)
	r.GET("/users/:id/notifications", h.notifications)
}

// @Summary		Create an auction
// @Description	Admin creates a limited-spot timed auction.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	models.Auction
// @Failure		400		{object}	ErrorResponse
// @Failure		403		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	startingPrice, err := decimal.NewFromString(body.StartingPrice)
	if err != nil || startingPrice.IsNegative() {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid starting_price"})
		return
	}

	a, err := h.auctions.CreateAuction(ginCtx.Request.Context(), auction.CreateParams{
		Title:         body.Title,
		Description:   body.Description,
		StartingPrice: startingPrice,
		MaxSpots:      body.MaxSpots,
		EndsAt:        body.EndsAt,
		CreatedBy:     body.CreatedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, auction.ErrNotAuthorized):
			ginCtx.JSON(http.StatusForbidden, &ErrorResponse{Error: err.Error()})
		case errors.Is(err, auction.ErrEndsInPast), errors.Is(err, auction.ErrNoSpots):
			ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		default:
			ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		}
		return
	}
	ginCtx.JSON(http.StatusCreated, a)
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, optionally filtered by status.
// @Tags			Auctions
// @Param			status	query		string	false	"Status filter"			Enums(active,closing,completed)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		models.Auction
// @Failure		400		{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.auctions.ListAuctions(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Get auction details
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	a, err := h.auctions.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Place a bid
// @Description	Admits a bid when the auction is open and the amount beats the current price. Capacity never rejects a bid; spots are decided at resolution.
// @Tags			Bids
// @Param			id		path	string			true	"Auction ID"
// @Param			body	body	PlaceBidBody	true	"Bid payload"
// @Success		201	{object}	models.Bid
// @Failure		400	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Failure		503	{object}	ErrorResponse
// @Router			/auctions/{id}/bid [post]
func (h *Handler) bid(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: "invalid amount"})
		return
	}

	bid, err := h.gate.AdmitBid(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID, amount)
	if err != nil {
		switch {
		case errors.Is(err, capacitygate.ErrAuctionClosed), errors.Is(err, capacitygate.ErrBidTooLow):
			ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
		case errors.Is(err, capacitygate.ErrBusy):
			ginCtx.JSON(http.StatusServiceUnavailable, &ErrorResponse{Error: err.Error()})
		case errors.Is(err, store.ErrNotFound):
			ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		default:
			ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		}
		return
	}
	ginCtx.JSON(http.StatusCreated, bid)
}

// @Summary		Resolve an auction
// @Description	Closes an ended auction and computes its winner set. Safe to call repeatedly; concurrent calls are no-ops.
// @Tags			Auctions
// @Param			id	path	string	true	"Auction ID"
// @Success		200	{object}	winnerresolver.Result
// @Success		202
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/resolve [post]
func (h *Handler) resolve(ginCtx *gin.Context) {
	res, err := h.resolver.ResolveAuction(ginCtx.Request.Context(), ginCtx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, winnerresolver.ErrAlreadyProcessing),
			errors.Is(err, winnerresolver.ErrNothingToProcess):
			// Expected under concurrent triggers; success-equivalent.
			ginCtx.JSON(http.StatusAccepted, gin.H{"status": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		default:
			ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		}
		return
	}
	ginCtx.JSON(http.StatusOK, res)
}

// @Summary		List an auction's winners
// @Tags			Auctions
// @Param			id	path	string	true	"Auction ID"
// @Success		200	{array}		models.Winner
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/winners [get]
func (h *Handler) winners(c *gin.Context) {
	winners, err := h.auctions.ListWinners(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, winners)
}

// @Summary		Cancel a bid
// @Description	Owner withdraws an active bid before the auction ends.
// @Tags			Bids
// @Param			id		path	string			true	"Bid ID"
// @Param			body	body	CancelBidBody	true	"Owner payload"
// @Success		204
// @Failure		409	{object}	ErrorResponse
// @Router			/bids/{id}/cancel [post]
func (h *Handler) cancelBid(ginCtx *gin.Context) {
	var body CancelBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.ledger.CancelBid(ginCtx.Request.Context(), ginCtx.Param("id"), body.UserID); err != nil {
		if errors.Is(err, bidledger.ErrNotCancellable) {
			ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
			return
		}
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusNoContent)
}

// @Summary		Confirm a winner's payment
// @Description	Payment gateway webhook; records the terminal paid transition.
// @Tags			Payments
// @Param			body	body	ConfirmPaymentBody	true	"Confirmation payload"
// @Success		204
// @Failure		409	{object}	ErrorResponse
// @Router			/payments/confirm [post]
func (h *Handler) confirmPayment(ginCtx *gin.Context) {
	var body ConfirmPaymentBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.payments.ConfirmPayment(ginCtx.Request.Context(), body.AuctionID, body.UserID); err != nil {
		if errors.Is(err, payment.ErrNoPendingPayment) {
			ginCtx.JSON(http.StatusConflict, &ErrorResponse{Error: err.Error()})
			return
		}
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.Status(http.StatusNoContent)
}

// @Summary		List a user's notifications
// @Tags			Notifications
// @Param			id	path	string	true	"User ID"
// @Success		200	{array}	models.Notification
// @Router			/users/{id}/notifications [get]
func (h *Handler) notifications(c *gin.Context) {
	list, err := h.st.ListNotifications(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}
