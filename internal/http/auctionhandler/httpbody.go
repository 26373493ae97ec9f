package auctionhandler

import "time"

type CreateAuctionBody struct {
	Title         string    `json:"title"          binding:"required"       example:"Barber slots, Saturday"`
	Description   string    `json:"description"                             example:"Five slots, highest bids win"`
	StartingPrice string    `json:"starting_price" binding:"required"       example:"10.00"`
	MaxSpots      int       `json:"max_spots"      binding:"required,gte=1" example:"5"`
	EndsAt        time.Time `json:"ends_at"        binding:"required"       example:"2025-07-27T16:05:05Z"`
	CreatedBy     string    `json:"created_by"     binding:"required"       example:"admin123"`
} // @name CreateAuctionRequest

type PlaceBidBody struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
	Amount string `json:"amount"  binding:"required" example:"25.50"`
} // @name PlaceBidRequest

type CancelBidBody struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
} // @name CancelBidRequest

type ConfirmPaymentBody struct {
	AuctionID string `json:"auction_id" binding:"required" example:"auc123"`
	UserID    string `json:"user_id"    binding:"required" example:"user123"`
} // @name ConfirmPaymentRequest

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListAuctionsQuery struct {
	Status string `form:"status"  binding:"omitempty,oneof=active closing completed"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListAuctionsQuery
