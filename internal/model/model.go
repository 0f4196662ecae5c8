// Package model defines the core domain types shared across the bid engine.
// Prices and balances are whole points (int64); sizes use shopspring/decimal
// so half sizes survive storage round trips exactly.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of a trade.
type Status string

const (
	StatusPreOffer          Status = "PRE_OFFER"
	StatusPreSellerShipment Status = "PRE_SELLER_SHIPMENT"
	StatusPreWarehousing    Status = "PRE_WAREHOUSING"
	StatusPreInspection     Status = "PRE_INSPECTION"
	StatusPreShipment       Status = "PRE_SHIPMENT"
	StatusShipping          Status = "SHIPPING"
	StatusTradeComplete     Status = "TRADE_COMPLETE"
	StatusCancel            Status = "CANCEL"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPreOffer, StatusPreSellerShipment, StatusPreWarehousing, StatusPreInspection,
		StatusPreShipment, StatusShipping, StatusTradeComplete, StatusCancel:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusTradeComplete || s == StatusCancel
}

// BookSide identifies which party initiated an open bid.
type BookSide string

const (
	// SideSale is a seller-initiated bid (buyer not yet bound).
	SideSale BookSide = "SALE"
	// SidePurchase is a buyer-initiated bid (seller not yet bound).
	SidePurchase BookSide = "PURCHASE"
)

// Opposite returns the other side of the book.
func (s BookSide) Opposite() BookSide {
	if s == SideSale {
		return SidePurchase
	}
	return SideSale
}

// Role is the party a user plays in a trade.
type Role string

const (
	RoleSeller Role = "SELLER"
	RoleBuyer  Role = "BUYER"
)

// Trade starts life as a one-sided bid in PRE_OFFER and, once a counter-party
// is bound, carries both parties through fulfillment. Trades are never deleted.
//
// An empty SellerID or BuyerID means that side is not bound yet.
type Trade struct {
	ID                    string          `json:"id"`
	ProductID             string          `json:"product_id"`
	Size                  decimal.Decimal `json:"size"`
	Price                 int64           `json:"price"`
	SellerID              string          `json:"seller_id,omitempty"`
	BuyerID               string          `json:"buyer_id,omitempty"`
	SellerAddressID       string          `json:"seller_address_id,omitempty"`
	BuyerAddressID        string          `json:"buyer_address_id,omitempty"`
	Status                Status          `json:"status"`
	SellerTrackingNumber  string          `json:"seller_tracking_number,omitempty"`
	CompanyTrackingNumber string          `json:"company_tracking_number,omitempty"`
	CancelReason          string          `json:"cancel_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Side returns the book side of an open bid: SideSale when the seller
// initiated it, SidePurchase otherwise.
func (t *Trade) Side() BookSide {
	if t.SellerID != "" && t.BuyerID == "" {
		return SideSale
	}
	return SidePurchase
}

// Open reports whether the trade is still an unmatched bid.
func (t *Trade) Open() bool {
	return t.Status == StatusPreOffer
}

// Bound reports whether both parties are set.
func (t *Trade) Bound() bool {
	return t.SellerID != "" && t.BuyerID != ""
}

// Account holds a user's point balance. The balance is a running total of
// every PointMovement recorded for the user.
type Account struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Division classifies why points moved.
type Division string

const (
	DivisionCharge            Division = "CHARGE"
	DivisionWithdraw          Division = "WITHDRAW"
	DivisionPurchaseDeduction Division = "PURCHASE_DEDUCTION"
	DivisionPurchaseReturn    Division = "PURCHASE_RETURN"
	DivisionSaleRevenue       Division = "SALE_REVENUE"
)

// PointMovement is an immutable record of one balance change.
// Amount is signed: credits are positive, debits negative.
type PointMovement struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Division  Division  `json:"division"`
	TradeID   string    `json:"trade_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the projection of a marketplace user this core needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Address is a shipping address owned by a user.
type Address struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	ZipCode string `json:"zip_code"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
}

// Product is the catalog projection used for bid admission.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ModelNumber string          `json:"model_number"`
	MinSize     decimal.Decimal `json:"min_size"`
	MaxSize     decimal.Decimal `json:"max_size"`
}

// BookLevel summarizes the open bids for one product/size.
type BookLevel struct {
	ProductID        string          `json:"product_id"`
	Size             decimal.Decimal `json:"size"`
	LowestSalePrice  *int64          `json:"lowest_sale_price"`
	HighestBuyPrice  *int64          `json:"highest_purchase_price"`
	OpenSaleBids     int             `json:"open_sale_bids"`
	OpenPurchaseBids int             `json:"open_purchase_bids"`
}
