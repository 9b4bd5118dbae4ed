package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending    = "pending"
	StatusOnHold     = "on-hold"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusPreOrdered = "pre-ordered"
)

// Metadata keys kept in the collaborator's key-value store.
const (
	MetaSubscriptionToken = "subscription_token"
	MetaRenewalFlag       = "renewal_flag"
	MetaPreOrderToken     = "pre_order_token"
	MetaPreOrderFeePaid   = "pre_order_fee_paid"

	// MetaPreOrderFeePayment keeps the processor payment id of the fee charge
	MetaPreOrderFeePayment = "pre_order_fee_payment_id"
)

// PreOrderFeeName is the fee line added by the pre-orders extension.
const PreOrderFeeName = "Pre-Order Fee"

// NormalizeStatus strips the "wc-" prefix used by status selectors of the shop.
func NormalizeStatus(status string) string {
	return strings.TrimPrefix(strings.TrimSpace(status), "wc-")
}

// Order is a snapshot of a shop order as exposed by the order-management system.
// It is never mutated directly; status changes go through services.Orders.
type Order struct {
	Id             string     `json:"order_id" bson:"order_id"`
	Status         string     `json:"status" bson:"status"`
	Currency       string     `json:"currency" bson:"currency"`
	Total          float64    `json:"total" bson:"total"`
	ShippingTotal  float64    `json:"shipping_total" bson:"shipping_total"`
	ShippingMethod string     `json:"shipping_method" bson:"shipping_method"`
	TotalDiscount  float64    `json:"total_discount" bson:"total_discount"`
	Items          []LineItem `json:"items" bson:"items"`
	Fees           []Fee      `json:"fees" bson:"fees"`
	BillingPhone   string     `json:"billing_phone" bson:"billing_phone"`
	BillingEmail   string     `json:"billing_email" bson:"billing_email"`
	UserId         string     `json:"user_id" bson:"user_id"`

	// ContainsSubscription is set on parent orders of a subscription
	ContainsSubscription bool `json:"contains_subscription" bson:"contains_subscription"`

	// RenewalOf holds the subscription id when the order renews a subscription
	RenewalOf string `json:"renewal_of,omitempty" bson:"renewal_of,omitempty"`

	// PreOrder marks orders with a pre-order product; PreOrderTokenize is set
	// when the product is charged upon release and the card must be tokenized
	PreOrder         bool      `json:"pre_order" bson:"pre_order"`
	PreOrderTokenize bool      `json:"pre_order_tokenize" bson:"pre_order_tokenize"`
	TimeCreated      time.Time `json:"time_created" bson:"time_created"`
	TimeUpdated      time.Time `json:"time_updated" bson:"time_updated"`
}

// LineItem is a product line of an order.
type LineItem struct {
	Name     string  `json:"name" bson:"name"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Price    float64 `json:"price" bson:"price"`

	// Attributes are product attributes, e.g. ikpu_code, package_code, unit_code
	Attributes map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// Fee is a fee line of an order.
type Fee struct {
	Name  string  `json:"name" bson:"name"`
	Total float64 `json:"total" bson:"total"`
	Tax   float64 `json:"tax" bson:"tax"`
}

func (o *Order) TotalAmount() decimal.Decimal {
	return decimal.NewFromFloat(o.Total)
}

func (o *Order) ShippingAmount() decimal.Decimal {
	return decimal.NewFromFloat(o.ShippingTotal)
}

func (o *Order) DiscountAmount() decimal.Decimal {
	return decimal.NewFromFloat(o.TotalDiscount)
}

// IsRenewal reports whether the order renews an existing subscription.
func (o *Order) IsRenewal() bool {
	return o.RenewalOf != ""
}

// RequiresTokenization is true for pre-orders charged upon release.
func (o *Order) RequiresTokenization() bool {
	return o.PreOrder && o.PreOrderTokenize
}

// PreOrderFee returns the pre-order fee including tax.
func (o *Order) PreOrderFee() (decimal.Decimal, bool) {
	for _, fee := range o.Fees {
		if fee.Name == PreOrderFeeName {
			return decimal.NewFromFloat(fee.Total).Add(decimal.NewFromFloat(fee.Tax)), true
		}
	}
	return decimal.Zero, false
}

// AwaitsPayment reports whether a notification may still move the order.
// Tokenized pre-orders stay payable while pre-ordered, waiting for the release charge.
func (o *Order) AwaitsPayment() bool {
	switch o.Status {
	case StatusPending, StatusOnHold:
		return true
	case StatusPreOrdered:
		return o.RequiresTokenization()
	}
	return false
}
