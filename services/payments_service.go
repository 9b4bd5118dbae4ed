package services

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

type Payments interface {
	// PayOrder builds and sends the payment request, returning the hosted page URL.
	PayOrder(ctx context.Context, orderId, clientIP string) (string, error)
	Notify(ctx context.Context, values url.Values) error
	SubscriptionCancelled(ctx context.Context, subscriptionId string) error
	RenewSubscription(ctx context.Context, orderId string, amount decimal.Decimal) error
	ReleasePreOrder(ctx context.Context, orderId string) error
}
