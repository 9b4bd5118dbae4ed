package services

import (
	"context"
	"errors"
	"paybox/entity"
)

// ErrStatusChanged is returned by Orders.UpdateOrderStatus when the stored
// status no longer equals the expected one.
var ErrStatusChanged = errors.New("order status changed")

// Orders is the order-management side consumed by the payment flows.
type Orders interface {
	GetOrder(ctx context.Context, orderId string) (*entity.Order, error)
	// UpdateOrderStatus moves the order from status "from" to status "to" and
	// adds the note; it fails with ErrStatusChanged when the order is no
	// longer in "from".
	UpdateOrderStatus(ctx context.Context, orderId, from, to, note string) error
	AddOrderNote(ctx context.Context, orderId, note string) error
	GetOrderMeta(ctx context.Context, orderId, key string) (string, error)
	SetOrderMeta(ctx context.Context, orderId, key, value string) error
}

// Subscriptions is the subscription store with its key-value metadata.
type Subscriptions interface {
	GetSubscription(ctx context.Context, subscriptionId string) (*entity.Subscription, error)
	// GetSubscriptionsForOrder returns subscriptions linked to a parent or
	// renewal order.
	GetSubscriptionsForOrder(ctx context.Context, orderId string) ([]*entity.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, subscriptionId, status string) error
	GetSubscriptionMeta(ctx context.Context, subscriptionId, key string) (string, error)
	SetSubscriptionMeta(ctx context.Context, subscriptionId, key, value string) error
	DeleteSubscriptionMeta(ctx context.Context, subscriptionId, key string) error
}

type Database interface {
	Orders
	Subscriptions

	WriteLogMessage(data Data) error
	SaveNotification(ctx context.Context, notification *entity.Notification) error
}

type Data interface {
	DataType() string
}
