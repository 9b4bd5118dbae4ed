package services

import (
	"context"

	"paybox/entity"
)

// Mailer delivers plain text messages; callers log failures and go on.
type Mailer interface {
	Send(to, subject, body string) error
}

// SubscriptionListener reacts to the cancellation of a subscription.
type SubscriptionListener func(ctx context.Context, subscription *entity.Subscription)

// Hooks is the listener registry for events raised by the order-management side.
type Hooks interface {
	AddSubscriptionCancelled(name string, listener SubscriptionListener)
	RemoveSubscriptionCancelled(name string)
	DispatchSubscriptionCancelled(ctx context.Context, subscription *entity.Subscription)
}

// DeliveryGuard remembers notifications that were already applied.
type DeliveryGuard interface {
	Key(orderId, paymentId, result string) string
	// Seen marks the key and reports whether it was marked before.
	Seen(ctx context.Context, key string) (bool, error)
}
