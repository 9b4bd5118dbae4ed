package internal

import (
	"context"
	"fmt"
	"net/url"
	"paybox/entity"
	"paybox/services"

	"github.com/shopspring/decimal"
)

// Payments ties the order store, the request builder, the processor gateway
// and the reconciler together. It keeps no per-order state; concurrent calls
// for one order are serialized by status compare-and-set in the database.
type Payments struct {
	conf       entity.MerchantConfig
	database   services.Database
	builder    *RequestBuilder
	gateway    *Gateway
	reconciler *Reconciler
	hooks      services.Hooks
	logger     services.LogHandler
}

func NewPayments(conf entity.MerchantConfig, signer *Signer, database services.Database) *Payments {
	return &Payments{
		conf:     conf,
		database: database,
		builder:  NewRequestBuilder(conf, signer, database),
	}
}

func (p *Payments) SetGateway(gateway *Gateway) {
	p.gateway = gateway
}

func (p *Payments) SetReconciler(reconciler *Reconciler) {
	p.reconciler = reconciler
}

func (p *Payments) SetHooks(hooks services.Hooks) {
	p.hooks = hooks
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if p.conf.TestMode {
		p.logger.Warn("test mode enabled")
	}
}

// PayOrder sends the signed payment request of an order and returns the
// hosted payment page URL. The order is not changed.
func (p *Payments) PayOrder(ctx context.Context, orderId, clientIP string) (string, error) {
	order, err := p.getOrder(ctx, orderId)
	if err != nil {
		return "", err
	}
	switch order.Status {
	case entity.StatusPending, entity.StatusOnHold, entity.StatusFailed:
	default:
		return "", fmt.Errorf("%w: order %s is %s", ErrInvalidOrder, orderId, order.Status)
	}

	payload, err := p.builder.Build(ctx, order, clientIP)
	if err != nil {
		return "", err
	}
	p.logger.Info(fmt.Sprintf("pay order %s: amount %s %s", orderId, payload.Value("pg_amount"), order.Currency))

	paymentUrl, err := p.gateway.Initiate(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("init payment of order %s: %w", orderId, err)
	}
	return paymentUrl, nil
}

// Notify hands a received notification to the reconciler.
func (p *Payments) Notify(ctx context.Context, values url.Values) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.reconciler.Handle(ctx, entity.NewNotification(values))
}

// SubscriptionCancelled dispatches the shop's cancellation event to the
// registered listeners.
func (p *Payments) SubscriptionCancelled(ctx context.Context, subscriptionId string) error {
	subscription, err := p.database.GetSubscription(ctx, subscriptionId)
	if err != nil {
		return fmt.Errorf("get subscription %s: %w", subscriptionId, err)
	}
	p.logger.Info(fmt.Sprintf("subscription %s cancelled", subscriptionId))
	p.hooks.DispatchSubscriptionCancelled(ctx, subscription)
	return nil
}

// RenewSubscription charges a renewal order with the stored subscription
// token. On a failed charge the order gets the failure status and the
// subscription is flagged to register a new token on the next payment.
func (p *Payments) RenewSubscription(ctx context.Context, orderId string, amount decimal.Decimal) error {
	order, err := p.getOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if !order.IsRenewal() {
		return fmt.Errorf("%w: order %s is not a renewal", ErrInvalidOrder, orderId)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("renewal %s: %w", orderId, ErrDegenerateOrder)
	}
	p.logger.Info(fmt.Sprintf("attempting to renew subscription %s from renewal order %s", order.RenewalOf, orderId))

	subscription, err := p.database.GetSubscription(ctx, order.RenewalOf)
	if err != nil {
		return fmt.Errorf("%w: subscription %s of renewal order %s: %v", ErrInvalidOrder, order.RenewalOf, orderId, err)
	}
	token, err := p.database.GetSubscriptionMeta(ctx, subscription.Id, entity.MetaSubscriptionToken)
	if err != nil {
		return fmt.Errorf("get subscription token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("subscription %s has no token: %w", subscription.Id, ErrUnsupportedTransaction)
	}

	result, err := p.gateway.ChargeToken(ctx, order.Id, token, amount, p.builder.description(order.Id))
	if err != nil || !result.IsOk() {
		code, message := "", ""
		if err != nil {
			message = err.Error()
		} else {
			code, message = result.ErrorCode, result.ErrorDescription
		}
		note := fmt.Sprintf("PayBox Subscription renewal transaction failed (%s:%s)", code, message)
		if e := p.database.UpdateOrderStatus(ctx, order.Id, order.Status, p.conf.FailureStatus, note); e != nil {
			p.logger.Error(fmt.Sprintf("renewal order %s: set failure status", order.Id), e)
		}
		if e := p.database.SetSubscriptionMeta(ctx, subscription.Id, entity.MetaRenewalFlag, renewalFlagSet); e != nil {
			p.logger.Error(fmt.Sprintf("subscription %s: set renewal flag", subscription.Id), e)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("renewal charge declined: %s %s", code, message)
	}

	// completion is applied when the notification arrives
	if err = p.database.AddOrderNote(ctx, order.Id, "PayBox Subscription renewal transaction submitted."); err != nil {
		p.logger.Error(fmt.Sprintf("renewal order %s: add note", order.Id), err)
	}
	return nil
}

// ReleasePreOrder charges the rest of a tokenized pre-order with the token
// kept from the fee payment.
func (p *Payments) ReleasePreOrder(ctx context.Context, orderId string) error {
	order, err := p.getOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if !order.RequiresTokenization() {
		return fmt.Errorf("order %s is not a tokenized pre-order: %w", orderId, ErrUnsupportedTransaction)
	}
	if order.Status != entity.StatusPreOrdered {
		return fmt.Errorf("%w: pre-order %s is %s", ErrInvalidOrder, orderId, order.Status)
	}
	token, err := p.database.GetOrderMeta(ctx, order.Id, entity.MetaPreOrderToken)
	if err != nil {
		return fmt.Errorf("get pre-order token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("pre-order %s has no token: %w", orderId, ErrUnsupportedTransaction)
	}
	fee, _ := order.PreOrderFee()
	amount := order.TotalAmount().Sub(fee)
	if !amount.IsPositive() {
		return fmt.Errorf("pre-order %s: %w", orderId, ErrDegenerateOrder)
	}

	result, err := p.gateway.ChargeToken(ctx, order.Id, token, amount, p.builder.description(order.Id))
	if err != nil || !result.IsOk() {
		message := ""
		if err != nil {
			message = err.Error()
		} else {
			message = fmt.Sprintf("%s:%s", result.ErrorCode, result.ErrorDescription)
		}
		note := fmt.Sprintf("PayBox pre-order release charge failed (%s)", message)
		if e := p.database.UpdateOrderStatus(ctx, order.Id, order.Status, p.conf.FailureStatus, note); e != nil {
			p.logger.Error(fmt.Sprintf("pre-order %s: set failure status", order.Id), e)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("release charge declined: %s", message)
	}

	if err = p.database.AddOrderNote(ctx, order.Id, "PayBox pre-order release charge submitted."); err != nil {
		p.logger.Error(fmt.Sprintf("pre-order %s: add note", order.Id), err)
	}
	return nil
}

func (p *Payments) getOrder(ctx context.Context, orderId string) (*entity.Order, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	order, err := p.database.GetOrder(ctx, orderId)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOrder, orderId, err)
	}
	return order, nil
}
