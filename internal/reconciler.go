package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"paybox/entity"
	"paybox/services"
	"path"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	cancelListenerName = "paybox"
	renewalFlagSet     = "true"
	preOrderFeePaid    = "yes"
)

var amountEpsilon = decimal.NewFromFloat(0.01)

const cancellingKey contextKey = "cancellingSubscription"

type tokenCanceller interface {
	CancelToken(ctx context.Context, token string) error
}

// Reconciler applies processor notifications to orders. Every transition is
// gated on the current order status and committed as a compare-and-set, so
// repeated or concurrent deliveries change an order at most once.
type Reconciler struct {
	conf     entity.MerchantConfig
	signer   *Signer
	gateway  tokenCanceller
	database services.Database
	mailer   services.Mailer
	guard    services.DeliveryGuard
	logger   services.LogHandler
}

func NewReconciler(conf entity.MerchantConfig, signer *Signer, gateway tokenCanceller, database services.Database) *Reconciler {
	return &Reconciler{
		conf:     conf,
		signer:   signer,
		gateway:  gateway,
		database: database,
	}
}

func (r *Reconciler) SetLogger(logger services.LogHandler) {
	r.logger = logger
}

func (r *Reconciler) SetMailer(mailer services.Mailer) {
	r.mailer = mailer
}

func (r *Reconciler) SetDeliveryGuard(guard services.DeliveryGuard) {
	r.guard = guard
}

// Handle processes one notification. Invalid notifications and notifications
// for orders that no longer await payment are logged and dropped.
func (r *Reconciler) Handle(ctx context.Context, n *entity.Notification) error {
	if n.OrderId == "" || n.Result == "" {
		r.logger.Warn("notification without order id or result ignored")
		return nil
	}
	if r.conf.VerifySignatures && !r.signer.VerifyValues(r.resultEndpoint(), n.Values) {
		r.logger.Warn(fmt.Sprintf("order %s: notification signature is not valid, ignored", n.OrderId))
		return nil
	}

	r.logger.Info(fmt.Sprintf("notification: order %s; result %s; payment %s; status %s; amount %s", n.OrderId, n.Result, n.PaymentId, n.PaymentStatus, n.Amount))
	if err := r.database.SaveNotification(ctx, n); err != nil {
		r.logger.Error("save notification", err)
	}

	if r.guard != nil && n.PaymentId != "" {
		seen, err := r.guard.Seen(ctx, r.guard.Key(n.OrderId, n.PaymentId, n.Result))
		if err != nil {
			r.logger.Error("delivery guard", err)
		} else if seen {
			r.logger.Info(fmt.Sprintf("order %s: payment %s already handled", n.OrderId, n.PaymentId))
			return nil
		}
	}

	order, err := r.database.GetOrder(ctx, n.OrderId)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidOrder, n.OrderId, err)
	}
	if !order.AwaitsPayment() {
		r.logger.Info(fmt.Sprintf("order %s is %s, no change", order.Id, order.Status))
		return nil
	}

	if n.IsSuccess() {
		err = r.paymentComplete(ctx, n, order)
	} else {
		err = r.paymentFailed(ctx, n, order)
	}
	if errors.Is(err, services.ErrStatusChanged) {
		r.logger.Info(fmt.Sprintf("order %s changed by a concurrent notification", order.Id))
		return nil
	}
	return err
}

func (r *Reconciler) paymentComplete(ctx context.Context, n *entity.Notification, order *entity.Order) error {
	r.logger.Debug(fmt.Sprintf("order %s: complete", order.Id))

	if order.RequiresTokenization() {
		return r.preOrderPayment(ctx, n, order)
	}

	mismatch := r.amountMismatch(n, order, order.TotalAmount())
	if err := r.database.UpdateOrderStatus(ctx, order.Id, order.Status, r.conf.SuccessStatus, "PayBox Order payment success"); err != nil {
		return err
	}
	r.addNote(ctx, order.Id, mismatch)
	r.addNote(ctx, order.Id, "ITN payment completed")
	r.storeSubscriptionToken(ctx, n, order)
	r.sendCompletedEmail(n, order)
	return nil
}

// preOrderPayment handles the two charges of a tokenized pre-order: the fee
// charge marks the order pre-ordered and keeps the token, the release charge
// completes the order and cancels the token.
func (r *Reconciler) preOrderPayment(ctx context.Context, n *entity.Notification, order *entity.Order) error {
	feePaid, err := r.database.GetOrderMeta(ctx, order.Id, entity.MetaPreOrderFeePaid)
	if err != nil {
		return fmt.Errorf("pre-order fee flag: %w", err)
	}

	if feePaid != preOrderFeePaid {
		fee, _ := order.PreOrderFee()
		mismatch := r.amountMismatch(n, order, fee)
		note := fmt.Sprintf("PayBox pre-order fee paid: %s %s (%s)", n.Amount, order.Currency, n.PaymentId)
		if err = r.database.UpdateOrderStatus(ctx, order.Id, order.Status, entity.StatusPreOrdered, note); err != nil {
			return err
		}
		r.addNote(ctx, order.Id, mismatch)
		r.addNote(ctx, order.Id, "ITN payment completed")
		r.setOrderMeta(ctx, order.Id, entity.MetaPreOrderToken, n.Token)
		r.setOrderMeta(ctx, order.Id, entity.MetaPreOrderFeePayment, n.PaymentId)
		r.setOrderMeta(ctx, order.Id, entity.MetaPreOrderFeePaid, preOrderFeePaid)
		r.sendCompletedEmail(n, order)
		return nil
	}

	if order.Status != entity.StatusPreOrdered {
		r.logger.Warn(fmt.Sprintf("pre-order %s is %s after the fee charge, no change", order.Id, order.Status))
		return nil
	}
	feePayment, err := r.database.GetOrderMeta(ctx, order.Id, entity.MetaPreOrderFeePayment)
	if err != nil {
		return fmt.Errorf("pre-order fee payment: %w", err)
	}
	if n.PaymentId != "" && n.PaymentId == feePayment {
		r.logger.Info(fmt.Sprintf("pre-order %s: repeated fee notification", order.Id))
		return nil
	}

	fee, _ := order.PreOrderFee()
	mismatch := r.amountMismatch(n, order, order.TotalAmount().Sub(fee))
	note := fmt.Sprintf("PayBox pre-order product line total paid: %s %s (%s)", n.Amount, order.Currency, n.PaymentId)
	if err = r.database.UpdateOrderStatus(ctx, order.Id, order.Status, r.conf.SuccessStatus, note); err != nil {
		return err
	}
	r.addNote(ctx, order.Id, mismatch)
	r.addNote(ctx, order.Id, "ITN payment completed")

	token, err := r.database.GetOrderMeta(ctx, order.Id, entity.MetaPreOrderToken)
	if err != nil {
		r.logger.Error("get pre-order token", err)
	}
	if token == "" {
		token = n.Token
	}
	if token != "" {
		if err = r.gateway.CancelToken(ctx, token); err != nil {
			r.logger.Error(fmt.Sprintf("pre-order %s: cancel token", order.Id), err)
		}
	}
	r.sendCompletedEmail(n, order)
	return nil
}

// storeSubscriptionToken links the token to every subscription of the order.
// When the subscriptions wait for a new token, the previous one is cancelled
// first, so a subscription never holds two live tokens.
func (r *Reconciler) storeSubscriptionToken(ctx context.Context, n *entity.Notification, order *entity.Order) {
	if n.Token == "" {
		return
	}
	subscriptions, err := r.database.GetSubscriptionsForOrder(ctx, order.Id)
	if err != nil {
		r.logger.Error(fmt.Sprintf("order %s: get subscriptions", order.Id), err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	first := subscriptions[0]
	flag, err := r.database.GetSubscriptionMeta(ctx, first.Id, entity.MetaRenewalFlag)
	if err != nil {
		r.logger.Error(fmt.Sprintf("subscription %s: get renewal flag", first.Id), err)
	}
	if flag == renewalFlagSet {
		// all subscriptions of the order share one token
		previous, e := r.database.GetSubscriptionMeta(ctx, first.Id, entity.MetaSubscriptionToken)
		if e != nil {
			r.logger.Error(fmt.Sprintf("subscription %s: get token", first.Id), e)
		}
		if previous != "" && previous != n.Token {
			r.logger.Info(fmt.Sprintf("cancel previous token %s of subscription %s", secret(previous), first.Id))
			if e = r.gateway.CancelToken(ctx, previous); e != nil {
				r.logger.Error(fmt.Sprintf("subscription %s: cancel previous token", first.Id), e)
			}
		}
	}

	for _, subscription := range subscriptions {
		if e := r.database.DeleteSubscriptionMeta(ctx, subscription.Id, entity.MetaRenewalFlag); e != nil {
			r.logger.Error(fmt.Sprintf("subscription %s: delete renewal flag", subscription.Id), e)
		}
		if e := r.database.SetSubscriptionMeta(ctx, subscription.Id, entity.MetaSubscriptionToken, n.Token); e != nil {
			r.logger.Error(fmt.Sprintf("subscription %s: set token", subscription.Id), e)
			continue
		}
		r.logger.Info(fmt.Sprintf("token %s stored for subscription %s", secret(n.Token), subscription.Id))
	}
}

func (r *Reconciler) paymentFailed(ctx context.Context, n *entity.Notification, order *entity.Order) error {
	r.logger.Debug(fmt.Sprintf("order %s: failed", order.Id))

	status := strings.ToLower(n.PaymentStatus)
	if status == "" {
		status = "failed"
	}
	note := fmt.Sprintf("Payment %s via ITN.", status)
	if err := r.database.UpdateOrderStatus(ctx, order.Id, order.Status, r.conf.FailureStatus, note); err != nil {
		return err
	}
	r.sendFailedEmail(n, order)
	return nil
}

// CancelSubscriptionListener reacts to a subscription cancelled on the shop
// side. Events raised by its own updates carry a marker in the context and
// are ignored.
func (r *Reconciler) CancelSubscriptionListener(ctx context.Context, subscription *entity.Subscription) {
	if cancelling, _ := ctx.Value(cancellingKey).(bool); cancelling {
		return
	}
	token, err := r.database.GetSubscriptionMeta(ctx, subscription.Id, entity.MetaSubscriptionToken)
	if err != nil {
		r.logger.Error(fmt.Sprintf("subscription %s: get token", subscription.Id), err)
		return
	}
	if token == "" {
		return
	}

	ctx = context.WithValue(ctx, cancellingKey, true)
	if err = r.gateway.CancelToken(ctx, token); err != nil {
		r.logger.Error(fmt.Sprintf("subscription %s: cancel token", subscription.Id), err)
		return
	}
	if err = r.database.DeleteSubscriptionMeta(ctx, subscription.Id, entity.MetaSubscriptionToken); err != nil {
		r.logger.Error(fmt.Sprintf("subscription %s: delete token", subscription.Id), err)
	}
	r.logger.Info(fmt.Sprintf("subscription %s: token %s cancelled", subscription.Id, secret(token)))
}

// Register subscribes the cancellation listener.
func (r *Reconciler) Register(hooks services.Hooks) {
	hooks.AddSubscriptionCancelled(cancelListenerName, r.CancelSubscriptionListener)
}

// amountMismatch returns the order note for a paid amount that differs from
// the expected one, or an empty string. The note is written only by the
// notification that wins the status change.
func (r *Reconciler) amountMismatch(n *entity.Notification, order *entity.Order, expected decimal.Decimal) string {
	if n.Amount == "" {
		return ""
	}
	paid, err := decimal.NewFromString(n.Amount)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("order %s: invalid amount %s", order.Id, n.Amount))
		return ""
	}
	if paid.Sub(expected).Abs().LessThanOrEqual(amountEpsilon) {
		return ""
	}
	r.logger.Warn(fmt.Sprintf("order %s: amount mismatch: paid %s; expected %s", order.Id, paid, expected))
	return fmt.Sprintf("Amount mismatch: paid %s, expected %s", paid, expected)
}

// resultEndpoint is the script name the processor signs notifications with.
func (r *Reconciler) resultEndpoint() string {
	resultUrl, err := url.Parse(r.conf.ResultUrl)
	if err != nil || resultUrl.Path == "" {
		return ""
	}
	return path.Base(resultUrl.Path)
}

func (r *Reconciler) addNote(ctx context.Context, orderId, note string) {
	if note == "" {
		return
	}
	if err := r.database.AddOrderNote(ctx, orderId, note); err != nil {
		r.logger.Error(fmt.Sprintf("order %s: add note", orderId), err)
	}
}

func (r *Reconciler) setOrderMeta(ctx context.Context, orderId, key, value string) {
	if err := r.database.SetOrderMeta(ctx, orderId, key, value); err != nil {
		r.logger.Error(fmt.Sprintf("order %s: set %s", orderId, key), err)
	}
}

func (r *Reconciler) sendCompletedEmail(n *entity.Notification, order *entity.Order) {
	body := "Hi,\n\n" +
		"A PayBox transaction has been completed on your website\n" +
		"------------------------------------------------------------\n" +
		fmt.Sprintf("Site: %s (%s)\n", r.conf.SiteName, r.conf.SiteUrl) +
		fmt.Sprintf("Purchase ID: %s\n", order.Id) +
		fmt.Sprintf("PayBox Transaction ID: %s\n", n.PaymentId) +
		fmt.Sprintf("PayBox Payment Status: %s\n", n.PaymentStatus) +
		fmt.Sprintf("Order Status Code: %s", order.Status)
	r.sendDebugEmail("PayBox ITN on your site", body)
}

func (r *Reconciler) sendFailedEmail(n *entity.Notification, order *entity.Order) {
	body := "Hi,\n\n" +
		"A failed PayBox transaction on your website requires attention\n" +
		"------------------------------------------------------------\n" +
		fmt.Sprintf("Site: %s (%s)\n", r.conf.SiteName, r.conf.SiteUrl) +
		fmt.Sprintf("Purchase ID: %s\n", order.Id) +
		fmt.Sprintf("User ID: %s\n", order.UserId) +
		fmt.Sprintf("PayBox Transaction ID: %s\n", n.PaymentId) +
		fmt.Sprintf("PayBox Payment Status: %s", n.PaymentStatus)
	r.sendDebugEmail("PayBox ITN Transaction on your site", body)
}

func (r *Reconciler) sendDebugEmail(subject, body string) {
	if !r.conf.SendDebugEmail || r.mailer == nil || r.conf.DebugEmail == "" {
		return
	}
	if err := r.mailer.Send(r.conf.DebugEmail, subject, body); err != nil {
		r.logger.Error("send debug email", err)
	}
}
