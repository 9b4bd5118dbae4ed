package internal

import (
	"context"
	"fmt"
	"math/rand"
	"paybox/entity"
	"paybox/services"
	"regexp"
	"strconv"
)

const (
	paymentLifetime = 86400
	saltMin         = 21
	saltMax         = 43433
	subscriptionNew = "2"
)

var nonDigits = regexp.MustCompile(`\D`)

// RequestBuilder assembles the signed init_payment request of an order.
type RequestBuilder struct {
	conf          entity.MerchantConfig
	signer        *Signer
	receipts      *ReceiptGenerator
	subscriptions services.Subscriptions
	salt          func() int
}

func NewRequestBuilder(conf entity.MerchantConfig, signer *Signer, subscriptions services.Subscriptions) *RequestBuilder {
	return &RequestBuilder{
		conf:          conf,
		signer:        signer,
		receipts:      NewReceiptGenerator(conf.Receipt),
		subscriptions: subscriptions,
		salt: func() int {
			return saltMin + rand.Intn(saltMax-saltMin+1)
		},
	}
}

// Build returns the request fields in wire order, signed with pg_sig last.
func (b *RequestBuilder) Build(ctx context.Context, order *entity.Order, clientIP string) (entity.Params, error) {
	if order == nil || order.Id == "" {
		return nil, ErrInvalidOrder
	}
	if !order.TotalAmount().IsPositive() {
		return nil, fmt.Errorf("order %s: %w", order.Id, ErrDegenerateOrder)
	}
	if !b.conf.SupportsCurrency(order.Currency) {
		return nil, fmt.Errorf("currency %s: %w", order.Currency, ErrUnsupportedTransaction)
	}
	preOrderFee, hasFee := order.PreOrderFee()
	if order.RequiresTokenization() && !hasFee {
		return nil, fmt.Errorf("pre-order %s has no fee: %w", order.Id, ErrUnsupportedTransaction)
	}

	testingMode := 0
	if b.conf.TestMode {
		testingMode = 1
	}

	params := entity.Params{
		{Key: "pg_amount", Value: order.TotalAmount()},
		{Key: "pg_description", Value: b.description(order.Id)},
		{Key: "pg_encoding", Value: "UTF-8"},
		{Key: "pg_currency", Value: order.Currency},
		{Key: "pg_user_ip", Value: clientIP},
		{Key: "pg_lifetime", Value: paymentLifetime},
		{Key: "pg_language", Value: b.conf.Language},
		{Key: "pg_merchant_id", Value: b.conf.MerchantId},
		{Key: "pg_order_id", Value: order.Id},
		{Key: "pg_result_url", Value: b.conf.ResultUrl},
		{Key: "pg_request_method", Value: "POST"},
		{Key: "pg_salt", Value: strconv.Itoa(b.salt())},
		{Key: "pg_success_url", Value: b.conf.SiteUrl + "/checkout/order-received/"},
		{Key: "pg_failure_url", Value: b.conf.SiteUrl},
		{Key: "pg_user_phone", Value: nonDigits.ReplaceAllString(order.BillingPhone, "")},
		{Key: "pg_user_contact_email", Value: order.BillingEmail},
		{Key: "pg_auto_clearing", Value: 1},
		{Key: "pg_testing_mode", Value: testingMode},
	}

	if b.conf.Receipt.Enabled {
		receipt, err := b.receipts.Generate(order)
		if err != nil {
			return nil, err
		}
		b.receipts.Attach(&params, receipt)
	}

	registerToken := order.ContainsSubscription || order.RequiresTokenization()
	if !registerToken && order.IsRenewal() {
		flagged, err := b.renewalFlagged(ctx, order.Id)
		if err != nil {
			return nil, err
		}
		registerToken = flagged
	}
	if registerToken {
		params.Add("subscription_type", subscriptionNew)
	}

	// only the fee is charged now, the product is charged on release
	if order.RequiresTokenization() {
		params.Set("pg_amount", preOrderFee)
	}

	params.Add("pg_sig", b.signer.Sign(initPaymentPath, params))
	return params, nil
}

func (b *RequestBuilder) description(orderId string) string {
	if b.conf.Language == "en" {
		return "Payment for order #" + orderId
	}
	return "Оплата заказа №" + orderId
}

// renewalFlagged reports whether the first subscription of a renewal order
// asks for a new token.
func (b *RequestBuilder) renewalFlagged(ctx context.Context, orderId string) (bool, error) {
	if b.subscriptions == nil {
		return false, nil
	}
	subscriptions, err := b.subscriptions.GetSubscriptionsForOrder(ctx, orderId)
	if err != nil {
		return false, fmt.Errorf("subscriptions of renewal order %s: %w", orderId, err)
	}
	if len(subscriptions) == 0 {
		return false, nil
	}
	flag, err := b.subscriptions.GetSubscriptionMeta(ctx, subscriptions[0].Id, entity.MetaRenewalFlag)
	if err != nil {
		return false, fmt.Errorf("renewal flag of subscription %s: %w", subscriptions[0].Id, err)
	}
	return flag == "true", nil
}
