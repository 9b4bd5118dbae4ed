package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"paybox/entity"
	"paybox/services"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrMockNotFound = errors.New("mock: not found")

// MockDatabase is an in-memory order and subscription store.
type MockDatabase struct {
	mu            sync.Mutex
	orders        map[string]*entity.Order
	orderMeta     map[string]map[string]string
	subscriptions map[string]*entity.Subscription
	subMeta       map[string]map[string]string
	Notes         map[string][]string
	Notifications []*entity.Notification
	Logs          []services.Data
	StatusUpdates int

	// OnGetOrder runs after an order was read, outside the lock.
	OnGetOrder func(orderId string)
	// OnDeleteSubscriptionMeta runs after a metadata key was deleted,
	// outside the lock, the way a shop raises events on save.
	OnDeleteSubscriptionMeta func(ctx context.Context, subscription *entity.Subscription)
}

func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		orders:        make(map[string]*entity.Order),
		orderMeta:     make(map[string]map[string]string),
		subscriptions: make(map[string]*entity.Subscription),
		subMeta:       make(map[string]map[string]string),
		Notes:         make(map[string][]string),
	}
}

func (m *MockDatabase) PutOrder(order *entity.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := *order
	m.orders[order.Id] = &o
}

func (m *MockDatabase) PutSubscription(subscription *entity.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *subscription
	m.subscriptions[subscription.Id] = &s
}

func (m *MockDatabase) Status(orderId string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderId].Status
}

func (m *MockDatabase) OrderMeta(orderId, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderMeta[orderId][key]
}

func (m *MockDatabase) SubscriptionMeta(subscriptionId, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subMeta[subscriptionId][key]
}

func (m *MockDatabase) WriteLogMessage(data services.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, data)
	return nil
}

func (m *MockDatabase) SaveNotification(_ context.Context, notification *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, notification)
	return nil
}

func (m *MockDatabase) GetOrder(_ context.Context, orderId string) (*entity.Order, error) {
	m.mu.Lock()
	order, ok := m.orders[orderId]
	if !ok {
		m.mu.Unlock()
		return nil, ErrMockNotFound
	}
	o := *order
	m.mu.Unlock()
	if m.OnGetOrder != nil {
		m.OnGetOrder(orderId)
	}
	return &o, nil
}

// SetStatus changes an order status directly, like another process would.
func (m *MockDatabase) SetStatus(orderId, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderId].Status = status
}

func (m *MockDatabase) UpdateOrderStatus(_ context.Context, orderId, from, to, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderId]
	if !ok {
		return ErrMockNotFound
	}
	if order.Status != from {
		return fmt.Errorf("order %s: %w", orderId, services.ErrStatusChanged)
	}
	order.Status = to
	m.StatusUpdates++
	m.Notes[orderId] = append(m.Notes[orderId], note)
	return nil
}

func (m *MockDatabase) AddOrderNote(_ context.Context, orderId, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes[orderId] = append(m.Notes[orderId], note)
	return nil
}

func (m *MockDatabase) GetOrderMeta(_ context.Context, orderId, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderMeta[orderId][key], nil
}

func (m *MockDatabase) SetOrderMeta(_ context.Context, orderId, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderMeta[orderId] == nil {
		m.orderMeta[orderId] = make(map[string]string)
	}
	m.orderMeta[orderId][key] = value
	return nil
}

func (m *MockDatabase) GetSubscription(_ context.Context, subscriptionId string) (*entity.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subscription, ok := m.subscriptions[subscriptionId]
	if !ok {
		return nil, ErrMockNotFound
	}
	s := *subscription
	return &s, nil
}

func (m *MockDatabase) GetSubscriptionsForOrder(_ context.Context, orderId string) ([]*entity.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Subscription
	if order, ok := m.orders[orderId]; ok && order.RenewalOf != "" {
		if subscription, ok := m.subscriptions[order.RenewalOf]; ok {
			s := *subscription
			result = append(result, &s)
		}
		return result, nil
	}
	for _, id := range sortedKeys(m.subscriptions) {
		if m.subscriptions[id].ParentOrderId == orderId {
			s := *m.subscriptions[id]
			result = append(result, &s)
		}
	}
	return result, nil
}

func (m *MockDatabase) UpdateSubscriptionStatus(_ context.Context, subscriptionId, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subscription, ok := m.subscriptions[subscriptionId]
	if !ok {
		return ErrMockNotFound
	}
	subscription.Status = status
	return nil
}

func (m *MockDatabase) GetSubscriptionMeta(_ context.Context, subscriptionId, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subMeta[subscriptionId][key], nil
}

func (m *MockDatabase) SetSubscriptionMeta(_ context.Context, subscriptionId, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subMeta[subscriptionId] == nil {
		m.subMeta[subscriptionId] = make(map[string]string)
	}
	m.subMeta[subscriptionId][key] = value
	return nil
}

func (m *MockDatabase) DeleteSubscriptionMeta(ctx context.Context, subscriptionId, key string) error {
	m.mu.Lock()
	delete(m.subMeta[subscriptionId], key)
	subscription := m.subscriptions[subscriptionId]
	m.mu.Unlock()

	if m.OnDeleteSubscriptionMeta != nil && subscription != nil {
		m.OnDeleteSubscriptionMeta(ctx, subscription)
	}
	return nil
}

func sortedKeys(subscriptions map[string]*entity.Subscription) []string {
	keys := make([]string, 0, len(subscriptions))
	for key := range subscriptions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MockCanceller records cancelled tokens.
type MockCanceller struct {
	mu        sync.Mutex
	Tokens    []string
	CallCount int
	Err       error
}

func (m *MockCanceller) CancelToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return m.Err
	}
	m.Tokens = append(m.Tokens, token)
	return nil
}

// MockMailer records sent messages.
type MockMailer struct {
	mu       sync.Mutex
	Subjects []string
}

func (m *MockMailer) Send(_, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subjects = append(m.Subjects, subject)
	return nil
}

// MockGuard is an in-memory delivery guard.
type MockGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *MockGuard) Key(orderId, paymentId, result string) string {
	return orderId + ":" + paymentId + ":" + result
}

func (m *MockGuard) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	seen := m.keys[key]
	m.keys[key] = true
	return seen, nil
}

// MockPayments implements services.Payments for the http server tests.
type MockPayments struct {
	mu             sync.Mutex
	PayOrderFunc   func(ctx context.Context, orderId, clientIP string) (string, error)
	NotifyErr      error
	NotifyValues   []url.Values
	Cancelled      []string
	RenewedAmounts map[string]decimal.Decimal
	Released       []string
	Err            error
}

func (m *MockPayments) PayOrder(ctx context.Context, orderId, clientIP string) (string, error) {
	if m.PayOrderFunc != nil {
		return m.PayOrderFunc(ctx, orderId, clientIP)
	}
	return "", m.Err
}

func (m *MockPayments) Notify(_ context.Context, values url.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyValues = append(m.NotifyValues, values)
	return m.NotifyErr
}

func (m *MockPayments) SubscriptionCancelled(_ context.Context, subscriptionId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, subscriptionId)
	return m.Err
}

func (m *MockPayments) RenewSubscription(_ context.Context, orderId string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RenewedAmounts == nil {
		m.RenewedAmounts = make(map[string]decimal.Decimal)
	}
	m.RenewedAmounts[orderId] = amount
	return m.Err
}

func (m *MockPayments) ReleasePreOrder(_ context.Context, orderId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = append(m.Released, orderId)
	return m.Err
}

func testLogger() services.LogHandler {
	return NewLogger("test", false, nil)
}

func testMerchantConfig() entity.MerchantConfig {
	return entity.MerchantConfig{
		MerchantId:    12345,
		MerchantKey:   "secret",
		ApiHost:       "api.paybox.money",
		Language:      "ru",
		Currencies:    []string{"KZT", "RUB", "USD"},
		TestMode:      true,
		SiteUrl:       "https://shop.example.com",
		ResultUrl:     "https://shop.example.com/notify",
		SuccessStatus: entity.StatusProcessing,
		FailureStatus: entity.StatusFailed,
	}
}
