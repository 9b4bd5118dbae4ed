package internal

import (
	"context"
	"paybox/entity"
	"paybox/services"
	"sort"
	"sync"
)

// Hooks keeps named listeners of order-management events. Listeners run
// outside the lock and may add or remove listeners themselves.
type Hooks struct {
	mutex     sync.RWMutex
	cancelled map[string]services.SubscriptionListener
}

func NewHooks() *Hooks {
	return &Hooks{
		cancelled: make(map[string]services.SubscriptionListener),
	}
}

func (h *Hooks) AddSubscriptionCancelled(name string, listener services.SubscriptionListener) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.cancelled[name] = listener
}

func (h *Hooks) RemoveSubscriptionCancelled(name string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.cancelled, name)
}

func (h *Hooks) DispatchSubscriptionCancelled(ctx context.Context, subscription *entity.Subscription) {
	for _, listener := range h.listeners() {
		listener(ctx, subscription)
	}
}

func (h *Hooks) listeners() []services.SubscriptionListener {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	names := make([]string, 0, len(h.cancelled))
	for name := range h.cancelled {
		names = append(names, name)
	}
	sort.Strings(names)

	listeners := make([]services.SubscriptionListener, 0, len(names))
	for _, name := range names {
		listeners = append(listeners, h.cancelled[name])
	}
	return listeners
}
