package internal

import (
	"context"
	"paybox/entity"
	"sync"
	"testing"
)

func TestHooksDispatchInNameOrder(t *testing.T) {
	hooks := NewHooks()
	var calls []string
	for _, name := range []string{"b", "c", "a"} {
		hooks.AddSubscriptionCancelled(name, func(_ context.Context, _ *entity.Subscription) {
			calls = append(calls, name)
		})
	}

	hooks.DispatchSubscriptionCancelled(context.Background(), &entity.Subscription{Id: "S1"})

	if len(calls) != 3 || calls[0] != "a" || calls[1] != "b" || calls[2] != "c" {
		t.Errorf("calls = %v, want [a b c]", calls)
	}
}

func TestHooksRemove(t *testing.T) {
	hooks := NewHooks()
	called := false
	hooks.AddSubscriptionCancelled("x", func(_ context.Context, _ *entity.Subscription) { called = true })
	hooks.RemoveSubscriptionCancelled("x")
	hooks.RemoveSubscriptionCancelled("missing")

	hooks.DispatchSubscriptionCancelled(context.Background(), &entity.Subscription{Id: "S1"})

	if called {
		t.Error("removed listener was called")
	}
}

func TestHooksListenerMayChangeRegistry(t *testing.T) {
	hooks := NewHooks()
	count := 0
	var listener func(ctx context.Context, s *entity.Subscription)
	listener = func(ctx context.Context, s *entity.Subscription) {
		count++
		hooks.RemoveSubscriptionCancelled("self")
		defer hooks.AddSubscriptionCancelled("self", listener)
		hooks.DispatchSubscriptionCancelled(ctx, s)
	}
	hooks.AddSubscriptionCancelled("self", listener)

	hooks.DispatchSubscriptionCancelled(context.Background(), &entity.Subscription{Id: "S1"})

	if count != 1 {
		t.Errorf("listener called %d times, want 1", count)
	}
	if len(hooks.listeners()) != 1 {
		t.Error("listener must be registered again")
	}
}

func TestHooksConcurrentUse(t *testing.T) {
	hooks := NewHooks()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hooks.AddSubscriptionCancelled("l", func(_ context.Context, _ *entity.Subscription) {})
		}()
		go func() {
			defer wg.Done()
			hooks.DispatchSubscriptionCancelled(context.Background(), &entity.Subscription{Id: "S1"})
		}()
	}
	wg.Wait()
}
