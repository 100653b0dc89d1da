package domain_test

import (
	"context"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestCombineHooks(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnMutation: func(context.Context, *domain.MutationEvent) { calls = append(calls, "a:mutation") },
	}
	b := domain.LifecycleHooks{
		OnMutation: func(context.Context, *domain.MutationEvent) { calls = append(calls, "b:mutation") },
		OnEvict:    func(context.Context, []domain.VersionID) { calls = append(calls, "b:evict") },
	}

	h := domain.CombineHooks(a, domain.LifecycleHooks{}, b)
	h.OnMutation(context.Background(), &domain.MutationEvent{})
	h.OnEvict(context.Background(), nil)

	assert.Equal(t, []string{"a:mutation", "b:mutation", "b:evict"}, calls)
}

func TestCombineHooks_Empty(t *testing.T) {
	h := domain.CombineHooks()
	assert.Nil(t, h.OnMutation)
	assert.Nil(t, h.OnEvict)
}
