// File: internal/infra/adapters/ai/kind_router.go
package ai

import (
	"context"

	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
)

var _ adapter.ContentGenerator = (*KindRouter)(nil)

// KindRouter dispatches generation requests to a per-action-kind provider,
// so e.g. cover letters and feed posts can run on different models.
type KindRouter struct {
	byKind   map[model.ActionKind]adapter.ContentGenerator
	fallback adapter.ContentGenerator
}

func NewKindRouter(byKind map[model.ActionKind]adapter.ContentGenerator, fallback adapter.ContentGenerator) *KindRouter {
	return &KindRouter{byKind: byKind, fallback: fallback}
}

func (r *KindRouter) pick(kind model.ActionKind) adapter.ContentGenerator {
	if g := r.byKind[kind]; g != nil {
		return g
	}
	return r.fallback
}

func (r *KindRouter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(list []string) {
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	if r.fallback != nil {
		list, _ := r.fallback.ListModels(ctx)
		add(list)
	}
	for _, g := range r.byKind {
		list, _ := g.ListModels(ctx)
		add(list)
	}
	return out, nil
}

func (r *KindRouter) CountTokens(ctx context.Context, req adapter.ContentRequest) (int, error) {
	return r.pick(req.Kind).CountTokens(ctx, req)
}

func (r *KindRouter) Generate(ctx context.Context, req adapter.ContentRequest) (string, error) {
	return r.pick(req.Kind).Generate(ctx, req)
}
