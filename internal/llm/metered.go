package llm

import (
	"context"

	"github.com/dataagent/dataagent/internal/observability"
)

// Metered records call metrics and fills Response.Cost from a price table.
type Metered struct {
	next    Client
	pricing Pricing
}

func NewMetered(next Client, pricing Pricing) *Metered {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Metered{next: next, pricing: pricing}
}

func (m *Metered) Name() string {
	return m.next.Name()
}

func (m *Metered) Chat(ctx context.Context, req Request) (Response, error) {
	resp, err := m.next.Chat(ctx, req)
	if err != nil {
		observability.ObserveLLMCall(m.next.Name(), err, 0, 0, 0)
		return Response{}, err
	}
	resp.Usage = normalizeUsage(resp.Usage)
	if cost, ok := EstimateCost(m.pricing, m.next.Name(), resp.Model, resp.Usage); ok {
		resp.Cost = cost
	}
	observability.ObserveLLMCall(m.next.Name(), nil, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Cost)
	return resp, nil
}
