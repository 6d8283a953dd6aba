package pipeline

import (
	"context"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
)

// SingleCall recognizes and quantifies the meal in one inference request.
type SingleCall struct {
	client  inference.Client
	prompts prompts
}

func (s *SingleCall) Mode() Mode { return ModeSingle }

func (s *SingleCall) Estimate(ctx context.Context, image inference.Asset) ([]domain.NutritionRecord, error) {
	raw, err := s.client.Infer(ctx,
		[]inference.Part{inference.File(image), inference.Text(s.prompts.singleCall)},
		singleCallSchema(s.prompts),
	)
	if err != nil {
		return nil, err
	}
	return parseNutritionArray(raw)
}

var _ Estimator = (*SingleCall)(nil)
