package pipeline

import (
	"context"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
	"nutriscan/internal/infra"
)

// Split runs recognition on the image, then quantification on the recognized
// items as plain text. The items echoed back by the second stage are not
// matched against the first stage; whatever it returns is used.
type Split struct {
	client  inference.Client
	prompts prompts
	logger  *infra.Logger
}

func (s *Split) Mode() Mode { return ModeSplit }

func (s *Split) Estimate(ctx context.Context, image inference.Asset) ([]domain.NutritionRecord, error) {
	foodItems, items, err := s.Recognize(ctx, image)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("food_items", len(items)).Msg("pipeline: recognition finished")
	return s.Quantify(ctx, foodItems)
}

// Recognize returns the raw recognition response together with its parsed
// items. The raw text is what the quantification stage receives.
func (s *Split) Recognize(ctx context.Context, image inference.Asset) (string, []domain.FoodItem, error) {
	raw, err := s.client.Infer(ctx,
		[]inference.Part{inference.File(image), inference.Text(s.prompts.recognition)},
		recognitionSchema(s.prompts),
	)
	if err != nil {
		return "", nil, err
	}
	items, err := parseFoodItems(raw)
	if err != nil {
		return "", nil, err
	}
	return raw, items, nil
}

// Quantify asks for calories and carbohydrates of the given food items JSON.
func (s *Split) Quantify(ctx context.Context, foodItems string) ([]domain.NutritionRecord, error) {
	raw, err := s.client.Infer(ctx,
		[]inference.Part{inference.Text(quantificationPrompt(s.prompts, foodItems))},
		quantificationSchema(s.prompts),
	)
	if err != nil {
		return nil, err
	}
	return parseNutritionData(raw)
}

var _ Estimator = (*Split)(nil)
