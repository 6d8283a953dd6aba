package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"nutriscan/internal/domain"
)

// Wire shapes use pointers so absent or null fields can be told apart from
// zero values. Every field the response schemas declare is required.
type wireFoodItem struct {
	Name    *string `json:"name"`
	Portion *string `json:"portion"`
}

type wireNutritionRecord struct {
	Name          *string `json:"name"`
	Portion       *string `json:"portion"`
	Calories      *int    `json:"calories"`
	Carbohydrates *int    `json:"carbohydrates"`
}

type recognitionPayload struct {
	FoodItems *[]*wireFoodItem `json:"foodItems"`
}

type quantificationPayload struct {
	NutritionData *[]*wireNutritionRecord `json:"nutritionData"`
}

func parseNutritionArray(raw string) ([]domain.NutritionRecord, error) {
	fragment := extractJSONFragment(raw)
	if !strings.HasPrefix(fragment, "[") {
		return nil, fmt.Errorf("%w: expected a JSON array", domain.ErrParse)
	}
	var wire []*wireNutritionRecord
	if err := decodeJSON(fragment, &wire); err != nil {
		return nil, err
	}
	return toNutritionRecords(wire)
}

func parseFoodItems(raw string) ([]domain.FoodItem, error) {
	var payload recognitionPayload
	if err := decodeJSON(extractJSONFragment(raw), &payload); err != nil {
		return nil, err
	}
	if payload.FoodItems == nil {
		return nil, fmt.Errorf("%w: missing foodItems", domain.ErrParse)
	}
	items := make([]domain.FoodItem, 0, len(*payload.FoodItems))
	for i, w := range *payload.FoodItems {
		if w == nil || w.Name == nil || w.Portion == nil {
			return nil, fmt.Errorf("%w: foodItems[%d]: name and portion are required", domain.ErrParse, i)
		}
		items = append(items, domain.FoodItem{Name: *w.Name, Portion: *w.Portion})
	}
	return items, nil
}

func parseNutritionData(raw string) ([]domain.NutritionRecord, error) {
	var payload quantificationPayload
	if err := decodeJSON(extractJSONFragment(raw), &payload); err != nil {
		return nil, err
	}
	if payload.NutritionData == nil {
		return nil, fmt.Errorf("%w: missing nutritionData", domain.ErrParse)
	}
	return toNutritionRecords(*payload.NutritionData)
}

func toNutritionRecords(wire []*wireNutritionRecord) ([]domain.NutritionRecord, error) {
	records := make([]domain.NutritionRecord, 0, len(wire))
	for i, w := range wire {
		if w == nil {
			return nil, fmt.Errorf("%w: record %d is null", domain.ErrParse, i)
		}
		var missing []string
		if w.Name == nil {
			missing = append(missing, "name")
		}
		if w.Portion == nil {
			missing = append(missing, "portion")
		}
		if w.Calories == nil {
			missing = append(missing, "calories")
		}
		if w.Carbohydrates == nil {
			missing = append(missing, "carbohydrates")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: record %d missing %s", domain.ErrParse, i, strings.Join(missing, ", "))
		}
		records = append(records, domain.NutritionRecord{
			Name:          *w.Name,
			Portion:       *w.Portion,
			Calories:      *w.Calories,
			Carbohydrates: *w.Carbohydrates,
		})
	}
	return records, nil
}

func decodeJSON(fragment string, out any) error {
	if fragment == "" {
		return fmt.Errorf("%w: empty payload", domain.ErrParse)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(fragment)))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrParse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: %w", domain.ErrParse, errors.New("trailing data after JSON value"))
	}
	return nil
}

// extractJSONFragment strips code fences and surrounding prose that some
// models add even in JSON mode.
func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
