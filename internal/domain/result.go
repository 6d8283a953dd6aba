package domain

import "time"

// Result is the persisted outcome of one dish. Totals always equal the sums
// over NutritionData.
type Result struct {
	DishID             DishID            `json:"dishId"`
	NutritionData      []NutritionRecord `json:"nutritionData"`
	TotalCalories      int               `json:"totalCalories"`
	TotalCarbohydrates int               `json:"totalCarbohydrates"`
	ElapsedTime        float64           `json:"elapsedTime"`
}

// NewResult aggregates records into a Result. Values are summed as returned
// by the model; nothing is clamped or validated.
func NewResult(id DishID, records []NutritionRecord, elapsed time.Duration) Result {
	if records == nil {
		records = []NutritionRecord{}
	}
	calories, carbohydrates := Totals(records)
	return Result{
		DishID:             id,
		NutritionData:      records,
		TotalCalories:      calories,
		TotalCarbohydrates: carbohydrates,
		ElapsedTime:        elapsed.Seconds(),
	}
}

// Totals sums calories and carbohydrates over records.
func Totals(records []NutritionRecord) (calories, carbohydrates int) {
	for _, r := range records {
		calories += r.Calories
		carbohydrates += r.Carbohydrates
	}
	return calories, carbohydrates
}
