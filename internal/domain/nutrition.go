package domain

// DishID identifies one meal sample in the dataset.
type DishID = string

// FoodItem is a recognized food with its estimated portion, e.g. "1 xícara".
type FoodItem struct {
	Name    string `json:"name"`
	Portion string `json:"portion"`
}

// NutritionRecord is the quantified nutrition of one food item. Calories are
// in kcal and carbohydrates in grams.
type NutritionRecord struct {
	Name          string `json:"name"`
	Portion       string `json:"portion"`
	Calories      int    `json:"calories"`
	Carbohydrates int    `json:"carbohydrates"`
}
