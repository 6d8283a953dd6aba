package pipeline

import "nutriscan/internal/inference"

func foodItemSchema(p prompts) *inference.Schema {
	return inference.Object(
		inference.Field{Name: "name", Schema: inference.String(p.name)},
		inference.Field{Name: "portion", Schema: inference.String(p.portion)},
	)
}

func nutritionRecordSchema(p prompts) *inference.Schema {
	return inference.Object(
		inference.Field{Name: "name", Schema: inference.String(p.name)},
		inference.Field{Name: "portion", Schema: inference.String(p.portion)},
		inference.Field{Name: "calories", Schema: inference.Integer(p.calories)},
		inference.Field{Name: "carbohydrates", Schema: inference.Integer(p.carbohydrates)},
	)
}

// singleCallSchema is a bare array of nutrition records.
func singleCallSchema(p prompts) *inference.Schema {
	return inference.ArrayOf(nutritionRecordSchema(p))
}

func recognitionSchema(p prompts) *inference.Schema {
	return inference.Object(inference.Field{Name: "foodItems", Schema: inference.ArrayOf(foodItemSchema(p))})
}

func quantificationSchema(p prompts) *inference.Schema {
	return inference.Object(inference.Field{Name: "nutritionData", Schema: inference.ArrayOf(nutritionRecordSchema(p))})
}
