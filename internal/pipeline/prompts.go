package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale matches the language of the dataset annotations.
var DefaultLocale = language.BrazilianPortuguese

var (
	supportedLocales = []language.Tag{language.BrazilianPortuguese, language.English}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// prompts holds the instructions and schema hints for one language.
type prompts struct {
	singleCall     string
	recognition    string
	quantification string

	name          string
	portion       string
	calories      string
	carbohydrates string
}

var promptsByLocale = map[language.Tag]prompts{
	language.BrazilianPortuguese: {
		singleCall: `Você é um especialista em nutrição. Analise a imagem dessa refeição, reconheça os alimentos
e estime as porções de cada um. Em seguida, com base nas porções estimadas, calcule a quantidade
de calorias e carboidratos (em gramas) para cada alimento.`,
		recognition: `Analise a imagem da refeição, reconheça os alimentos e estime as porções de cada um.
Retorne para cada alimento o seu nome e a porção, em português.`,
		quantification: `Cada item nesse array JSON representa um alimento e a porção dele numa refeição.
Para cada alimento, calcule a quantidade de calorias (em kcal) e carboidratos (em gramas) de acordo com a porção dada.`,
		name:          "O nome do alimento (em português)",
		portion:       "A porção estimada (em português)",
		calories:      "A quantidade de calorias (em kcal)",
		carbohydrates: "A quantidade de carboidratos (em gramas)",
	},
	language.English: {
		singleCall: `You are a nutrition expert. Analyze the image of this meal, recognize the foods
and estimate the portion of each one. Then, based on the estimated portions, calculate the amount
of calories and carbohydrates (in grams) for each food.`,
		recognition: `Analyze the image of the meal, recognize the foods and estimate the portion of each one.
Return the name and the portion of every food, in English.`,
		quantification: `Each item in this JSON array represents a food and its portion in a meal.
For each food, calculate the amount of calories (in kcal) and carbohydrates (in grams) for the given portion.`,
		name:          "The name of the food (in English)",
		portion:       "The estimated portion (in English)",
		calories:      "The amount of calories (in kcal)",
		carbohydrates: "The amount of carbohydrates (in grams)",
	},
}

// ResolveLocale maps a BCP 47 tag such as "pt-BR" or "en-US" onto the closest
// supported prompt language.
func ResolveLocale(raw string) (language.Tag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLocale, nil
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, fmt.Errorf("pipeline: invalid locale %q: %w", raw, err)
	}
	_, idx, _ := localeMatcher.Match(tag)
	return supportedLocales[idx], nil
}

func promptsFor(tag language.Tag) prompts {
	if p, ok := promptsByLocale[tag]; ok {
		return p
	}
	_, idx, _ := localeMatcher.Match(tag)
	return promptsByLocale[supportedLocales[idx]]
}

// quantificationPrompt places the recognized items first, unchanged, followed
// by the instruction.
func quantificationPrompt(p prompts, foodItems string) string {
	return foodItems + "\n" + p.quantification
}
