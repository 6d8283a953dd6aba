package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func TestNewResultSumsRecords(t *testing.T) {
	records := []NutritionRecord{
		{Name: "arroz", Portion: "1 xícara", Calories: 200, Carbohydrates: 45},
		{Name: "feijão", Portion: "1 concha", Calories: 110, Carbohydrates: 20},
		{Name: "ovo", Portion: "1 unidade", Calories: 78, Carbohydrates: 1},
	}
	res := NewResult("dish_1", records, 1500*time.Millisecond)
	if res.TotalCalories != 388 {
		t.Fatalf("TotalCalories = %d, want 388", res.TotalCalories)
	}
	if res.TotalCarbohydrates != 66 {
		t.Fatalf("TotalCarbohydrates = %d, want 66", res.TotalCarbohydrates)
	}
	if res.ElapsedTime != 1.5 {
		t.Fatalf("ElapsedTime = %v, want 1.5", res.ElapsedTime)
	}
}

func TestNewResultOrderIndependent(t *testing.T) {
	records := []NutritionRecord{
		{Name: "a", Calories: 10, Carbohydrates: 1},
		{Name: "b", Calories: 25, Carbohydrates: 7},
		{Name: "c", Calories: 300, Carbohydrates: 40},
	}
	reversed := []NutritionRecord{records[2], records[0], records[1]}
	a := NewResult("x", records, 0)
	b := NewResult("x", reversed, 0)
	if a.TotalCalories != b.TotalCalories || a.TotalCarbohydrates != b.TotalCarbohydrates {
		t.Fatalf("totals differ after permutation: %+v vs %+v", a, b)
	}
}

func TestNewResultEmptyRecords(t *testing.T) {
	res := NewResult("empty", nil, 0)
	if res.TotalCalories != 0 || res.TotalCarbohydrates != 0 {
		t.Fatalf("expected zero totals, got %d/%d", res.TotalCalories, res.TotalCarbohydrates)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["nutritionData"].([]any); !ok {
		t.Fatalf("nutritionData should serialize as an array, got %T", decoded["nutritionData"])
	}
}

func TestNewResultKeepsNegativeValues(t *testing.T) {
	res := NewResult("neg", []NutritionRecord{{Calories: -50, Carbohydrates: 10}, {Calories: 20, Carbohydrates: -3}}, 0)
	if res.TotalCalories != -30 || res.TotalCarbohydrates != 7 {
		t.Fatalf("totals = %d/%d, want -30/7", res.TotalCalories, res.TotalCarbohydrates)
	}
}

func TestResultJSONRoundTrip(t *testing.T) {
	in := NewResult("dish_1558029802", []NutritionRecord{
		{Name: "rice", Portion: "1 cup", Calories: 200, Carbohydrates: 45},
	}, 2250*time.Millisecond)
	raw, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"upload":    fmt.Errorf("%w: disk", ErrUpload),
		"inference": fmt.Errorf("%w: %w", ErrInference, errors.New("status 500")),
		"parse":     fmt.Errorf("wrapped: %w", ErrParse),
		"write":     ErrWrite,
		"unknown":   errors.New("boom"),
	}
	for want, err := range cases {
		if got := FailureKind(err); got != want {
			t.Fatalf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
}
