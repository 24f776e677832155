package validation

import (
	"math"
	"testing"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

func TestIsValidBloodType(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "O negative", value: "O-", valid: true},
		{name: "AB positive", value: "AB+", valid: true},
		{name: "missing rhesus", value: "AB", valid: false},
		{name: "lower case", value: "o-", valid: false},
		{name: "empty string", value: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidBloodType(tt.value)
			if got != tt.valid {
				t.Fatalf("IsValidBloodType(%q) = %v, want %v", tt.value, got, tt.valid)
			}
		})
	}
}

func TestIsValidCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		coords []float64
		valid  bool
	}{
		{name: "valid point", coords: []float64{77.59, 12.97}, valid: true},
		{name: "single coordinate", coords: []float64{77.59}, valid: false},
		{name: "three coordinates", coords: []float64{1, 2, 3}, valid: false},
		{name: "NaN", coords: []float64{math.NaN(), 1}, valid: false},
		{name: "infinity", coords: []float64{1, math.Inf(1)}, valid: false},
		{name: "latitude out of range", coords: []float64{10, 91}, valid: false},
		{name: "longitude out of range", coords: []float64{-181, 10}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidCoordinates(tt.coords)
			if got != tt.valid {
				t.Fatalf("IsValidCoordinates(%v) = %v, want %v", tt.coords, got, tt.valid)
			}
		})
	}
}

func TestStructTags(t *testing.T) {
	type input struct {
		BloodType string    `validate:"required,bloodtype"`
		Coords    []float64 `validate:"lnglat"`
		Date      string    `validate:"date"`
		Start     string    `validate:"timeofday"`
		Role      string    `validate:"role"`
	}

	ok := input{BloodType: "B+", Coords: []float64{1, 2}, Date: "2026-11-01", Start: "09:30", Role: string(model.RoleDonor)}
	if err := Struct(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := input{BloodType: "Z", Coords: []float64{1}, Date: "01/11/2026", Start: "25:00", Role: "admin"}
	if err := Struct(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}
