// Package validation содержит проверки входных данных сервиса донорства.
package validation

import (
	"math"
	"reflect"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("bloodtype", func(fl validator.FieldLevel) bool {
		return IsValidBloodType(fl.Field().String())
	})
	_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("urgency", func(fl validator.FieldLevel) bool {
		return model.Urgency(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("lnglat", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.Slice {
			return false
		}
		coords := make([]float64, 0, fl.Field().Len())
		for i := 0; i < fl.Field().Len(); i++ {
			coords = append(coords, fl.Field().Index(i).Float())
		}
		return IsValidCoordinates(coords)
	})
	_ = validate.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		return timeOfDayRe.MatchString(fl.Field().String())
	})
}

// Struct проверяет структуру по тегам validate.
func Struct(v any) error {
	return validate.Struct(v)
}

// IsValidBloodType проверяет, что строка является известной группой крови.
func IsValidBloodType(s string) bool {
	return model.BloodType(s).Valid()
}

// IsValidCoordinates проверяет пару [долгота, широта]: ровно два конечных числа в допустимых диапазонах.
func IsValidCoordinates(coords []float64) bool {
	if len(coords) != 2 {
		return false
	}
	lng, lat := coords[0], coords[1]
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

// IsValidPoint проверяет точку GeoJSON.
func IsValidPoint(p model.GeoPoint) bool {
	if p.Type != "" && p.Type != "Point" {
		return false
	}
	return IsValidCoordinates(p.Coordinates)
}
