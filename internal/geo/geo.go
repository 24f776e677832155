// Package geo содержит расчёты расстояний по поверхности Земли.
package geo

import (
	"math"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// EarthRadiusMeters совпадает с радиусом Земли, который MongoDB использует для сферических запросов.
const EarthRadiusMeters = 6378100.0

// DistanceMeters возвращает расстояние по большому кругу между точками (формула гаверсинусов).
func DistanceMeters(a, b model.GeoPoint) float64 {
	lat1 := toRadians(a.Lat())
	lat2 := toRadians(b.Lat())
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng() - a.Lng())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceKm возвращает расстояние между точками в километрах.
func DistanceKm(a, b model.GeoPoint) float64 {
	return DistanceMeters(a, b) / 1000
}

// KmToMeters переводит километры в метры.
func KmToMeters(km float64) float64 {
	return km * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
