// Package repository содержит реализации хранилища данных сервиса донорства:
// MongoDB, PostgreSQL и хранилище в памяти.
package repository

import (
	"errors"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// ErrNotFound возвращается, если запись не найдена.
var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict возвращается, если запись изменилась после чтения и условное обновление не применено.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate возвращается при нарушении уникальности (email пользователя, донор на акции, донор в запросе).
	ErrDuplicate = errors.New("duplicate record")
)

// DonorQuery описывает поиск доноров в радиусе от точки.
type DonorQuery struct {
	Point      model.GeoPoint
	MaxMeters  float64
	BloodType  model.BloodType
	ExcludeIDs []string
}

// RequestQuery описывает поиск открытых запросов в радиусе от точки.
// Пустая группа крови означает запросы любой группы.
type RequestQuery struct {
	Point     model.GeoPoint
	MaxMeters float64
	BloodType model.BloodType
}
