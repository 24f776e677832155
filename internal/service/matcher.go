package service

import (
	"context"
	"math"
	"time"

	"github.com/mmeshcher/bloodbank-system/internal/geo"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

type geoSearcher interface {
	FindDonorsNear(ctx context.Context, q repository.DonorQuery) ([]model.DonorMatch, error)
	FindRequestsNear(ctx context.Context, q repository.RequestQuery) ([]model.RequestMatch, error)
}

// DonorMatcher выполняет геопоиск доноров и открытых запросов. Состояние не меняет.
type DonorMatcher struct {
	repo     geoSearcher
	cooldown *CooldownPolicy
	now      func() time.Time
}

// FindDonorsNear возвращает доступных доноров той же группы крови в радиусе запроса,
// исключая автора запроса и доноров в периоде отдыха. Ближайшие первыми.
func (m *DonorMatcher) FindDonorsNear(ctx context.Context, req *model.Request) ([]model.DonorMatch, error) {
	excluded, err := m.cooldown.IneligibleDonors(ctx, m.now())
	if err != nil {
		return nil, internalError("load ineligible donors", err)
	}
	excluded = append(excluded, req.RequesterID)

	matches, err := m.repo.FindDonorsNear(ctx, repository.DonorQuery{
		Point:      req.Location,
		MaxMeters:  geo.KmToMeters(req.MaxDistanceKm),
		BloodType:  req.BloodType,
		ExcludeIDs: excluded,
	})
	if err != nil {
		return nil, internalError("find donors near", err)
	}
	return matches, nil
}

// FindRequestsNear возвращает открытые запросы с группой крови донора в радиусе от его местоположения.
func (m *DonorMatcher) FindRequestsNear(ctx context.Context, donor *model.User, maxDistanceKm float64) ([]model.RequestMatch, error) {
	if donor.BloodType == "" {
		return nil, validationError("donor has no blood type")
	}
	if donor.Location == nil {
		return nil, validationError("user has no location")
	}
	return m.findRequests(ctx, *donor.Location, maxDistanceKm, donor.BloodType)
}

// FindOpenRequestsNear возвращает открытые запросы любой группы крови в радиусе от точки.
func (m *DonorMatcher) FindOpenRequestsNear(ctx context.Context, point model.GeoPoint, maxDistanceKm float64) ([]model.RequestMatch, error) {
	return m.findRequests(ctx, point, maxDistanceKm, "")
}

func (m *DonorMatcher) findRequests(ctx context.Context, point model.GeoPoint, maxDistanceKm float64, bt model.BloodType) ([]model.RequestMatch, error) {
	if math.IsNaN(maxDistanceKm) || math.IsInf(maxDistanceKm, 0) || maxDistanceKm < 1 {
		return nil, validationError("maxDistance must be a finite number of at least 1 km")
	}

	matches, err := m.repo.FindRequestsNear(ctx, repository.RequestQuery{
		Point:     point,
		MaxMeters: geo.KmToMeters(maxDistanceKm),
		BloodType: bt,
	})
	if err != nil {
		return nil, internalError("find requests near", err)
	}
	return matches, nil
}
