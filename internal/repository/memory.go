package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/bloodbank-system/internal/geo"
	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется в тестах и для локального запуска.
// Все операции сериализуются мьютексом, поэтому условное обновление запроса атомарно.
type MemoryRepository struct {
	mu sync.RWMutex

	users         []model.User
	requests      []model.Request
	camps         []model.BloodCamp
	campDonations []model.CampDonation
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Close ничего не делает: ресурсов для освобождения нет.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser сохраняет пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.ID == u.ID || (u.Email != "" && existing.Email == u.Email) {
			return ErrDuplicate
		}
	}
	r.users = append(r.users, cloneUser(*u))
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ID == id {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// GetUsers возвращает пользователей с указанными идентификаторами; неизвестные пропускаются.
func (r *MemoryRepository) GetUsers(_ context.Context, ids []string) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.User
	for _, u := range r.users {
		if slices.Contains(ids, u.ID) {
			res = append(res, cloneUser(u))
		}
	}
	return res, nil
}

// FindDonorsNear возвращает доноров в радиусе, ближайшие первыми.
func (r *MemoryRepository) FindDonorsNear(_ context.Context, q DonorQuery) ([]model.DonorMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.DonorMatch
	for _, u := range r.users {
		if u.Role != model.RoleDonor || !u.Available || u.Location == nil {
			continue
		}
		if q.BloodType != "" && u.BloodType != q.BloodType {
			continue
		}
		if slices.Contains(q.ExcludeIDs, u.ID) {
			continue
		}
		d := geo.DistanceMeters(q.Point, *u.Location)
		if d > q.MaxMeters {
			continue
		}
		res = append(res, model.DonorMatch{User: cloneUser(u), DistanceKm: d / 1000})
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].DistanceKm < res[j].DistanceKm })
	return res, nil
}

// CreateRequest сохраняет новый запрос.
func (r *MemoryRepository) CreateRequest(_ context.Context, req *model.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.requests {
		if existing.ID == req.ID {
			return ErrDuplicate
		}
	}
	r.requests = append(r.requests, cloneRequest(*req))
	return nil
}

// GetRequest возвращает запрос по идентификатору.
func (r *MemoryRepository) GetRequest(_ context.Context, id string) (*model.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.requestIndex(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	c := cloneRequest(r.requests[i])
	return &c, nil
}

// ApplyRequestTransition применяет переход, если версия запроса не изменилась с момента чтения.
func (r *MemoryRepository) ApplyRequestTransition(_ context.Context, id string, t model.RequestTransition) (*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.requestIndex(id)
	if i < 0 {
		return nil, ErrNotFound
	}

	req := &r.requests[i]
	if req.Version != t.ExpectedVersion {
		return nil, ErrVersionConflict
	}

	if t.Donation != nil {
		if req.HasDonor(t.Donation.DonorID) {
			return nil, ErrDuplicate
		}
		if req.UnitsLeft < t.Donation.UnitsDonated {
			return nil, ErrVersionConflict
		}
		req.Donations = append(req.Donations, *t.Donation)
		req.UnitsLeft -= t.Donation.UnitsDonated
	}

	req.Status = t.Status
	if t.AcceptedAt != nil {
		req.AcceptedAt = timePtr(*t.AcceptedAt)
	}
	if t.FulfilledAt != nil {
		req.FulfilledAt = timePtr(*t.FulfilledAt)
	}
	if t.CancelledAt != nil {
		req.CancelledAt = timePtr(*t.CancelledAt)
	}
	req.Version++

	c := cloneRequest(*req)
	return &c, nil
}

// GetRequestsByRequester возвращает запросы пользователя, новые первыми.
func (r *MemoryRepository) GetRequestsByRequester(_ context.Context, requesterID string) ([]model.Request, error) {
	return r.filterRequests(func(req *model.Request) bool { return req.RequesterID == requesterID }), nil
}

// GetRequestsByDonor возвращает запросы, в которых пользователь сделал донацию, новые первыми.
func (r *MemoryRepository) GetRequestsByDonor(_ context.Context, donorID string) ([]model.Request, error) {
	return r.filterRequests(func(req *model.Request) bool { return req.HasDonor(donorID) }), nil
}

// FindRequestsNear возвращает открытые запросы в радиусе, ближайшие первыми.
func (r *MemoryRepository) FindRequestsNear(_ context.Context, q RequestQuery) ([]model.RequestMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.RequestMatch
	for _, req := range r.requests {
		if !req.Status.Open() || req.UnitsLeft <= 0 {
			continue
		}
		if q.BloodType != "" && req.BloodType != q.BloodType {
			continue
		}
		d := geo.DistanceMeters(q.Point, req.Location)
		if d > q.MaxMeters {
			continue
		}
		res = append(res, model.RequestMatch{Request: cloneRequest(req), DistanceKm: d / 1000})
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].DistanceKm < res[j].DistanceKm })
	return res, nil
}

// CreateCamp сохраняет акцию.
func (r *MemoryRepository) CreateCamp(_ context.Context, c *model.BloodCamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.camps = append(r.camps, *c)
	return nil
}

// GetCamp возвращает акцию по идентификатору.
func (r *MemoryRepository) GetCamp(_ context.Context, id string) (*model.BloodCamp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.camps {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetActiveCamps возвращает активные акции, ближайшие по дате первыми.
func (r *MemoryRepository) GetActiveCamps(_ context.Context) ([]model.BloodCamp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.BloodCamp
	for _, c := range r.camps {
		if c.Active {
			res = append(res, c)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date < res[j].Date
		}
		return res[i].StartTime < res[j].StartTime
	})
	return res, nil
}

// GetCampsByCreator возвращает акции учреждения, новые первыми.
func (r *MemoryRepository) GetCampsByCreator(_ context.Context, creatorID string) ([]model.BloodCamp, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.BloodCamp
	for _, c := range r.camps {
		if c.CreatedBy == creatorID {
			res = append(res, c)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// SetCampActive меняет признак активности акции.
func (r *MemoryRepository) SetCampActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.camps {
		if r.camps[i].ID == id {
			r.camps[i].Active = active
			return nil
		}
	}
	return ErrNotFound
}

// CreateCampDonation сохраняет донацию на акции. Повторная донация того же донора отклоняется.
func (r *MemoryRepository) CreateCampDonation(_ context.Context, d *model.CampDonation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.campDonations {
		if existing.CampID == d.CampID && existing.DonorID == d.DonorID {
			return ErrDuplicate
		}
	}
	cp := *d
	cp.Donor = nil
	r.campDonations = append(r.campDonations, cp)
	return nil
}

// GetCampDonations возвращает донации акции в порядке записи.
func (r *MemoryRepository) GetCampDonations(_ context.Context, campID string) ([]model.CampDonation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.CampDonation
	for _, d := range r.campDonations {
		if d.CampID == campID {
			res = append(res, d)
		}
	}
	return res, nil
}

// CountCampDonationsByBloodType группирует донации указанных акций по группе крови.
func (r *MemoryRepository) CountCampDonationsByBloodType(_ context.Context, campIDs []string) ([]model.BloodTypeCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.BloodType]int)
	for _, d := range r.campDonations {
		if slices.Contains(campIDs, d.CampID) {
			counts[d.BloodType]++
		}
	}

	res := make([]model.BloodTypeCount, 0, len(counts))
	for bt, n := range counts {
		res = append(res, model.BloodTypeCount{BloodType: bt, Units: n})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BloodType < res[j].BloodType })
	return res, nil
}

// HasDonatedSince сообщает, есть ли в журнале донация донора не раньше since.
func (r *MemoryRepository) HasDonatedSince(_ context.Context, source model.DonationSource, donorID string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := false
	r.eachDonation(source, func(id string, at time.Time) {
		if id == donorID && !at.Before(since) {
			found = true
		}
	})
	return found, nil
}

// DonorsSince возвращает доноров, у которых в журнале есть донация не раньше since.
func (r *MemoryRepository) DonorsSince(_ context.Context, source model.DonationSource, since time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []string
	r.eachDonation(source, func(id string, at time.Time) {
		if !at.Before(since) && !slices.Contains(res, id) {
			res = append(res, id)
		}
	})
	return res, nil
}

func (r *MemoryRepository) eachDonation(source model.DonationSource, fn func(donorID string, at time.Time)) {
	switch source {
	case model.DonationSourceRequest:
		for _, req := range r.requests {
			for _, d := range req.Donations {
				if d.DonorRole == model.RoleDonor {
					fn(d.DonorID, d.DonatedAt)
				}
			}
		}
	case model.DonationSourceCamp:
		for _, d := range r.campDonations {
			fn(d.DonorID, d.DonatedAt)
		}
	}
}

func (r *MemoryRepository) requestIndex(id string) int {
	for i := range r.requests {
		if r.requests[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *MemoryRepository) filterRequests(keep func(*model.Request) bool) []model.Request {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Request
	for i := range r.requests {
		if keep(&r.requests[i]) {
			res = append(res, cloneRequest(r.requests[i]))
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

func cloneUser(u model.User) model.User {
	if u.Location != nil {
		loc := model.NewPoint(u.Location.Lng(), u.Location.Lat())
		u.Location = &loc
	}
	return u
}

func cloneRequest(req model.Request) model.Request {
	req.Location = model.NewPoint(req.Location.Lng(), req.Location.Lat())
	req.Donations = slices.Clone(req.Donations)
	for i := range req.Donations {
		req.Donations[i].Donor = nil
	}
	return req
}

func timePtr(t time.Time) *time.Time {
	return &t
}
