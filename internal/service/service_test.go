package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bloodbank-system/internal/geo"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

var (
	baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	baseLng  = 77.59
	baseLat  = 12.97
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	repo  *repository.MemoryRepository
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	clock := &fakeClock{t: baseTime}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		svc:   NewService(repo, nil, opts...),
		repo:  repo,
		clock: clock,
	}
}

// northOf возвращает точку на km километров севернее базовой.
func northOf(km float64) model.GeoPoint {
	degPerKm := 180 / (math.Pi * geo.EarthRadiusMeters / 1000)
	return model.NewPoint(baseLng, baseLat+km*degPerKm)
}

func (f *fixture) addDonor(t *testing.T, id string, bt model.BloodType, at model.GeoPoint) model.Principal {
	t.Helper()
	loc := at
	require.NoError(t, f.repo.CreateUser(context.Background(), &model.User{
		ID:        id,
		Name:      "Donor " + id,
		Email:     id + "@example.com",
		Role:      model.RoleDonor,
		BloodType: bt,
		Location:  &loc,
		Available: true,
		CreatedAt: baseTime,
	}))
	return model.Principal{UserID: id, Role: model.RoleDonor}
}

func (f *fixture) addInstitution(t *testing.T, id string) model.Principal {
	t.Helper()
	loc := northOf(0)
	require.NoError(t, f.repo.CreateUser(context.Background(), &model.User{
		ID:        id,
		Name:      "Hospital " + id,
		Email:     id + "@example.com",
		Role:      model.RoleMedicalInstitution,
		Location:  &loc,
		CreatedAt: baseTime,
	}))
	return model.Principal{UserID: id, Role: model.RoleMedicalInstitution}
}

func (f *fixture) createRequest(t *testing.T, p model.Principal, bt model.BloodType, units int) *model.Request {
	t.Helper()
	req, _, err := f.svc.CreateRequest(context.Background(), p, CreateRequestInput{
		BloodType:     bt,
		TotalUnits:    units,
		Location:      northOf(0),
		MaxDistanceKm: 10,
		HospitalName:  "City Hospital",
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) createCamp(t *testing.T, p model.Principal) *model.BloodCamp {
	t.Helper()
	camp, err := f.svc.CreateCamp(context.Background(), p, CreateCampInput{
		Name:          "Spring drive",
		Date:          "2025-03-15",
		StartTime:     "09:00",
		EndTime:       "17:00",
		Address:       "1 Main St",
		City:          "Bengaluru",
		ContactNumber: "+91 80 1234 5678",
	})
	require.NoError(t, err)
	return camp
}

func assertInvariant(t *testing.T, req *model.Request) {
	t.Helper()
	assert.Equal(t, req.TotalUnits-req.DonatedUnits(), req.UnitsLeft, "unitsLeft must equal totalUnits minus donated units")
	assert.GreaterOrEqual(t, req.UnitsLeft, 0)
	if req.Status.Open() {
		assert.Positive(t, req.UnitsLeft, "open request must have units left")
	}
	seen := make(map[string]bool)
	for _, d := range req.Donations {
		assert.False(t, seen[d.DonorID], "donor %s appears twice", d.DonorID)
		seen[d.DonorID] = true
	}
}

func intPtr(v int) *int { return &v }

func TestCurrentUser_UnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CurrentUser(context.Background(), model.Principal{UserID: "ghost", Role: model.RoleDonor})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthorization))
}

func TestCurrentUser_ReturnsProfile(t *testing.T) {
	f := newFixture(t)
	p := f.addDonor(t, "alice", model.BloodTypeAPos, northOf(1))

	u, err := f.svc.CurrentUser(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, model.BloodTypeAPos, u.BloodType)
}

type failingRepo struct {
	*repository.MemoryRepository
}

func (r failingRepo) GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error) {
	return nil, errors.New("connection refused")
}

func TestListMyRequests_StoreFailureIsInternal(t *testing.T) {
	svc := NewService(failingRepo{repository.NewMemoryRepository()}, nil)

	_, err := svc.ListMyRequests(context.Background(), model.Principal{UserID: "u1", Role: model.RoleDonor})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestClose_ClosesRepository(t *testing.T) {
	svc := NewService(repository.NewMemoryRepository(), nil)
	assert.NoError(t, svc.Close())
}
