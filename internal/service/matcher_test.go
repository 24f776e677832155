package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

func donorIDs(matches []model.DonorMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.User.ID)
	}
	return ids
}

func requestIDs(matches []model.RequestMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Request.ID)
	}
	return ids
}

func TestFindDonorsNear_RadiusAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hospital := f.addInstitution(t, "h1")

	f.addDonor(t, "far", model.BloodTypeONeg, northOf(12))
	f.addDonor(t, "eight", model.BloodTypeONeg, northOf(8))
	f.addDonor(t, "five", model.BloodTypeONeg, northOf(5))
	f.addDonor(t, "other-type", model.BloodTypeAPos, northOf(1))

	loc := northOf(2)
	require.NoError(t, f.repo.CreateUser(ctx, &model.User{
		ID: "busy", Email: "busy@example.com", Role: model.RoleDonor,
		BloodType: model.BloodTypeONeg, Location: &loc, Available: false,
	}))

	resting := f.addDonor(t, "resting", model.BloodTypeONeg, northOf(3))
	f.donateVia(t, model.DonationSourceCamp, resting)

	_, candidates, err := f.svc.CreateRequest(ctx, hospital, CreateRequestInput{
		BloodType:     model.BloodTypeONeg,
		TotalUnits:    2,
		Location:      northOf(0),
		MaxDistanceKm: 10,
		HospitalName:  "City Hospital",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"five", "eight"}, donorIDs(candidates))
	assert.InDelta(t, 5.0, candidates[0].DistanceKm, 0.01)
	assert.InDelta(t, 8.0, candidates[1].DistanceKm, 0.01)
}

func TestFindDonorsNear_ExcludesRequester(t *testing.T) {
	f := newFixture(t)
	requester := f.addDonor(t, "self", model.BloodTypeONeg, northOf(0))
	f.addDonor(t, "neighbour", model.BloodTypeONeg, northOf(1))

	_, candidates, err := f.svc.CreateRequest(context.Background(), requester, CreateRequestInput{
		BloodType:     model.BloodTypeONeg,
		TotalUnits:    1,
		Location:      northOf(0),
		MaxDistanceKm: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"neighbour"}, donorIDs(candidates))
}

func TestListNearbyRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.addDonor(t, "donor", model.BloodTypeONeg, northOf(0))
	bank := f.addInstitution(t, "bank")

	create := func(id string, bt model.BloodType, km float64) *model.Request {
		requester := f.addDonor(t, id, bt, northOf(km))
		req, _, err := f.svc.CreateRequest(ctx, requester, CreateRequestInput{
			BloodType:     bt,
			TotalUnits:    1,
			Location:      northOf(km),
			MaxDistanceKm: 10,
		})
		require.NoError(t, err)
		return req
	}

	near := create("near", model.BloodTypeONeg, 5)
	create("far", model.BloodTypeONeg, 12)
	other := create("other", model.BloodTypeBPos, 1)
	closest := create("closest", model.BloodTypeONeg, 2)
	filled := create("filled", model.BloodTypeONeg, 3)

	_, err := f.svc.AcceptRequest(ctx, bank, filled.ID, intPtr(1))
	require.NoError(t, err)

	matches, err := f.svc.ListNearbyRequests(ctx, donor, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{closest.ID, near.ID}, requestIDs(matches))

	_, err = f.svc.ListNearbyRequests(ctx, bank, 10)
	assert.True(t, errors.Is(err, ErrWrongRole), "got %v", err)

	all, err := f.svc.ListAllOpenRequests(ctx, bank, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID, closest.ID, near.ID}, requestIDs(all))

	_, err = f.svc.ListAllOpenRequests(ctx, donor, 10)
	assert.True(t, errors.Is(err, ErrWrongRole), "got %v", err)

	_, err = f.svc.ListNearbyRequests(ctx, donor, 0)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	for _, km := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = f.svc.ListNearbyRequests(ctx, donor, km)
		assert.True(t, errors.Is(err, ErrValidation), "maxDistance %v: got %v", km, err)

		_, err = f.svc.ListAllOpenRequests(ctx, bank, km)
		assert.True(t, errors.Is(err, ErrValidation), "maxDistance %v: got %v", km, err)
	}
}

func TestListNearbyRequests_DonorWithoutLocation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.CreateUser(context.Background(), &model.User{
		ID: "nowhere", Email: "nowhere@example.com", Role: model.RoleDonor, BloodType: model.BloodTypeAPos, Available: true,
	}))

	_, err := f.svc.ListNearbyRequests(context.Background(), model.Principal{UserID: "nowhere", Role: model.RoleDonor}, 10)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
}
