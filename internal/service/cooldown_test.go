package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

const day = 24 * time.Hour

// donateVia записывает донацию донора в указанный журнал на текущий момент часов.
func (f *fixture) donateVia(t *testing.T, source model.DonationSource, donor model.Principal) {
	t.Helper()
	ctx := context.Background()
	switch source {
	case model.DonationSourceRequest:
		patient := f.addDonor(t, "patient-"+donor.UserID, model.BloodTypeOPos, northOf(0))
		req := f.createRequest(t, patient, model.BloodTypeOPos, 3)
		_, err := f.svc.AcceptRequest(ctx, donor, req.ID, nil)
		require.NoError(t, err)
	case model.DonationSourceCamp:
		camp := f.createCamp(t, f.addInstitution(t, "camp-host-"+donor.UserID))
		_, err := f.svc.DonateToCamp(ctx, donor, camp.ID)
		require.NoError(t, err)
	}
}

// attemptVia пытается сдать кровь через указанный журнал.
func (f *fixture) attemptVia(t *testing.T, target model.DonationSource, donor model.Principal) error {
	t.Helper()
	ctx := context.Background()
	switch target {
	case model.DonationSourceRequest:
		patient := f.addDonor(t, "second-patient", model.BloodTypeOPos, northOf(0))
		req := f.createRequest(t, patient, model.BloodTypeOPos, 3)
		_, err := f.svc.AcceptRequest(ctx, donor, req.ID, nil)
		return err
	default:
		camp := f.createCamp(t, f.addInstitution(t, "second-host"))
		_, err := f.svc.DonateToCamp(ctx, donor, camp.ID)
		return err
	}
}

func TestCooldown_AcrossBothLedgers(t *testing.T) {
	sources := []model.DonationSource{model.DonationSourceRequest, model.DonationSourceCamp}

	for _, previous := range sources {
		for _, next := range sources {
			for _, tc := range []struct {
				age      time.Duration
				eligible bool
			}{
				{10 * day, false},
				{31 * day, true},
			} {
				name := string(previous) + " then " + string(next) + " after " + tc.age.String()
				t.Run(name, func(t *testing.T) {
					f := newFixture(t)
					donor := f.addDonor(t, "donor", model.BloodTypeOPos, northOf(1))

					f.donateVia(t, previous, donor)
					f.clock.Advance(tc.age)

					err := f.attemptVia(t, next, donor)
					if tc.eligible {
						assert.NoError(t, err)
						return
					}
					require.Error(t, err)
					assert.True(t, errors.Is(err, ErrCooldownActive), "got %v", err)
				})
			}
		}
	}
}

func TestCooldownPolicy_WindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.addDonor(t, "donor", model.BloodTypeOPos, northOf(1))
	f.donateVia(t, model.DonationSourceCamp, donor)

	u, err := f.repo.GetUser(ctx, donor.UserID)
	require.NoError(t, err)

	ok, err := f.svc.cooldown.IsEligible(ctx, u, baseTime.Add(CooldownWindow))
	require.NoError(t, err)
	assert.False(t, ok, "donation exactly at the window start still counts")

	ok, err = f.svc.cooldown.IsEligible(ctx, u, baseTime.Add(CooldownWindow+time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldownPolicy_InstitutionAlwaysEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.addInstitution(t, "bank")
	f.donateVia(t, model.DonationSourceCamp, bank)

	u, err := f.repo.GetUser(ctx, bank.UserID)
	require.NoError(t, err)

	ok, err := f.svc.cooldown.IsEligible(ctx, u, baseTime)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldownPolicy_IneligibleDonorsDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	donor := f.addDonor(t, "donor", model.BloodTypeOPos, northOf(1))
	f.donateVia(t, model.DonationSourceRequest, donor)

	camp := f.createCamp(t, f.addInstitution(t, "host"))
	_, err := f.repo.GetCamp(ctx, camp.ID)
	require.NoError(t, err)
	require.NoError(t, f.repo.CreateCampDonation(ctx, &model.CampDonation{
		ID: "cd1", CampID: camp.ID, DonorID: donor.UserID, BloodType: model.BloodTypeOPos, DonatedAt: baseTime,
	}))

	ids, err := f.svc.cooldown.IneligibleDonors(ctx, baseTime.Add(day))
	require.NoError(t, err)
	assert.Equal(t, []string{"donor"}, ids)

	ids, err = f.svc.cooldown.IneligibleDonors(ctx, baseTime.Add(40*day))
	require.NoError(t, err)
	assert.Empty(t, ids)
}
