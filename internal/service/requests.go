package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

// CreateRequestInput содержит данные нового запроса на кровь.
type CreateRequestInput struct {
	BloodType     model.BloodType `json:"bloodType" validate:"required,bloodtype"`
	TotalUnits    int             `json:"totalUnits" validate:"gte=1"`
	Location      model.GeoPoint  `json:"location"`
	MaxDistanceKm float64         `json:"maxDistanceKm" validate:"gte=1"`
	Urgency       model.Urgency   `json:"urgency" validate:"omitempty,urgency"`
	Notes         string          `json:"notes" validate:"max=1000"`
	HospitalName  string          `json:"hospitalName" validate:"max=200"`
}

type requestStore interface {
	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ApplyRequestTransition(ctx context.Context, id string, t model.RequestTransition) (*model.Request, error)
	GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error)
	GetRequestsByDonor(ctx context.Context, donorID string) ([]model.Request, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
}

// RequestLedger владеет состоянием запросов и счётчиком оставшихся единиц.
// Все изменения запроса проходят через условное обновление по версии.
type RequestLedger struct {
	repo        requestStore
	cooldown    *CooldownPolicy
	matcher     *DonorMatcher
	now         func() time.Time
	maxAttempts int
	logger      *zap.Logger
}

// Create проверяет и сохраняет запрос, затем подбирает доноров поблизости.
// Список кандидатов не сохраняется.
func (l *RequestLedger) Create(ctx context.Context, requester *model.User, in CreateRequestInput) (*model.Request, []model.DonorMatch, error) {
	if err := validation.Struct(in); err != nil {
		return nil, nil, validationError("invalid request: %v", err)
	}
	if !validation.IsValidPoint(in.Location) {
		return nil, nil, validationError("location must be [lng, lat] with finite coordinates in range")
	}
	hospital := strings.TrimSpace(in.HospitalName)
	if requester.Role == model.RoleMedicalInstitution && hospital == "" {
		return nil, nil, validationError("hospitalName is required for medical institutions")
	}

	urgency := in.Urgency
	if urgency == "" {
		urgency = model.UrgencyMedium
	}

	req := &model.Request{
		ID:            uuid.NewString(),
		RequesterID:   requester.ID,
		RequesterRole: requester.Role,
		BloodType:     in.BloodType,
		TotalUnits:    in.TotalUnits,
		UnitsLeft:     in.TotalUnits,
		Location:      model.NewPoint(in.Location.Lng(), in.Location.Lat()),
		MaxDistanceKm: in.MaxDistanceKm,
		Urgency:       urgency,
		Notes:         in.Notes,
		HospitalName:  hospital,
		Status:        model.RequestStatusPending,
		Donations:     []model.DonationEvent{},
		CreatedAt:     l.now(),
	}

	if err := l.repo.CreateRequest(ctx, req); err != nil {
		return nil, nil, internalError("create request", err)
	}

	candidates, err := l.matcher.FindDonorsNear(ctx, req)
	if err != nil {
		l.logger.Warn("donor matching failed for created request",
			zap.String("request_id", req.ID), zap.Error(err))
		candidates = []model.DonorMatch{}
	}
	return req, candidates, nil
}

// Accept записывает донацию пользователя в запрос. Донор всегда сдаёт одну единицу,
// медицинское учреждение указывает количество. При конкурентном изменении запрос
// перечитывается и проверяется заново.
func (l *RequestLedger) Accept(ctx context.Context, donor *model.User, requestID string, unitsDonated *int) (*model.Request, error) {
	var eligible *bool

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		req, err := l.get(ctx, requestID)
		if err != nil {
			return nil, err
		}

		if req.UnitsLeft <= 0 {
			return nil, conflictError(ReasonNoUnitsLeft, "no units left")
		}
		if !req.Status.Open() {
			return nil, conflictError(ReasonAlreadyClosed, "request is %s", req.Status)
		}
		if donor.ID == req.RequesterID {
			return nil, authorizationError(ReasonSelfAccept, "cannot accept your own request")
		}
		if req.HasDonor(donor.ID) {
			return nil, conflictError(ReasonDuplicateDonor, "already donated to this request")
		}

		units := 1
		switch donor.Role {
		case model.RoleMedicalInstitution:
			if unitsDonated == nil || *unitsDonated < 1 {
				return nil, validationError("unitsDonated must be a positive integer")
			}
			if *unitsDonated > req.UnitsLeft {
				return nil, validationError("unitsDonated %d exceeds units left %d", *unitsDonated, req.UnitsLeft)
			}
			units = *unitsDonated
		default:
			if eligible == nil {
				ok, err := l.cooldown.IsEligible(ctx, donor, l.now())
				if err != nil {
					return nil, internalError("check cooldown", err)
				}
				eligible = &ok
			}
			if !*eligible {
				return nil, conflictError(ReasonCooldownActive, "donor donated within the last %d days", int(CooldownWindow.Hours()/24))
			}
		}

		now := l.now()
		t := model.RequestTransition{
			ExpectedVersion: req.Version,
			Status:          model.RequestStatusAccepted,
			Donation: &model.DonationEvent{
				DonorID:      donor.ID,
				DonorRole:    donor.Role,
				UnitsDonated: units,
				DonatedAt:    now,
			},
		}
		if req.AcceptedAt == nil {
			t.AcceptedAt = &now
		}
		if req.UnitsLeft == units {
			t.Status = model.RequestStatusFulfilled
			t.FulfilledAt = &now
		}

		updated, err := l.repo.ApplyRequestTransition(ctx, requestID, t)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, repository.ErrVersionConflict):
			l.logger.Debug("request changed concurrently, retrying accept",
				zap.String("request_id", requestID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrDuplicate):
			return nil, conflictError(ReasonDuplicateDonor, "already donated to this request")
		case errors.Is(err, repository.ErrNotFound):
			return nil, notFoundError("request %s not found", requestID)
		default:
			return nil, internalError("accept request", err)
		}
	}

	return nil, conflictError(ReasonContention, "request is being updated concurrently, try again")
}

// Fulfill закрывает принятый запрос по решению его автора.
func (l *RequestLedger) Fulfill(ctx context.Context, caller *model.User, requestID string) (*model.Request, error) {
	return l.transition(ctx, requestID, "fulfill", func(req *model.Request, now time.Time) (model.RequestTransition, error) {
		if req.Status != model.RequestStatusAccepted {
			return model.RequestTransition{}, conflictError(ReasonMustBeAcceptedFirst, "request is %s, must be accepted first", req.Status)
		}
		if caller.ID != req.RequesterID {
			return model.RequestTransition{}, authorizationError(ReasonNotOwner, "only the requester can fulfill the request")
		}
		return model.RequestTransition{
			ExpectedVersion: req.Version,
			Status:          model.RequestStatusFulfilled,
			FulfilledAt:     &now,
		}, nil
	})
}

// Cancel отменяет запрос, ещё не получивший донаций.
func (l *RequestLedger) Cancel(ctx context.Context, caller *model.User, requestID string) (*model.Request, error) {
	return l.transition(ctx, requestID, "cancel", func(req *model.Request, now time.Time) (model.RequestTransition, error) {
		if caller.ID != req.RequesterID {
			return model.RequestTransition{}, authorizationError(ReasonNotOwner, "only the requester can cancel the request")
		}
		switch req.Status {
		case model.RequestStatusPending:
		case model.RequestStatusAccepted:
			return model.RequestTransition{}, conflictError(ReasonHasDonations, "request already has donations")
		default:
			return model.RequestTransition{}, conflictError(ReasonAlreadyClosed, "request is %s", req.Status)
		}
		return model.RequestTransition{
			ExpectedVersion: req.Version,
			Status:          model.RequestStatusCancelled,
			CancelledAt:     &now,
		}, nil
	})
}

func (l *RequestLedger) transition(ctx context.Context, requestID, op string,
	plan func(req *model.Request, now time.Time) (model.RequestTransition, error)) (*model.Request, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		req, err := l.get(ctx, requestID)
		if err != nil {
			return nil, err
		}

		t, err := plan(req, l.now())
		if err != nil {
			return nil, err
		}

		updated, err := l.repo.ApplyRequestTransition(ctx, requestID, t)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, repository.ErrVersionConflict):
			l.logger.Debug("request changed concurrently, retrying "+op,
				zap.String("request_id", requestID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, notFoundError("request %s not found", requestID)
		default:
			return nil, internalError(op+" request", err)
		}
	}

	return nil, conflictError(ReasonContention, "request is being updated concurrently, try again")
}

// ListByRequester возвращает запросы пользователя со сведениями о донорах.
func (l *RequestLedger) ListByRequester(ctx context.Context, requesterID string) ([]model.Request, error) {
	reqs, err := l.repo.GetRequestsByRequester(ctx, requesterID)
	if err != nil {
		return nil, internalError("list requests", err)
	}
	if err := l.populateDonors(ctx, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ListByDonor возвращает запросы, в которые пользователь сдал кровь.
func (l *RequestLedger) ListByDonor(ctx context.Context, donorID string) ([]model.Request, error) {
	reqs, err := l.repo.GetRequestsByDonor(ctx, donorID)
	if err != nil {
		return nil, internalError("list donations", err)
	}
	return reqs, nil
}

func (l *RequestLedger) get(ctx context.Context, requestID string) (*model.Request, error) {
	req, err := l.repo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("request %s not found", requestID)
		}
		return nil, internalError("get request", err)
	}
	return req, nil
}

func (l *RequestLedger) populateDonors(ctx context.Context, reqs []model.Request) error {
	var ids []string
	for _, r := range reqs {
		for _, d := range r.Donations {
			ids = append(ids, d.DonorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := l.repo.GetUsers(ctx, ids)
	if err != nil {
		return internalError("load donors", err)
	}
	summaries := make(map[string]model.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}

	for i := range reqs {
		for j := range reqs[i].Donations {
			if s, ok := summaries[reqs[i].Donations[j].DonorID]; ok {
				reqs[i].Donations[j].Donor = &s
			}
		}
	}
	return nil
}
