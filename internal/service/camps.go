package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

// CreateCampInput содержит данные новой акции по сдаче крови.
type CreateCampInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Date          string `json:"date" validate:"required,date"`
	StartTime     string `json:"startTime" validate:"required,timeofday"`
	EndTime       string `json:"endTime" validate:"required,timeofday"`
	Address       string `json:"address" validate:"required"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state"`
	ContactNumber string `json:"contactNumber" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
}

func (in *CreateCampInput) normalize() {
	for _, f := range []*string{
		&in.Name, &in.Description, &in.Date, &in.StartTime, &in.EndTime,
		&in.Address, &in.City, &in.State, &in.ContactNumber, &in.Email,
	} {
		*f = strings.TrimSpace(*f)
	}
}

type campStore interface {
	CreateCamp(ctx context.Context, c *model.BloodCamp) error
	GetCamp(ctx context.Context, id string) (*model.BloodCamp, error)
	GetActiveCamps(ctx context.Context) ([]model.BloodCamp, error)
	GetCampsByCreator(ctx context.Context, creatorID string) ([]model.BloodCamp, error)
	SetCampActive(ctx context.Context, id string, active bool) error
	CreateCampDonation(ctx context.Context, d *model.CampDonation) error
	GetCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error)
	CountCampDonationsByBloodType(ctx context.Context, campIDs []string) ([]model.BloodTypeCount, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
}

// CampLedger хранит акции и донации на них. Один донор сдаёт кровь на акции не более одного раза.
type CampLedger struct {
	repo     campStore
	cooldown *CooldownPolicy
	now      func() time.Time
}

// CreateCamp создаёт активную акцию от имени медицинского учреждения.
func (l *CampLedger) CreateCamp(ctx context.Context, creator *model.User, in CreateCampInput) (*model.BloodCamp, error) {
	if creator.Role != model.RoleMedicalInstitution {
		return nil, authorizationError(ReasonWrongRole, "only medical institutions can create camps")
	}
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, validationError("invalid camp: %v", err)
	}
	if in.EndTime <= in.StartTime {
		return nil, validationError("endTime must be after startTime")
	}

	camp := &model.BloodCamp{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		Date:          in.Date,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		Address:       in.Address,
		City:          in.City,
		State:         in.State,
		ContactNumber: in.ContactNumber,
		Email:         in.Email,
		Active:        true,
		CreatedBy:     creator.ID,
		CreatedAt:     l.now(),
	}

	if err := l.repo.CreateCamp(ctx, camp); err != nil {
		return nil, internalError("create camp", err)
	}
	return camp, nil
}

// DonateToCamp записывает донацию пользователя на активной акции.
// Группа крови копируется из профиля в момент донации.
func (l *CampLedger) DonateToCamp(ctx context.Context, donor *model.User, campID string) (*model.CampDonation, error) {
	camp, err := l.get(ctx, campID)
	if err != nil {
		return nil, err
	}
	if !camp.Active {
		return nil, conflictError(ReasonCampInactive, "camp is not active")
	}

	existing, err := l.repo.GetCampDonations(ctx, campID)
	if err != nil {
		return nil, internalError("load camp donations", err)
	}
	for _, d := range existing {
		if d.DonorID == donor.ID {
			return nil, conflictError(ReasonDuplicateDonor, "already donated at this camp")
		}
	}

	now := l.now()
	eligible, err := l.cooldown.IsEligible(ctx, donor, now)
	if err != nil {
		return nil, internalError("check cooldown", err)
	}
	if !eligible {
		return nil, conflictError(ReasonCooldownActive, "donor donated within the last %d days", int(CooldownWindow.Hours()/24))
	}

	d := &model.CampDonation{
		ID:        uuid.NewString(),
		CampID:    campID,
		DonorID:   donor.ID,
		BloodType: donor.BloodType,
		DonatedAt: now,
	}
	if err := l.repo.CreateCampDonation(ctx, d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflictError(ReasonDuplicateDonor, "already donated at this camp")
		}
		return nil, internalError("create camp donation", err)
	}
	return d, nil
}

// ListDonations возвращает донации акции со сведениями о донорах.
func (l *CampLedger) ListDonations(ctx context.Context, campID string) ([]model.CampDonation, error) {
	if _, err := l.get(ctx, campID); err != nil {
		return nil, err
	}

	donations, err := l.repo.GetCampDonations(ctx, campID)
	if err != nil {
		return nil, internalError("list camp donations", err)
	}
	if len(donations) == 0 {
		return donations, nil
	}

	ids := make([]string, 0, len(donations))
	for _, d := range donations {
		ids = append(ids, d.DonorID)
	}
	users, err := l.repo.GetUsers(ctx, ids)
	if err != nil {
		return nil, internalError("load donors", err)
	}
	byID := make(map[string]model.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}
	for i := range donations {
		if s, ok := byID[donations[i].DonorID]; ok {
			donations[i].Donor = &s
		}
	}
	return donations, nil
}

// AggregateByBloodType считает донации акции по группам крови.
func (l *CampLedger) AggregateByBloodType(ctx context.Context, campID string) ([]model.BloodTypeCount, error) {
	if _, err := l.get(ctx, campID); err != nil {
		return nil, err
	}
	return l.count(ctx, []string{campID})
}

// AggregateForInstitution считает донации по группам крови на всех акциях учреждения.
func (l *CampLedger) AggregateForInstitution(ctx context.Context, institutionID string) ([]model.BloodTypeCount, error) {
	camps, err := l.repo.GetCampsByCreator(ctx, institutionID)
	if err != nil {
		return nil, internalError("list camps", err)
	}
	ids := make([]string, 0, len(camps))
	for _, c := range camps {
		ids = append(ids, c.ID)
	}
	return l.count(ctx, ids)
}

func (l *CampLedger) count(ctx context.Context, campIDs []string) ([]model.BloodTypeCount, error) {
	counts, err := l.repo.CountCampDonationsByBloodType(ctx, campIDs)
	if err != nil {
		return nil, internalError("count camp donations", err)
	}
	if counts == nil {
		counts = []model.BloodTypeCount{}
	}
	return counts, nil
}

// ListActiveCamps возвращает активные акции.
func (l *CampLedger) ListActiveCamps(ctx context.Context) ([]model.BloodCamp, error) {
	camps, err := l.repo.GetActiveCamps(ctx)
	if err != nil {
		return nil, internalError("list active camps", err)
	}
	return camps, nil
}

// ListCampsByCreator возвращает акции учреждения.
func (l *CampLedger) ListCampsByCreator(ctx context.Context, creatorID string) ([]model.BloodCamp, error) {
	camps, err := l.repo.GetCampsByCreator(ctx, creatorID)
	if err != nil {
		return nil, internalError("list camps", err)
	}
	return camps, nil
}

// SetCampActive закрывает или снова открывает акцию. Доступно только её создателю.
func (l *CampLedger) SetCampActive(ctx context.Context, caller *model.User, campID string, active bool) (*model.BloodCamp, error) {
	camp, err := l.get(ctx, campID)
	if err != nil {
		return nil, err
	}
	if camp.CreatedBy != caller.ID {
		return nil, authorizationError(ReasonNotOwner, "only the camp creator can change it")
	}
	if camp.Active == active {
		return camp, nil
	}

	if err := l.repo.SetCampActive(ctx, campID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("camp %s not found", campID)
		}
		return nil, internalError("update camp", err)
	}
	camp.Active = active
	return camp, nil
}

func (l *CampLedger) get(ctx context.Context, campID string) (*model.BloodCamp, error) {
	camp, err := l.repo.GetCamp(ctx, campID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("camp %s not found", campID)
		}
		return nil, internalError("get camp", err)
	}
	return camp, nil
}

// CloseFinishedCamps снимает с публикации активные акции, время окончания которых прошло.
// Дата и время акции трактуются в UTC. Возвращает число закрытых акций.
func (l *CampLedger) CloseFinishedCamps(ctx context.Context) (int, error) {
	camps, err := l.repo.GetActiveCamps(ctx)
	if err != nil {
		return 0, internalError("list active camps", err)
	}

	now := l.now()
	closed := 0
	for _, c := range camps {
		end, err := campEnd(c)
		if err != nil || !now.After(end) {
			continue
		}
		if err := l.repo.SetCampActive(ctx, c.ID, false); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return closed, internalError("close camp", err)
		}
		closed++
	}
	return closed, nil
}

func campEnd(c model.BloodCamp) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly+" 15:04", c.Date+" "+c.EndTime, time.UTC)
}
