// Package service реализует бизнес-логику сервиса донорства: учёт запросов на кровь,
// период отдыха доноров, геопоиск кандидатов и акции по сдаче крови.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

// DefaultMaxAcceptAttempts ограничивает число попыток условного обновления запроса до ошибки Contention.
const DefaultMaxAcceptAttempts = 3

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
	FindDonorsNear(ctx context.Context, q repository.DonorQuery) ([]model.DonorMatch, error)

	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ApplyRequestTransition(ctx context.Context, id string, t model.RequestTransition) (*model.Request, error)
	GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error)
	GetRequestsByDonor(ctx context.Context, donorID string) ([]model.Request, error)
	FindRequestsNear(ctx context.Context, q repository.RequestQuery) ([]model.RequestMatch, error)

	CreateCamp(ctx context.Context, c *model.BloodCamp) error
	GetCamp(ctx context.Context, id string) (*model.BloodCamp, error)
	GetActiveCamps(ctx context.Context) ([]model.BloodCamp, error)
	GetCampsByCreator(ctx context.Context, creatorID string) ([]model.BloodCamp, error)
	SetCampActive(ctx context.Context, id string, active bool) error
	CreateCampDonation(ctx context.Context, d *model.CampDonation) error
	GetCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error)
	CountCampDonationsByBloodType(ctx context.Context, campIDs []string) ([]model.BloodTypeCount, error)

	HasDonatedSince(ctx context.Context, source model.DonationSource, donorID string, since time.Time) (bool, error)
	DonorsSince(ctx context.Context, source model.DonationSource, since time.Time) ([]string, error)
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMaxAcceptAttempts задаёт число попыток условного обновления запроса.
func WithMaxAcceptAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// Service содержит бизнес-логику сервиса донорства.
// Каждая операция получает аутентифицированного участника явно.
type Service struct {
	repo        Repository
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int

	cooldown *CooldownPolicy
	matcher  *DonorMatcher
	requests *RequestLedger
	camps    *CampLedger
}

// NewService создаёт сервис поверх репозитория.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:        repo,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxAcceptAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cooldown = NewCooldownPolicy(CooldownWindow,
		NewDonationLedger(repo, model.DonationSourceRequest),
		NewDonationLedger(repo, model.DonationSourceCamp),
	)
	s.matcher = &DonorMatcher{repo: repo, cooldown: s.cooldown, now: s.now}
	s.requests = &RequestLedger{
		repo:        repo,
		cooldown:    s.cooldown,
		matcher:     s.matcher,
		now:         s.now,
		maxAttempts: s.maxAttempts,
		logger:      logger,
	}
	s.camps = &CampLedger{repo: repo, cooldown: s.cooldown, now: s.now}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CurrentUser возвращает профиль аутентифицированного участника.
func (s *Service) CurrentUser(ctx context.Context, p model.Principal) (*model.User, error) {
	return s.principalUser(ctx, p)
}

// CreateRequest создаёт запрос на кровь и возвращает доноров поблизости.
func (s *Service) CreateRequest(ctx context.Context, p model.Principal, in CreateRequestInput) (*model.Request, []model.DonorMatch, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	req, candidates, err := s.requests.Create(ctx, u, in)
	if err != nil {
		return nil, nil, s.logged("create request", err)
	}
	s.logger.Info("request created",
		zap.String("request_id", req.ID),
		zap.String("blood_type", string(req.BloodType)),
		zap.Int("units", req.TotalUnits),
		zap.Int("candidates", len(candidates)))
	return req, candidates, nil
}

// AcceptRequest записывает донацию участника в запрос.
func (s *Service) AcceptRequest(ctx context.Context, p model.Principal, requestID string, unitsDonated *int) (*model.Request, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Accept(ctx, u, requestID, unitsDonated)
	if err != nil {
		return nil, s.logged("accept request", err)
	}
	s.logger.Info("request accepted",
		zap.String("request_id", req.ID),
		zap.String("donor_id", u.ID),
		zap.Int("units_left", req.UnitsLeft),
		zap.String("status", string(req.Status)))
	return req, nil
}

// FulfillRequest закрывает запрос по решению его автора.
func (s *Service) FulfillRequest(ctx context.Context, p model.Principal, requestID string) (*model.Request, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Fulfill(ctx, u, requestID)
	if err != nil {
		return nil, s.logged("fulfill request", err)
	}
	return req, nil
}

// CancelRequest отменяет запрос без донаций.
func (s *Service) CancelRequest(ctx context.Context, p model.Principal, requestID string) (*model.Request, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Cancel(ctx, u, requestID)
	if err != nil {
		return nil, s.logged("cancel request", err)
	}
	return req, nil
}

// ListNearbyRequests возвращает открытые запросы с группой крови донора в радиусе от него.
func (s *Service) ListNearbyRequests(ctx context.Context, p model.Principal, maxDistanceKm float64) ([]model.RequestMatch, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleDonor {
		return nil, authorizationError(ReasonWrongRole, "only donors can list nearby requests")
	}
	res, err := s.matcher.FindRequestsNear(ctx, u, maxDistanceKm)
	if err != nil {
		return nil, s.logged("list nearby requests", err)
	}
	return res, nil
}

// ListAllOpenRequests возвращает открытые запросы любой группы крови в радиусе от учреждения.
func (s *Service) ListAllOpenRequests(ctx context.Context, p model.Principal, maxDistanceKm float64) ([]model.RequestMatch, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleMedicalInstitution {
		return nil, authorizationError(ReasonWrongRole, "only medical institutions can list all requests")
	}
	if u.Location == nil {
		return nil, validationError("user has no location")
	}
	res, err := s.matcher.FindOpenRequestsNear(ctx, *u.Location, maxDistanceKm)
	if err != nil {
		return nil, s.logged("list open requests", err)
	}
	return res, nil
}

// ListMyRequests возвращает запросы участника.
func (s *Service) ListMyRequests(ctx context.Context, p model.Principal) ([]model.Request, error) {
	res, err := s.requests.ListByRequester(ctx, p.UserID)
	if err != nil {
		return nil, s.logged("list my requests", err)
	}
	return res, nil
}

// ListMyDonations возвращает запросы, в которые участник сдал кровь.
func (s *Service) ListMyDonations(ctx context.Context, p model.Principal) ([]model.Request, error) {
	res, err := s.requests.ListByDonor(ctx, p.UserID)
	if err != nil {
		return nil, s.logged("list my donations", err)
	}
	return res, nil
}

// CreateCamp создаёт акцию по сдаче крови.
func (s *Service) CreateCamp(ctx context.Context, p model.Principal, in CreateCampInput) (*model.BloodCamp, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	camp, err := s.camps.CreateCamp(ctx, u, in)
	if err != nil {
		return nil, s.logged("create camp", err)
	}
	s.logger.Info("camp created", zap.String("camp_id", camp.ID), zap.String("date", camp.Date))
	return camp, nil
}

// ListActiveCamps возвращает активные акции.
func (s *Service) ListActiveCamps(ctx context.Context) ([]model.BloodCamp, error) {
	res, err := s.camps.ListActiveCamps(ctx)
	if err != nil {
		return nil, s.logged("list active camps", err)
	}
	return res, nil
}

// ListMyCamps возвращает акции учреждения.
func (s *Service) ListMyCamps(ctx context.Context, p model.Principal) ([]model.BloodCamp, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleMedicalInstitution {
		return nil, authorizationError(ReasonWrongRole, "only medical institutions have camps")
	}
	res, err := s.camps.ListCampsByCreator(ctx, u.ID)
	if err != nil {
		return nil, s.logged("list my camps", err)
	}
	return res, nil
}

// SetCampActive закрывает или открывает акцию.
func (s *Service) SetCampActive(ctx context.Context, p model.Principal, campID string, active bool) (*model.BloodCamp, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	camp, err := s.camps.SetCampActive(ctx, u, campID, active)
	if err != nil {
		return nil, s.logged("set camp active", err)
	}
	return camp, nil
}

// DonateToCamp записывает донацию участника на акции.
func (s *Service) DonateToCamp(ctx context.Context, p model.Principal, campID string) (*model.CampDonation, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	d, err := s.camps.DonateToCamp(ctx, u, campID)
	if err != nil {
		return nil, s.logged("donate to camp", err)
	}
	s.logger.Info("camp donation recorded", zap.String("camp_id", campID), zap.String("donor_id", u.ID))
	return d, nil
}

// ListCampDonations возвращает донации акции.
func (s *Service) ListCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error) {
	res, err := s.camps.ListDonations(ctx, campID)
	if err != nil {
		return nil, s.logged("list camp donations", err)
	}
	return res, nil
}

// CampSummary возвращает количество донаций акции по группам крови.
func (s *Service) CampSummary(ctx context.Context, campID string) ([]model.BloodTypeCount, error) {
	res, err := s.camps.AggregateByBloodType(ctx, campID)
	if err != nil {
		return nil, s.logged("camp summary", err)
	}
	return res, nil
}

// InstitutionSummary возвращает количество донаций по группам крови на всех акциях учреждения.
func (s *Service) InstitutionSummary(ctx context.Context, p model.Principal) ([]model.BloodTypeCount, error) {
	u, err := s.principalUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleMedicalInstitution {
		return nil, authorizationError(ReasonWrongRole, "only medical institutions have camps")
	}
	res, err := s.camps.AggregateForInstitution(ctx, u.ID)
	if err != nil {
		return nil, s.logged("institution summary", err)
	}
	return res, nil
}

func (s *Service) principalUser(ctx context.Context, p model.Principal) (*model.User, error) {
	if p.UserID == "" {
		return nil, authorizationError("", "unauthenticated")
	}
	u, err := s.repo.GetUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, authorizationError("", "unknown user")
		}
		return nil, s.logged("load user", internalError("load user", err))
	}
	return u, nil
}

// logged пишет в журнал внутренние ошибки; ошибки бизнес-правил возвращаются без записи.
func (s *Service) logged(op string, err error) error {
	if KindOf(err) == KindInternal {
		s.logger.Error(op+" failed", zap.Error(err))
	}
	return err
}

// RunCampExpiry периодически закрывает завершившиеся акции, пока не отменён контекст.
func (s *Service) RunCampExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := s.camps.CloseFinishedCamps(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("camp expiry failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				s.logger.Info("finished camps closed", zap.Int("count", closed))
			}
		}
	}
}
