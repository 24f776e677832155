package service

import (
	"context"
	"slices"
	"time"

	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// CooldownWindow задаёт период после донации, в течение которого донор не может сдавать кровь снова.
const CooldownWindow = 30 * 24 * time.Hour

// donationReader отвечает на вопросы о журналах донаций.
type donationReader interface {
	HasDonatedSince(ctx context.Context, source model.DonationSource, donorID string, since time.Time) (bool, error)
	DonorsSince(ctx context.Context, source model.DonationSource, since time.Time) ([]string, error)
}

// DonationLedger представляет журнал завершённых донаций одного источника: запросов или акций.
type DonationLedger struct {
	repo   donationReader
	source model.DonationSource
}

// NewDonationLedger создаёт журнал донаций для указанного источника.
func NewDonationLedger(repo donationReader, source model.DonationSource) DonationLedger {
	return DonationLedger{repo: repo, source: source}
}

// HasDonatedSince сообщает, есть ли у донора донация в журнале не раньше since.
func (l DonationLedger) HasDonatedSince(ctx context.Context, donorID string, since time.Time) (bool, error) {
	return l.repo.HasDonatedSince(ctx, l.source, donorID, since)
}

// DonorsSince возвращает доноров с донациями в журнале не раньше since.
func (l DonationLedger) DonorsSince(ctx context.Context, since time.Time) ([]string, error) {
	return l.repo.DonorsSince(ctx, l.source, since)
}

// CooldownPolicy решает, может ли донор сдавать кровь, сверяясь с обоими журналами.
type CooldownPolicy struct {
	ledgers []DonationLedger
	window  time.Duration
}

// NewCooldownPolicy создаёт политику по указанным журналам.
func NewCooldownPolicy(window time.Duration, ledgers ...DonationLedger) *CooldownPolicy {
	return &CooldownPolicy{ledgers: ledgers, window: window}
}

// IsEligible сообщает, может ли пользователь сдать кровь на момент asOf.
// Медицинские учреждения не ограничены периодом отдыха.
func (p *CooldownPolicy) IsEligible(ctx context.Context, u *model.User, asOf time.Time) (bool, error) {
	if u.Role != model.RoleDonor {
		return true, nil
	}

	since := asOf.Add(-p.window)
	for _, l := range p.ledgers {
		donated, err := l.HasDonatedSince(ctx, u.ID, since)
		if err != nil {
			return false, err
		}
		if donated {
			return false, nil
		}
	}
	return true, nil
}

// IneligibleDonors возвращает доноров, находящихся в периоде отдыха на момент asOf.
func (p *CooldownPolicy) IneligibleDonors(ctx context.Context, asOf time.Time) ([]string, error) {
	since := asOf.Add(-p.window)

	var ids []string
	for _, l := range p.ledgers {
		donors, err := l.DonorsSince(ctx, since)
		if err != nil {
			return nil, err
		}
		ids = append(ids, donors...)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}
