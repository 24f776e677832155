package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/config"
	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// Store объединяет операции хранилища, общие для всех драйверов.
type Store interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
	FindDonorsNear(ctx context.Context, q DonorQuery) ([]model.DonorMatch, error)

	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ApplyRequestTransition(ctx context.Context, id string, t model.RequestTransition) (*model.Request, error)
	GetRequestsByRequester(ctx context.Context, requesterID string) ([]model.Request, error)
	GetRequestsByDonor(ctx context.Context, donorID string) ([]model.Request, error)
	FindRequestsNear(ctx context.Context, q RequestQuery) ([]model.RequestMatch, error)

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

var (
	_ Store = (*MemoryRepository)(nil)
	_ Store = (*MongoRepository)(nil)
	_ Store = (*PostgresRepository)(nil)
)

// Open создаёт хранилище по драйверу из конфигурации.
func Open(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return NewMemoryRepository(), nil
	case config.StorageMongo:
		return NewMongoRepository(cfg.MongoURI, cfg.MongoDatabase, logger)
	case config.StoragePostgres:
		return NewPostgresRepository(cfg.DatabaseURI, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
