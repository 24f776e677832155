// Package seed загружает пользователей из YAML-файла в хранилище.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

// UserEntry описывает пользователя в файле.
type UserEntry struct {
	ID        string    `yaml:"id,omitempty" validate:"omitempty,max=64"`
	Name      string    `yaml:"name" validate:"required"`
	Email     string    `yaml:"email" validate:"required,email"`
	Phone     string    `yaml:"phone,omitempty"`
	Role      string    `yaml:"role" validate:"required,role"`
	BloodType string    `yaml:"bloodType,omitempty" validate:"required_if=Role donor,omitempty,bloodtype"`
	Location  []float64 `yaml:"location,omitempty" validate:"omitempty,lnglat"`
	Available *bool     `yaml:"available,omitempty"`
}

// File соответствует содержимому файла с пользователями.
type File struct {
	Users []UserEntry `yaml:"users" validate:"required,min=1,dive"`
}

// UserCreator сохраняет пользователей.
type UserCreator interface {
	CreateUser(ctx context.Context, u *model.User) error
}

// LoadFromPath читает и проверяет файл с пользователями.
func LoadFromPath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	if err := validation.Struct(&f); err != nil {
		return nil, fmt.Errorf("seed file validation failed: %w", err)
	}

	return &f, nil
}

// Models преобразует записи файла в пользователей.
func (f *File) Models(now time.Time) []model.User {
	users := make([]model.User, 0, len(f.Users))
	for _, e := range f.Users {
		u := model.User{
			ID:        e.ID,
			Name:      e.Name,
			Email:     e.Email,
			Phone:     e.Phone,
			Role:      model.Role(e.Role),
			BloodType: model.BloodType(e.BloodType),
			Available: defaultAvailable(e),
			CreatedAt: now,
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if len(e.Location) == 2 {
			p := model.NewPoint(e.Location[0], e.Location[1])
			u.Location = &p
		}
		users = append(users, u)
	}
	return users
}

// defaultAvailable: доноры по умолчанию доступны, учреждения нет.
func defaultAvailable(e UserEntry) bool {
	if e.Available != nil {
		return *e.Available
	}
	return model.Role(e.Role) == model.RoleDonor
}

// Apply записывает пользователей в хранилище. Уже существующие пропускаются.
// Возвращает созданных пользователей.
func Apply(ctx context.Context, store UserCreator, users []model.User, logger *zap.Logger) ([]model.User, error) {
	created := make([]model.User, 0, len(users))
	for i := range users {
		u := &users[i]
		if err := store.CreateUser(ctx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				logger.Info("user already exists, skipping", zap.String("email", u.Email))
				continue
			}
			return created, fmt.Errorf("create user %s: %w", u.Email, err)
		}
		created = append(created, *u)
	}
	return created, nil
}
