// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Ensure records the authenticated subject so billing can attach a customer
// to it later.
func (s *Service) Ensure(ctx context.Context, id, email string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("ensure user: %w", core.ErrUnauthorized)
	}

	user := &User{ID: id, Email: strings.ToLower(strings.TrimSpace(email))}
	if err := s.repo.Ensure(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
