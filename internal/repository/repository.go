package repository

import (
	"context"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// TurnRepository stores conversation history.
type TurnRepository interface {
	AppendTurn(ctx context.Context, turn *domain.Turn) error
	ListTurnsBySession(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
}

// DeploymentRepository stores deployment run history.
type DeploymentRepository interface {
	CreateRun(ctx context.Context, run *domain.DeploymentRun) error
	UpdateRun(ctx context.Context, run *domain.DeploymentRun) error
	GetRunByID(ctx context.Context, runID string) (*domain.DeploymentRun, error)
	ListRunsBySession(ctx context.Context, sessionID string, limit int) ([]domain.DeploymentRun, error)
}
