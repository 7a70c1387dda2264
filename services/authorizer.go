package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/adjudication-engine/models"
	"github.com/Dosada05/adjudication-engine/repositories"
)

// Authorizer — явные предикаты ролей. Передаются в воркфлоу как зависимость,
// никакого глобального состояния текущего пользователя.
type Authorizer interface {
	IsAssignedReferee(ctx context.Context, match *models.Match, userID int) (bool, error)
	IsChiefReferee(ctx context.Context, userID int) (bool, error)
}

type roleAuthorizer struct {
	userRepo repositories.UserRepository
}

func NewRoleAuthorizer(userRepo repositories.UserRepository) Authorizer {
	return &roleAuthorizer{userRepo: userRepo}
}

func (a *roleAuthorizer) IsAssignedReferee(ctx context.Context, match *models.Match, userID int) (bool, error) {
	return match.RefereeID == userID, nil
}

func (a *roleAuthorizer) IsChiefReferee(ctx context.Context, userID int) (bool, error) {
	user, err := a.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve user %d role: %w", userID, err)
	}
	return user.Role == models.RoleChiefReferee, nil
}
