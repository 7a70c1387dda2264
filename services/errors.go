package services

import "errors"

// Общие ошибки сервисного слоя, используемые при маппинге HTTP.
var (
	// Ошибки воркфлоу судейства
	ErrNotPendingReview   = errors.New("match is not pending review")
	ErrMissingReviewNotes = errors.New("review notes are required to reject a match")
	ErrUnauthorized       = errors.New("caller lacks the required role for this match")
	ErrSameEntry          = errors.New("match requires two different entries")

	// Ошибки аутентификации
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrPasswordTooShort       = errors.New("password is too short")
	ErrInvalidRole            = errors.New("invalid user role provided")
)
