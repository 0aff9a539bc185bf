// Package auth validates credentials and keeps the in-memory account registry.
package auth

import (
	"strings"

	"soundstorm/internal/apperrors"
	"soundstorm/pkg/models"

	"github.com/sirupsen/logrus"
)

// Service provides registration and login on top of a Registry.
type Service struct {
	registry *Registry
	logger   *logrus.Logger
}

// NewService creates a new authentication service
func NewService(registry *Registry, logger *logrus.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger,
	}
}

// Register validates every field, collecting one message per failing field,
// and creates the account only when none failed.
func (s *Service) Register(username, email, password string) (models.User, error) {
	verr := apperrors.NewValidationError()

	if err := ValidateUsername(username); err != nil {
		verr.Add("username", err.Error())
	} else if s.registry.Exists(username) {
		verr.Add("username", ErrUsernameTaken.Error())
	}
	if err := ValidateEmail(email); err != nil {
		verr.Add("email", err.Error())
	}
	if err := ValidatePassword(password); err != nil {
		verr.Add("password", err.Error())
	}

	if err := verr.Err(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"username": username,
			"fields":   verr.Fields,
		}).Debug("Registration rejected")
		return models.User{}, err
	}

	user, err := s.registry.Add(username, email, password)
	if err != nil {
		return models.User{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"user_id":  user.ID,
	}).Info("User registered")
	return user, nil
}

// Login requires both fields, then looks for an exact username/password match.
// A failed match is a single NotFoundError, never a per-field error.
func (s *Service) Login(username, password string) (models.User, error) {
	verr := apperrors.NewValidationError()
	if strings.TrimSpace(username) == "" {
		verr.Add("username", ErrRequired.Error())
	}
	if password == "" {
		verr.Add("password", ErrRequired.Error())
	}
	if err := verr.Err(); err != nil {
		return models.User{}, err
	}

	user, ok := s.registry.Authenticate(username, password)
	if !ok {
		s.logger.WithField("username", username).Warn("Failed login attempt")
		return models.User{}, apperrors.NotFound("credentials", nil)
	}

	s.logger.WithField("username", username).Info("User logged in successfully")
	return user, nil
}
