package auth

import (
	"context"
	"errors"

	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
)

// ErrBadCredentials is returned for any login failure. Unknown address and
// wrong password are deliberately indistinguishable.
var ErrBadCredentials = errors.New("invalid email or password")

type staffGetter interface {
	GetByEmail(ctx context.Context, email string) (*models.Staff, error)
}

// Service authenticates staff accounts and hands out session tokens.
type Service struct {
	staff staffGetter
	jwt   *JWTManager
}

// NewService wires the auth service.
func NewService(staff staffGetter, jwt *JWTManager) *Service {
	return &Service{staff: staff, jwt: jwt}
}

// Login verifies the credentials and returns the account plus a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Staff, string, error) {
	account, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}
	if !account.Active {
		return nil, "", ErrBadCredentials
	}
	if !VerifyPassword(password, account.PasswordHash) {
		return nil, "", ErrBadCredentials
	}

	token, err := s.jwt.GenerateToken(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

// Verify validates a session token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.jwt.ValidateToken(token)
}
