package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/user"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailRequired       = errors.New("email is required")
	ErrPasswordRequired    = errors.New("password is required")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrInvalidEmailFormat  = errors.New("invalid email format")
	ErrInvalidReferralCode = errors.New("invalid referral code")
)

// maxCodeAttempts bounds referral code regeneration on collisions.
const maxCodeAttempts = 5

// Session is returned by signup and signin.
type Session struct {
	User  *user.User
	Token string
}

// Service handles account creation and token issuance
type Service struct {
	users               user.Store
	tokens              TokenService
	logger              *logging.Logger
	accessTokenDuration time.Duration
	giftCredits         int
	now                 func() time.Time
}

func NewService(
	users user.Store,
	tokens TokenService,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	giftCredits int,
) *Service {
	return &Service{
		users:               users,
		tokens:              tokens,
		logger:              logger,
		accessTokenDuration: accessTokenDuration,
		giftCredits:         giftCredits,
		now:                 time.Now,
	}
}

// Signup creates an account, attributing it to the owner of referralCode
// when one is given, and signs the new user in.
func (s *Service) Signup(ctx context.Context, email, password, referralCode string) (*Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	var referrer *user.User
	if referralCode != "" {
		r, err := s.users.GetByReferralCode(ctx, referralCode)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, ErrInvalidReferralCode
			}
			return nil, fmt.Errorf("failed to look up referral code: %w", err)
		}
		referrer = r
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.createWithFreshCode(ctx, email, passwordHash, referrer)
	if err != nil {
		return nil, err
	}

	logArgs := []any{"user_id", created.ID}
	if referrer != nil {
		logArgs = append(logArgs, "referrer_id", referrer.ID)
	}
	s.logger.Info("user signed up", logArgs...)

	return s.session(created)
}

// createWithFreshCode inserts the user, drawing a new referral code whenever
// the previous one was already taken.
func (s *Service) createWithFreshCode(ctx context.Context, email, passwordHash string, referrer *user.User) (*user.User, error) {
	for range maxCodeAttempts {
		code, err := user.GenerateReferralCode()
		if err != nil {
			return nil, err
		}

		u := user.NewUser(email, passwordHash, code, referrer, s.giftCredits, s.now().UTC())
		created, err := s.users.Create(ctx, u)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, user.ErrDuplicateReferralCode) {
			s.logger.Debug("referral code collision, retrying", "code", code)
			continue
		}
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return nil, fmt.Errorf("failed to create user: %w", user.ErrDuplicateReferralCode)
}

// Signin authenticates a user and returns a fresh token
func (s *Service) Signin(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !VerifyPassword(existing.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.session(existing)
}

// Me returns the user a verified token belongs to.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, err := s.tokens.CreateToken(u.ID, u.Email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return &Session{User: u, Token: token}, nil
}

func validateCredentials(email, password string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmailFormat
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
