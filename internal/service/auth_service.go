package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"config-codex/internal/domain"
	"config-codex/internal/events"
	"config-codex/internal/repository"
)

const timingGuardPassword = "config-codex-timing-guard"

var inputValidator = validator.New()

// AuthService coordina credenciales, registro y tokens.
type AuthService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	hasher    PasswordHasher
	policy    PasswordValidator
	tokens    *JWTService
	publisher events.Publisher
	limiter   LoginRateLimiter
	metrics   *Metrics
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// ProfileUpdate solo aplica los campos no nil.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	AvatarURL *string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	policy PasswordValidator,
	tokens *JWTService,
	publisher events.Publisher,
	limiter LoginRateLimiter,
	metrics *Metrics,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if policy == nil {
		policy = NewPasswordPolicy(DefaultMinPasswordLength)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if limiter == nil {
		limiter = NewLoginRateLimiter(15*time.Minute, 10)
	}
	return &AuthService{
		logger:    logger,
		users:     users,
		hasher:    hasher,
		policy:    policy,
		tokens:    tokens,
		publisher: publisher,
		limiter:   limiter,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *AuthService) AuthenticateUser(ctx context.Context, email, password, ip string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.RecordLogin(ResultFailure)
		return domain.User{}, ErrInvalidCredentials
	}
	if !s.limiter.Allow(email) {
		s.metrics.RecordLogin(ResultRateLimited)
		s.logger.Warn("login rate limited", zap.String("email", email), zap.String("ip", ip))
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.dummyPasswordHash())
			s.limiter.RecordFailure(email)
			s.metrics.RecordLogin(ResultFailure)
			return domain.User{}, ErrInvalidCredentials
		}
		s.metrics.RecordLogin(ResultInternalError)
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.limiter.RecordFailure(email)
		s.metrics.RecordLogin(ResultFailure)
		return domain.User{}, ErrInvalidCredentials
	}
	s.limiter.Reset(email)
	if !user.IsActive {
		s.metrics.RecordLogin(ResultInactive)
		return domain.User{}, ErrAccountDeactivated
	}

	if ip != "" {
		user.LastLoginIP = &ip
		user.UpdatedAt = s.now().UTC()
		if err := s.users.Update(ctx, user); err != nil {
			s.metrics.RecordLogin(ResultInternalError)
			return domain.User{}, fmt.Errorf("record login ip: %w", err)
		}
	}

	s.metrics.RecordLogin(ResultSuccess)
	s.publish(ctx, domain.Event{Type: domain.EventUserLoggedIn, IPAddress: ip}, user)
	return user, nil
}

func (s *AuthService) RegisterUser(ctx context.Context, input RegisterInput) (domain.User, error) {
	user, err := s.registerUser(ctx, input)
	switch {
	case err == nil:
		s.metrics.RecordRegistration(ResultSuccess)
	case errors.Is(err, ErrValidationFailed):
		s.metrics.RecordRegistration(ResultValidation)
	default:
		s.metrics.RecordRegistration(ResultInternalError)
	}
	return user, err
}

func (s *AuthService) registerUser(ctx context.Context, input RegisterInput) (domain.User, error) {
	email := normalizeEmail(input.Email)
	fields := make(map[string][]string)
	if email == "" {
		fields["email"] = []string{"This field is required."}
	} else if err := inputValidator.Var(email, "email"); err != nil {
		fields["email"] = []string{"Enter a valid email address."}
	}
	if input.Password == "" {
		fields["password"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		return domain.User{}, &ValidationError{Fields: fields}
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	if exists {
		return domain.User{}, newValidationError("email", "A user with this email already exists.")
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = email
	}
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)

	problems := s.policy.Validate(input.Password, UserAttributes{
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	})
	if len(problems) > 0 {
		return domain.User{}, newValidationError("password", problems...)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return domain.User{}, newValidationError("email", "A user with this email already exists.")
		case errors.Is(err, repository.ErrDuplicateUsername):
			return domain.User{}, newValidationError("username", "A user with that username already exists.")
		}
		s.logger.Error("create user failed", zap.Error(err), zap.String("email", email))
		return domain.User{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.publish(ctx, domain.Event{Type: domain.EventUserRegistered, FullName: user.FullName()}, user)
	return user, nil
}

func (s *AuthService) CreateTokens(user domain.User) (TokenPair, error) {
	return s.tokens.GeneratePair(user)
}

func (s *AuthService) ValidateAccessToken(token string) (AccessClaims, error) {
	return s.tokens.ValidateAccess(token)
}

func (s *AuthService) ValidateRefreshToken(token string) (RefreshClaims, error) {
	return s.tokens.ValidateRefresh(token)
}

// RefreshAccessToken emite un nuevo access token. El refresh token sigue siendo válido.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			s.metrics.RecordRefresh(ResultExpired)
		} else {
			s.metrics.RecordRefresh(ResultInvalid)
		}
		return TokenPair{}, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		s.metrics.RecordRefresh(ResultFailure)
		return TokenPair{}, err
	}

	pair, err := s.tokens.GenerateAccess(user)
	if err != nil {
		s.metrics.RecordRefresh(ResultInternalError)
		return TokenPair{}, err
	}
	s.metrics.RecordRefresh(ResultSuccess)
	return pair, nil
}

func (s *AuthService) GetUserFromToken(ctx context.Context, accessToken string) (domain.User, error) {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return domain.User{}, err
	}
	return s.activeUser(ctx, claims.UserID)
}

func (s *AuthService) Login(ctx context.Context, email, password, ip string) (domain.User, TokenPair, error) {
	user, err := s.AuthenticateUser(ctx, email, password, ip)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	pair, err := s.CreateTokens(user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, TokenPair, error) {
	user, err := s.RegisterUser(ctx, input)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	pair, err := s.CreateTokens(user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, user domain.User, currentPassword, newPassword string) error {
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrIncorrectPassword
	}
	problems := s.policy.Validate(newPassword, UserAttributes{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	})
	if len(problems) > 0 {
		return newValidationError("password", problems...)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, user); err != nil {
		return err
	}

	s.publish(ctx, domain.Event{Type: domain.EventUserPasswordChanged}, user)
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, user domain.User) (domain.User, error) {
	if user.EmailVerified {
		return user, ErrAlreadyVerified
	}
	user.EmailVerified = true
	user.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, user); err != nil {
		return domain.User{}, err
	}

	s.publish(ctx, domain.Event{Type: domain.EventUserEmailVerified}, user)
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, user domain.User, update ProfileUpdate) (domain.User, error) {
	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.AvatarURL != nil {
		avatar := strings.TrimSpace(*update.AvatarURL)
		if avatar == "" {
			user.AvatarURL = nil
		} else if err := inputValidator.Var(avatar, "url"); err != nil {
			return domain.User{}, newValidationError("avatar_url", "Enter a valid URL.")
		} else {
			user.AvatarURL = &avatar
		}
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Promote marca la cuenta como staff, superusuario y verificada.
func (s *AuthService) Promote(ctx context.Context, user domain.User) (domain.User, error) {
	user.IsStaff = true
	user.IsSuperuser = true
	user.EmailVerified = true
	user.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *AuthService) activeUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return domain.User{}, ErrAccountDeactivated
	}
	return user, nil
}

func (s *AuthService) save(ctx context.Context, user domain.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *AuthService) publish(ctx context.Context, event domain.Event, user domain.User) {
	event.AggregateID = user.ID
	event.Email = user.Email
	event.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}

// dummyPasswordHash iguala el costo de login para emails inexistentes.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(timingGuardPassword)
		if err != nil {
			s.logger.Warn("timing guard hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
