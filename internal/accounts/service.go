package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/forsocials/replyriser-backend/pkg/auth"
	"github.com/forsocials/replyriser-backend/pkg/clock"
	"github.com/forsocials/replyriser-backend/pkg/config"
	"github.com/forsocials/replyriser-backend/pkg/db"
	"github.com/forsocials/replyriser-backend/pkg/db/models"
	pkgerrors "github.com/forsocials/replyriser-backend/pkg/errors"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	minPasswordLength         = 8
)

// SignupRequest is the payload accepted by POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SignupResult is returned once the account row exists.
type SignupResult struct {
	Account *AccountDTO `json:"account"`
	Message string      `json:"message"`
}

// LoginRequest is the payload accepted by POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token used by the extension.
type LoginResponse struct {
	Token   string      `json:"token"`
	Account *AccountDTO `json:"account"`
}

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	Verify(ctx context.Context, token string) (*AccountDTO, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type accountRepository interface {
	Create(ctx context.Context, dto CreateAccountDTO) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.Account, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type service struct {
	repo        accountRepository
	clock       clock.Clock
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

// ServiceParams bundles the dependencies required to build an accounts service.
type ServiceParams struct {
	Repo           accountRepository
	Clock          clock.Clock
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

// NewService constructs the signup/verify/login service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &service{
		repo:        params.Repo,
		clock:       clk,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
	}, nil
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check account email")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	token, err := security.NewVerificationToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification token")
	}

	account, err := s.repo.Create(ctx, CreateAccountDTO{
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: token,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}

	// Verification mail is sent out-of-band; the token is logged for operators.
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":            account.ID.String(),
		"verification_token": token,
	})
	s.logg.Info(logCtx, "account.signup.verification_pending")

	return &SignupResult{
		Account: FromModel(account),
		Message: "Signup successful. Check your email to verify your account.",
	}, nil
}

func (s *service) Verify(ctx context.Context, token string) (*AccountDTO, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	account, err := s.repo.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid or expired token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup verification token")
	}
	if err := s.repo.MarkVerified(ctx, account.ID, s.clock.Now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark account verified")
	}
	account.IsVerified = true
	account.VerificationToken = nil
	return FromModel(account), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup account")
	}

	valid, err := security.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if !account.IsVerified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "email not verified")
	}

	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.clock.Now(), pkgAuth.AccessTokenPayload{
		UserID: account.ID,
		Email:  account.Email,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &LoginResponse{Token: token, Account: FromModel(account)}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
