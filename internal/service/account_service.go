package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"civic-identity/internal/domain"
	"civic-identity/internal/guard"
	"civic-identity/internal/repository"
	"civic-identity/internal/security"
)

// MaxUniqueCodeAttempts acota los reintentos ante colisiones del codigo publico.
const MaxUniqueCodeAttempts = 50

// RegisterInput son los datos de alta enviados por el ciudadano.
type RegisterInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	FiscalCode string `json:"fiscal_code"`
}

// LoginResult es el usuario autenticado junto con su nueva sesion.
type LoginResult struct {
	User    domain.User    `json:"user"`
	Session domain.Session `json:"session"`
}

// AccountService coordina alta, acceso y cierre de sesion.
// Toda peticion pasa primero por el guard.
type AccountService struct {
	logger        *zap.Logger
	store         repository.Store
	guard         *guard.Guard
	hasher        security.Hasher
	tokens        security.TokenGenerator
	sessions      *SessionService
	verifications *VerificationService
	fiscalCodeOK  func(string) bool
	now           func() time.Time
}

type AccountOption func(*AccountService)

// WithFiscalCodeValidator sustituye la validacion de formato por una que compruebe tambien el digito de control.
func WithFiscalCodeValidator(fn func(string) bool) AccountOption {
	return func(s *AccountService) {
		if fn != nil {
			s.fiscalCodeOK = fn
		}
	}
}

func NewAccountService(
	logger *zap.Logger,
	store repository.Store,
	g *guard.Guard,
	hasher security.Hasher,
	tokens security.TokenGenerator,
	sessions *SessionService,
	verifications *VerificationService,
	opts ...AccountOption,
) *AccountService {
	s := &AccountService{
		logger:        logger,
		store:         store,
		guard:         g,
		hasher:        hasher,
		tokens:        tokens,
		sessions:      sessions,
		verifications: verifications,
		fiscalCodeOK:  guard.IsFiscalCodeFormat,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register da de alta un usuario no verificado y le envia el enlace de verificacion.
func (s *AccountService) Register(ctx context.Context, in RegisterInput, clientID string, headers http.Header) (domain.User, error) {
	in = normalizeRegisterInput(in)

	if _, err := s.guard.CheckRegistration(ctx, clientID, guard.SpamInput{
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		FiscalCode: in.FiscalCode,
	}, headers); err != nil {
		return domain.User{}, err
	}

	if err := s.validate(in); err != nil {
		return domain.User{}, err
	}

	users := s.store.Repos().Users
	if _, err := users.GetActiveByEmail(ctx, in.Email); err == nil {
		return domain.User{}, ErrConflict
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, storageError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		FiscalCode:   in.FiscalCode,
		IsActive:     true,
		CreatedAt:    s.now(),
	}

	created := false
	for attempt := 0; attempt < MaxUniqueCodeAttempts; attempt++ {
		code, err := s.tokens.UniqueCode()
		if err != nil {
			return domain.User{}, err
		}
		if !security.IsUniqueCode(code) {
			return domain.User{}, fmt.Errorf("generated unique code %q has invalid format", code)
		}
		exists, err := users.UniqueCodeExists(ctx, code)
		if err != nil {
			return domain.User{}, storageError(err)
		}
		if exists {
			continue
		}
		user.UniqueCode = code
		err = users.Create(ctx, user)
		if err == nil {
			created = true
			break
		}
		switch {
		case repository.IsUniqueViolation(err, repository.ConstraintUserUniqueCode):
			continue
		case repository.IsUniqueViolation(err, repository.ConstraintUserEmailActive),
			repository.IsUniqueViolation(err, repository.ConstraintUserFiscalActive):
			return domain.User{}, ErrConflict
		default:
			return domain.User{}, storageError(err)
		}
	}
	if !created {
		s.logger.Error("unique code space exhausted", zap.Int("attempts", MaxUniqueCodeAttempts))
		return domain.User{}, ErrCodeSpaceExhausted
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("unique_code", user.UniqueCode))

	if _, err := s.verifications.Request(ctx, user.ID); err != nil {
		s.logger.Warn("issue verification after register failed", zap.Error(err), zap.String("user_id", user.ID))
	}
	return user, nil
}

// Login abre una sesion si las credenciales son correctas y el email esta verificado.
func (s *AccountService) Login(ctx context.Context, emailAddr, password, clientID string) (LoginResult, error) {
	if err := s.guard.CheckLogin(clientID); err != nil {
		return LoginResult{}, err
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.store.Repos().Users.GetActiveByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, storageError(err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return LoginResult{User: user, Session: session}, nil
}

func (s *AccountService) Logout(ctx context.Context, sessionToken string) error {
	return s.sessions.Revoke(ctx, sessionToken)
}

func (s *AccountService) validate(in RegisterInput) error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.FiscalCode, validation.By(s.fiscalCodeRule)),
	)
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			fields[name] = fieldErr.Error()
		}
		return &ValidationError{Fields: fields}
	}
	return err
}

func (s *AccountService) fiscalCodeRule(value interface{}) error {
	code, _ := value.(string)
	if code == "" || s.fiscalCodeOK(code) {
		return nil
	}
	return errors.New("must be a valid fiscal code")
}

func normalizeRegisterInput(in RegisterInput) RegisterInput {
	return RegisterInput{
		Email:      normalizeEmail(in.Email),
		Password:   in.Password,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		FiscalCode: strings.ToUpper(strings.TrimSpace(in.FiscalCode)),
	}
}
