package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"dbella/pos/internal/domain"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	CountUsers(ctx context.Context) (int, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	validate *validator.Validate
	now      func() time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.ID, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// SignUp registers an active vendedor account. A display-name form such as
// "Eve <eve@dbella.co>" is reduced to the bare lowercase address, which is
// what Login looks up.
func (a *AuthManager) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.UserAccount, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: email is not valid", store.ErrInvalidInput)
	}
	req.Email = strings.ToLower(addr.Address)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		req.FullName = strings.TrimSpace(addr.Name)
	}
	if err := a.validate.Struct(req); err != nil {
		return domain.UserAccount{}, signUpError(err)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := a.users.CreateUser(ctx, domain.UserAccount{
		ID:        xid.New("usr"),
		Email:     req.Email,
		Password:  hash,
		FullName:  req.FullName,
		Role:      domain.RoleSeller,
		Active:    true,
		CreatedAt: a.now().UTC(),
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *created, nil
}

func signUpError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, strings.Join(parts, ", "))
}

// ParseToken verifies the signature and expiry and returns the user id.
func (a *AuthManager) ParseToken(tokenStr string) (string, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}

// Resolve loads the user behind a token so role changes and deactivation
// apply on the next request instead of at token expiry.
func (a *AuthManager) Resolve(ctx context.Context, userID string) (domain.Principal, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, errInvalidToken
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !user.Active {
		return domain.Principal{}, errInactiveAccount
	}
	return domain.Principal{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		Capabilities: domain.CapabilitiesFor(user.Role),
	}, nil
}

// EnsureSeedAdmin creates the first admin when the user table is empty.
func (a *AuthManager) EnsureSeedAdmin(ctx context.Context, email string, password string) error {
	count, err := a.users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		log.Warn().Msg("user table is empty and SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD are not set")
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	if _, err := a.users.CreateUser(ctx, domain.UserAccount{
		ID:        xid.New("usr"),
		Email:     email,
		Password:  hash,
		FullName:  "Administrador",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: a.now().UTC(),
	}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info().Str("email", email).Msg("seeded admin account")
	return nil
}

func (a *AuthManager) sign(userID string, role domain.Role, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "dbella-pos",
		},
		Role: string(role),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
