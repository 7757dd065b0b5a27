package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/drought-cdi-service/internal/domain"
	"github.com/couchcryptid/drought-cdi-service/internal/observability"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrWoredaRequired is returned when a woreda officer registers without a woreda.
var ErrWoredaRequired = errors.New("woreda is required for this role")

// ValidationError is a registration failure with a message fit to show the user.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// RegisterInput is the self-registration form.
type RegisterInput struct {
	Name   string `json:"name" validate:"required,max=100"`
	Email  string `json:"email" validate:"required,email"`
	Role   string `json:"role" validate:"required,oneof=admin regional_officer woreda_officer"`
	Region string `json:"region" validate:"required"`
	Woreda string `json:"woreda"`
}

// Session is an authenticated user with the token that identifies it.
type Session struct {
	ID        string      `json:"id"`
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Claims are the JWT claims of a session token. The token ID is the session ID.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager logs users in and out and resolves tokens to sessions.
type Manager struct {
	store    *Store
	secret   []byte
	ttl      time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewManager creates a Manager signing tokens with secret.
func NewManager(store *Store, secret string, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		secret:   []byte(secret),
		ttl:      ttl,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Login starts a session for the user with email.
func (m *Manager) Login(ctx context.Context, email string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := m.store.UserByEmail(email)
	if err != nil {
		m.metrics.AuthAttempts.WithLabelValues("login", "rejected").Inc()
		return nil, err
	}
	s, err := m.start(u)
	if err != nil {
		return nil, err
	}
	m.metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	m.logger.Info("user logged in", "user_id", u.ID, "role", u.Role)
	return s, nil
}

// Register validates in, stores the new user, and starts a session for it.
// Validation failures are *ValidationError and leave the store untouched.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := m.newUser(in)
	if err != nil {
		m.metrics.AuthAttempts.WithLabelValues("register", "rejected").Inc()
		return nil, err
	}
	if err := m.store.CreateUser(u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			m.metrics.AuthAttempts.WithLabelValues("register", "rejected").Inc()
			return nil, &ValidationError{Message: "Email already registered", Err: err}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s, err := m.start(u)
	if err != nil {
		return nil, err
	}
	m.metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	m.logger.Info("user registered", "user_id", u.ID, "role", u.Role, "region", u.PlaceOfInterest.Region)
	return s, nil
}

// Current resolves a token to its live session.
func (m *Manager) Current(ctx context.Context, token string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	rec, err := m.store.Session(claims.ID)
	if err != nil {
		return nil, err
	}
	if !m.clock.Now().Before(rec.ExpiresAt) {
		return nil, ErrNoSession
	}
	u, err := m.store.UserByEmail(rec.Email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return &Session{ID: rec.ID, Token: token, User: u, ExpiresAt: rec.ExpiresAt}, nil
}

// Logout revokes the session behind token and returns its ID.
func (m *Manager) Logout(ctx context.Context, token string) (string, error) {
	s, err := m.Current(ctx, token)
	if err != nil {
		return "", err
	}
	if err := m.store.DeleteSession(s.ID); err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}
	m.metrics.SessionsActive.Dec()
	m.logger.Info("user logged out", "user_id", s.User.ID)
	return s.ID, nil
}

// SessionID returns the session ID carried by a correctly signed token,
// whether or not the session is still live.
func (m *Manager) SessionID(token string) (string, bool) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil || claims.ID == "" {
		return "", false
	}
	return claims.ID, true
}

// Sweep deletes expired session records, sets the active sessions gauge to
// the live count, and returns the IDs it removed.
func (m *Manager) Sweep() ([]string, error) {
	recs, err := m.store.Sessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := m.clock.Now()
	var expired []string
	for _, rec := range recs {
		if now.Before(rec.ExpiresAt) {
			continue
		}
		if err := m.store.DeleteSession(rec.ID); err != nil {
			return expired, fmt.Errorf("delete session: %w", err)
		}
		expired = append(expired, rec.ID)
	}
	m.metrics.SessionsActive.Set(float64(len(recs) - len(expired)))
	return expired, nil
}

// Run sweeps every interval until ctx is cancelled, passing each expired
// session ID to onExpire.
func (m *Manager) Run(ctx context.Context, interval time.Duration, onExpire func(id string)) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			expired, err := m.Sweep()
			if err != nil {
				m.logger.Warn("session sweep failed", "error", err)
			}
			for _, id := range expired {
				onExpire(id)
			}
			if len(expired) > 0 {
				m.logger.Info("expired sessions removed", "count", len(expired))
			}
		}
	}
}

func (m *Manager) start(u domain.User) (*Session, error) {
	now := m.clock.Now()
	rec := Record{
		ID:        uuid.NewString(),
		Email:     NormalizeEmail(u.Email),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	token, err := m.sign(u, rec)
	if err != nil {
		return nil, err
	}
	if err := m.store.PutSession(rec, now); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	m.metrics.SessionsActive.Inc()
	return &Session{ID: rec.ID, Token: token, User: u, ExpiresAt: rec.ExpiresAt}, nil
}

func (m *Manager) sign(u domain.User, rec Record) (string, error) {
	claims := &Claims{
		Email: rec.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(rec.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc, jwt.WithTimeFunc(m.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if claims.ID == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return m.secret, nil
}

func (m *Manager) newUser(in RegisterInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Woreda = strings.TrimSpace(in.Woreda)

	if err := m.validate.Struct(in); err != nil {
		return domain.User{}, validationMessage(err)
	}
	region, err := domain.ParseRegion(in.Region)
	if err != nil {
		return domain.User{}, &ValidationError{Message: "Unknown region", Err: err}
	}
	role := domain.Role(in.Role)
	if role == domain.RoleWoredaOfficer && in.Woreda == "" {
		return domain.User{}, &ValidationError{Message: "Woreda is required for this role", Err: ErrWoredaRequired}
	}
	if in.Woreda != "" && !domain.HasWoreda(region, in.Woreda) {
		return domain.User{}, &ValidationError{Message: fmt.Sprintf("Woreda %s is not in %s", in.Woreda, region.DisplayName())}
	}

	return domain.User{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Email:           in.Email,
		Role:            role,
		AllowedRegions:  domain.RegionsForRole(role, region),
		PlaceOfInterest: domain.PlaceOfInterest{Region: region, Woreda: in.Woreda},
	}, nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: "Invalid registration", Err: err}
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "email":
		msg = "Email is not valid"
	case "oneof":
		msg = "Unknown " + strings.ToLower(fe.Field())
	case "max":
		msg = fe.Field() + " is too long"
	default:
		msg = fe.Field() + " is invalid"
	}
	return &ValidationError{Message: msg, Err: err}
}
