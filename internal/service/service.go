package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"dbella/pos/internal/cache"
	"dbella/pos/internal/domain"
	"dbella/pos/internal/media"
	"dbella/pos/internal/metrics"
	"dbella/pos/internal/store"
	"dbella/pos/internal/xid"
)

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

type Options struct {
	Cache        cache.DashboardCache
	DashboardTTL time.Duration
	Media        media.Store
	Metrics      *metrics.Metrics
	Location     *time.Location
	Now          func() time.Time
}

type Service struct {
	repo         store.Repository
	cache        cache.DashboardCache
	dashboardTTL time.Duration
	media        media.Store
	metrics      *metrics.Metrics
	loc          *time.Location
	now          func() time.Time
	validate     *validator.Validate
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopDashboardCache{}
	}
	if opts.DashboardTTL <= 0 {
		opts.DashboardTTL = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:         repo,
		cache:        opts.Cache,
		dashboardTTL: opts.DashboardTTL,
		media:        opts.Media,
		metrics:      opts.Metrics,
		loc:          opts.Location,
		now:          opts.Now,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// check runs the struct tags and flattens the first failures into one
// ErrInvalidInput message.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
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

func (s *Service) canSeeProfit(ctx context.Context) bool {
	principal, ok := PrincipalFromContext(ctx)
	return ok && principal.Can(domain.CapProfitability)
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("dashboard cache invalidation failed")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		principal = domain.Principal{Email: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("aud"),
		Actor:      principal.Email,
		ActorRole:  string(principal.Role),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

func (s *Service) actorID(ctx context.Context) string {
	if principal, ok := PrincipalFromContext(ctx); ok {
		return principal.UserID
	}
	return ""
}

// dateRange parses inclusive yyyy-mm-dd bounds in the configured timezone and
// returns [from, to+1day). An empty from defaults to the first of the current
// month, an empty to defaults to today.
func (s *Service) dateRange(from string, to string) (time.Time, time.Time, error) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	if from = strings.TrimSpace(from); from != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, from, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be yyyy-mm-dd", store.ErrInvalidInput)
		}
		start = parsed
	}
	if to = strings.TrimSpace(to); to != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, to, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be yyyy-mm-dd", store.ErrInvalidInput)
		}
		end = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", store.ErrInvalidInput)
	}
	return start, end.AddDate(0, 0, 1), nil
}

func formatDay(t time.Time) string {
	return t.Format(time.DateOnly)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
