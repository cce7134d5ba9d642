package reports

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
	"github.com/mmdatafocus/survey_backend/indicators"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrNoReadinessData  = errors.New("no readiness data available")
)

const DefaultCacheTTL = 5 * time.Minute

// Service computes read-only campaign summaries from persisted surveys.
type Service struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
	logger   *logrus.Logger
	scorer   indicators.ReadinessScorer
}

type Option func(*Service)

// WithCache caches every summary under the campaign for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithReadinessKeywords replaces the keywords that select readiness questions
// in the indicator report. An empty list keeps the defaults.
func WithReadinessKeywords(keywords ...string) Option {
	return func(s *Service) {
		if len(keywords) > 0 {
			s.scorer = indicators.NewReadinessScorer(keywords...)
		}
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:       db,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		logger:   config.GetLogger(),
		scorer:   indicators.NewReadinessScorer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops every cached summary of the campaign. The sync engine
// calls it after each run.
func (s *Service) Invalidate(ctx context.Context, campaignId int) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, campaignId)
}

// cached serves name from the cache or computes and stores it. Cache errors
// are logged and never fail the request.
func cached[T any](ctx context.Context, s *Service, campaignId int, name string, compute func() (T, error)) (T, error) {
	if s.cache == nil {
		return compute()
	}
	key := cacheKey(campaignId, name)
	var hit T
	ok, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		config.LogError(s.logger, "reports", "cached", "cache get", key, err)
	} else if ok {
		return hit, nil
	}
	result, err := compute()
	if err != nil {
		return result, err
	}
	if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
		config.LogError(s.logger, "reports", "cached", "cache set", key, err)
	}
	return result, nil
}

func (s *Service) campaign(ctx context.Context, campaignId int) (*models.SurveyCampaign, error) {
	campaign, err := models.GetSurveyCampaign(ctx, s.db, campaignId)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

var hundred = decimal.NewFromInt(100)

// percentOf is part/whole*100 rounded to places; zero when whole is zero.
func percentOf(part, whole int, places int32) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(places)
}

func optionalPercent(part, whole int) *decimal.Decimal {
	if whole == 0 {
		return nil
	}
	p := percentOf(part, whole, 1)
	return &p
}

func average(values []decimal.Decimal) *decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2)
	return &avg
}
