package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"workshop-service/internal/cache"
	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

const (
	dashboardCacheKey = cache.PrefixDashboard + "stats"
	dashboardCacheTTL = 30 * time.Second
)

// StatsCache is the read-through cache the dashboard uses. Misses and
// failures both fall back to computing from the database.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type DashboardService struct {
	quotes *repository.QuoteRepository
	orders *repository.WorkOrderRepository
	cache  StatsCache
	log    zerolog.Logger
}

func NewDashboardService(
	quotes *repository.QuoteRepository,
	orders *repository.WorkOrderRepository,
	statsCache StatsCache,
	log zerolog.Logger,
) *DashboardService {
	return &DashboardService{
		quotes: quotes,
		orders: orders,
		cache:  statsCache,
		log:    log,
	}
}

type DashboardStats struct {
	QuotesByStatus map[model.QuoteStatus]int64     `json:"quotes_by_status"`
	OrdersByStatus map[model.WorkOrderStatus]int64 `json:"orders_by_status"`
	Revenue        float64                         `json:"revenue"`
	GeneratedAt    time.Time                       `json:"generated_at"`
}

func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	if s.cache != nil {
		var cached DashboardStats
		hit, err := s.cache.GetJSON(ctx, dashboardCacheKey, &cached)
		if err != nil {
			s.log.Warn().Err(err).Msg("dashboard cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	quoteCounts, err := s.quotes.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	orderCounts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.orders.DeliveredRevenue(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		QuotesByStatus: quoteCounts,
		OrdersByStatus: orderCounts,
		Revenue:        revenue,
		GeneratedAt:    time.Now(),
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, dashboardCacheKey, stats, dashboardCacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("dashboard cache write failed")
		}
	}

	return stats, nil
}
