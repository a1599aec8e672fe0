package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DashboardDays is how many daily metric rows the dashboard shows
const DashboardDays = 30

// MetricsReader reads precomputed dashboard rows, newest first
type MetricsReader interface {
	ListDailyMetrics(ctx context.Context, limit int) ([]models.DailyMetric, error)
}

// DashboardSummary holds the headline numbers of the admin dashboard
type DashboardSummary struct {
	RevenueToday     decimal.Decimal `json:"revenueToday"`
	RevenueWeek      decimal.Decimal `json:"revenueWeek"`
	RevenueMonth     decimal.Decimal `json:"revenueMonth"`
	OrdersMonth      int             `json:"ordersMonth"`
	NewListingsToday int             `json:"newListingsToday"`
	AvgOrderValue    decimal.Decimal `json:"avgOrderValue"`
}

// Dashboard is the admin dashboard payload
type Dashboard struct {
	Summary DashboardSummary     `json:"summary"`
	Metrics []models.DailyMetric `json:"metrics"`
}

// DashboardService builds the admin dashboard
type DashboardService struct {
	metrics MetricsReader
	now     func() time.Time
	logger  *zap.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(metrics MetricsReader) *DashboardService {
	return &DashboardService{
		metrics: metrics,
		now:     time.Now,
		logger:  util.GetLogger(),
	}
}

// GetDashboard loads the recent metric rows and summarizes them. A failed
// read renders an empty dashboard rather than an error page.
func (s *DashboardService) GetDashboard(ctx context.Context) *Dashboard {
	ctx, span := util.StartSpan(ctx, "DashboardService.GetDashboard")
	defer span.End()

	rows, err := s.metrics.ListDailyMetrics(ctx, DashboardDays)
	if err != nil {
		util.RecordError(span, err)
		s.logger.Error("Failed to load daily metrics", zap.Error(err))
		rows = []models.DailyMetric{}
	}

	return &Dashboard{
		Summary: Summarize(rows, s.now()),
		Metrics: rows,
	}
}

// Summarize computes the dashboard headline numbers. Days are UTC calendar
// days; the week is today plus the six days before it.
func Summarize(rows []models.DailyMetric, now time.Time) DashboardSummary {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -6)

	var sum DashboardSummary
	for _, m := range rows {
		d := m.Date.UTC()
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

		if day.Equal(today) {
			sum.RevenueToday = m.GrossRevenue
			sum.NewListingsToday = m.NewListings
			sum.AvgOrderValue = m.AvgOrderValue
		}
		if !day.Before(weekStart) {
			sum.RevenueWeek = sum.RevenueWeek.Add(m.GrossRevenue)
		}
		if day.Year() == today.Year() && day.Month() == today.Month() {
			sum.RevenueMonth = sum.RevenueMonth.Add(m.GrossRevenue)
			sum.OrdersMonth += m.Orders
		}
	}
	return sum
}
