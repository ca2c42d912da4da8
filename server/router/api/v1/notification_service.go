package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/fridgesense/store"
)

// NotificationService reports upcoming expirations.
type NotificationService struct {
	Store *store.Store
}

// ExpiringItem is one inventory item approaching its expiration date.
type ExpiringItem struct {
	ID             int32  `json:"id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	ExpirationDate string `json:"expiration_date"`
	DaysLeft       int    `json:"days_left"`
}

// ExpirationReport buckets inventory by urgency. An item appears in
// exactly one bucket, the most urgent one it qualifies for.
type ExpirationReport struct {
	Expired      []ExpiringItem `json:"expired"`
	Warning3Days []ExpiringItem `json:"warning_3_days"`
	WarningWeek  []ExpiringItem `json:"warning_week"`
}

// CheckExpirations returns the current expiration report.
func (s *NotificationService) CheckExpirations(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := s.Store.ListInventoryItems(ctx, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list items").SetInternal(err)
	}
	return c.JSON(http.StatusOK, bucketExpirations(items, time.Now().UTC()))
}

// bucketExpirations classifies items into expired / 3-day / 7-day
// buckets relative to now. Items with unparseable expiration dates are
// skipped with a warning; they must not break the report.
func bucketExpirations(items []*store.InventoryItem, now time.Time) *ExpirationReport {
	report := &ExpirationReport{
		Expired:      []ExpiringItem{},
		Warning3Days: []ExpiringItem{},
		WarningWeek:  []ExpiringItem{},
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, item := range items {
		expiration, ok := parseExpirationDate(item.ExpirationDate)
		if !ok {
			slog.Warn("skipping item with unparseable expiration date",
				"item", item.Name, "expiration_date", item.ExpirationDate)
			continue
		}

		daysLeft := int(expiration.Sub(today).Hours() / 24)
		entry := ExpiringItem{
			ID:             item.ID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			ExpirationDate: item.ExpirationDate,
			DaysLeft:       daysLeft,
		}

		switch {
		case daysLeft < 0:
			report.Expired = append(report.Expired, entry)
		case daysLeft <= 3:
			report.Warning3Days = append(report.Warning3Days, entry)
		case daysLeft <= 7:
			report.WarningWeek = append(report.WarningWeek, entry)
		}
	}
	return report
}

// parseExpirationDate accepts the two formats found in stored data:
// ISO calendar dates and full RFC 3339 timestamps. Either way the
// result is truncated to the calendar day.
func parseExpirationDate(value string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
