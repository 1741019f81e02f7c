package policies

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/domain/shared/daterange"
)

// PMS is the property-management system that owns the published nightly rates.
type PMS interface {
	SetNightlyPrice(ctx context.Context, listingID string, date time.Time, price decimal.Decimal) error
	// NightlyPrices returns the stored price per date keyed by daterange.Key.
	NightlyPrices(ctx context.Context, listingID string, cr daterange.CalendarRange) (map[string]decimal.Decimal, error)
}
