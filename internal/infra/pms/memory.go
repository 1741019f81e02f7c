package pms

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/app/policies"
	"rateguard/internal/domain/shared/daterange"
)

var ErrInjected = errors.New("pms: injected failure")

// Memory is an in-process PMS calendar used for local runs and tests.
type Memory struct {
	mu       sync.Mutex
	prices   map[string]map[string]decimal.Decimal
	failOn   map[string]error
	readErr  error
	override map[string]decimal.Decimal
	calls    int
}

func NewMemory() *Memory {
	return &Memory{
		prices:   make(map[string]map[string]decimal.Decimal),
		failOn:   make(map[string]error),
		override: make(map[string]decimal.Decimal),
	}
}

func slot(listingID string, date time.Time) string {
	return listingID + "/" + daterange.Key(date)
}

// FailOn makes SetNightlyPrice fail for the date until ClearFailures is called.
func (m *Memory) FailOn(listingID string, date time.Time, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[slot(listingID, date)] = err
}

// FailReads makes NightlyPrices return err.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Drift makes read-back report price for the date regardless of what was written.
func (m *Memory) Drift(listingID string, date time.Time, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override[slot(listingID, date)] = price
}

func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = make(map[string]error)
	m.readErr = nil
	m.override = make(map[string]decimal.Decimal)
}

// Calls reports how many SetNightlyPrice calls were received.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) SetNightlyPrice(ctx context.Context, listingID string, date time.Time, price decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.failOn[slot(listingID, date)]; ok {
		return err
	}
	days, ok := m.prices[listingID]
	if !ok {
		days = make(map[string]decimal.Decimal)
		m.prices[listingID] = days
	}
	days[daterange.Key(date)] = price
	return nil
}

func (m *Memory) NightlyPrices(ctx context.Context, listingID string, cr daterange.CalendarRange) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make(map[string]decimal.Decimal)
	for _, date := range cr.Dates() {
		key := daterange.Key(date)
		if price, ok := m.override[slot(listingID, date)]; ok {
			out[key] = price
			continue
		}
		if price, ok := m.prices[listingID][key]; ok {
			out[key] = price
		}
	}
	return out, nil
}

var _ policies.PMS = (*Memory)(nil)
