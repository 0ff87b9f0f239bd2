package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultWarningThreshold is the warning threshold, in percent of the
// monthly limit, given to categories that enter a budget without one.
const DefaultWarningThreshold = 80

// CategoryConfig is the per-category budget configuration embedded in
// templates and monthly budgets.
type CategoryConfig struct {
	MonthlyLimit     decimal.Decimal `json:"monthly_limit"`
	WarningThreshold int             `json:"warning_threshold"`
	IsActive         bool            `json:"is_active"`
	Color            string          `json:"color,omitempty"`
	Description      string          `json:"description,omitempty"`
}

// CategoryMap maps a category ID to its configuration. Keys are stable
// category identifiers; display names live in the category registry.
type CategoryMap map[string]CategoryConfig

// Clone returns an independent copy of the map.
func (m CategoryMap) Clone() CategoryMap {
	out := make(CategoryMap, len(m))
	for id, cfg := range m {
		out[id] = cfg
	}
	return out
}

// IDs returns the category IDs in the map in sorted order.
func (m CategoryMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveIDs returns the sorted IDs of active categories.
func (m CategoryMap) ActiveIDs() []string {
	ids := make([]string, 0, len(m))
	for _, id := range m.IDs() {
		if m[id].IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalLimit sums the monthly limits of active categories.
func (m CategoryMap) TotalLimit() decimal.Decimal {
	total := decimal.Zero
	for _, cfg := range m {
		if cfg.IsActive {
			total = total.Add(cfg.MonthlyLimit)
		}
	}
	return total
}

// BudgetSettings holds household-wide template settings.
type BudgetSettings struct {
	Currency          string   `json:"currency"`
	NotifyOnWarning   bool     `json:"notify_on_warning"`
	NotifyOnExceeded  bool     `json:"notify_on_exceeded"`
	ActiveCategoryIDs []string `json:"active_category_ids"`
}

// Clone returns an independent copy of the settings.
func (s BudgetSettings) Clone() BudgetSettings {
	out := s
	out.ActiveCategoryIDs = append([]string(nil), s.ActiveCategoryIDs...)
	return out
}
