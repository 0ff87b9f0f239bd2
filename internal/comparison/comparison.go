// Package comparison diffs two category budget maps. It is pure: no storage,
// no clock, no logging.
package comparison

import (
	"sort"

	"github.com/shopspring/decimal"

	"homebudget/internal/models"
)

// Status classifies how a category changed between two maps.
type Status string

const (
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
	StatusIncreased Status = "increased"
	StatusDecreased Status = "decreased"
	StatusUnchanged Status = "unchanged"
)

var hundred = decimal.NewFromInt(100)

// CategoryDiff describes one category's change.
type CategoryDiff struct {
	CategoryID    string           `json:"category_id"`
	Name          string           `json:"name"`
	Status        Status           `json:"status"`
	Before        decimal.Decimal  `json:"before"`
	After         decimal.Decimal  `json:"after"`
	Difference    decimal.Decimal  `json:"difference"`
	PercentChange *decimal.Decimal `json:"percent_change"`
}

// Summary aggregates a comparison.
type Summary struct {
	TotalBefore     decimal.Decimal `json:"total_before"`
	TotalAfter      decimal.Decimal `json:"total_after"`
	TotalDifference decimal.Decimal `json:"total_difference"`
	Added           int             `json:"added"`
	Removed         int             `json:"removed"`
	Increased       int             `json:"increased"`
	Decreased       int             `json:"decreased"`
	Unchanged       int             `json:"unchanged"`
}

// Result is the output of Compare.
type Result struct {
	HasChanges bool           `json:"has_changes"`
	Categories []CategoryDiff `json:"categories"`
	Summary    Summary        `json:"summary"`
}

// Empty returns a result with no categories and zero totals.
func Empty() Result {
	return Result{
		Categories: []CategoryDiff{},
		Summary: Summary{
			TotalBefore:     decimal.Zero,
			TotalAfter:      decimal.Zero,
			TotalDifference: decimal.Zero,
		},
	}
}

// Compare diffs before against after. names resolves category IDs to display
// names; IDs missing from names are shown as the ID itself. Totals are taken
// over every entry present in each map.
func Compare(before, after models.CategoryMap, names map[string]string) Result {
	res := Empty()

	ids := make(map[string]struct{}, len(before)+len(after))
	for id := range before {
		ids[id] = struct{}{}
	}
	for id := range after {
		ids[id] = struct{}{}
	}

	for id := range ids {
		b, inBefore := before[id]
		a, inAfter := after[id]

		d := CategoryDiff{CategoryID: id, Name: nameOf(id, names), Before: decimal.Zero, After: decimal.Zero}
		if inBefore {
			d.Before = b.MonthlyLimit
			res.Summary.TotalBefore = res.Summary.TotalBefore.Add(b.MonthlyLimit)
		}
		if inAfter {
			d.After = a.MonthlyLimit
			res.Summary.TotalAfter = res.Summary.TotalAfter.Add(a.MonthlyLimit)
		}
		d.Difference = d.After.Sub(d.Before)

		switch {
		case !inBefore:
			d.Status = StatusAdded
			res.Summary.Added++
		case !inAfter:
			d.Status = StatusRemoved
			res.Summary.Removed++
		case d.Difference.IsPositive():
			d.Status = StatusIncreased
			res.Summary.Increased++
		case d.Difference.IsNegative():
			d.Status = StatusDecreased
			res.Summary.Decreased++
		default:
			d.Status = StatusUnchanged
			res.Summary.Unchanged++
		}

		if inBefore && inAfter && !d.Before.IsZero() {
			pct := d.Difference.Div(d.Before).Mul(hundred).Round(2)
			d.PercentChange = &pct
		}

		res.Categories = append(res.Categories, d)
	}

	sort.Slice(res.Categories, func(i, j int) bool {
		if res.Categories[i].Name != res.Categories[j].Name {
			return res.Categories[i].Name < res.Categories[j].Name
		}
		return res.Categories[i].CategoryID < res.Categories[j].CategoryID
	})

	res.Summary.TotalDifference = res.Summary.TotalAfter.Sub(res.Summary.TotalBefore)
	res.HasChanges = res.Summary.Added+res.Summary.Removed+res.Summary.Increased+res.Summary.Decreased > 0
	return res
}

func nameOf(id string, names map[string]string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}
