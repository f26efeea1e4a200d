/*
Package factory provides JSON to Go plan conversion.

PURPOSE:
  Converts JSON plan definitions into ledger.Plan values. This enables
  catalog configuration without code changes - the studio owner can define
  plans in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify the plan catalog
  - Easy integration with an admin UI
  - Version control for plan definitions

JSON SCHEMA:
  {
    "name": "Grup8",
    "lesson_count": 8,
    "price": "800.00"
  }

USAGE:
  plan, err := factory.ParsePlan(jsonString)

  // Built-in presets (recommended for fresh installs)
  if err := factory.SeedDefaults(ctx, store); err != nil { ... }

SEE ALSO:
  - ledger/types.go: Plan type definition
  - api/scenarios.go: demo loaders built on the presets
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/studio-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PlanJSON is the JSON representation of a purchasable plan.
type PlanJSON struct {
	Name        string `json:"name"`
	LessonCount int    `json:"lesson_count"`
	Price       string `json:"price"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePlan converts a single JSON plan definition into a ledger.Plan.
func ParsePlan(jsonStr string) (*ledger.Plan, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	return planFromJSON(pj)
}

// ParseCatalog converts a JSON array of plan definitions.
func ParseCatalog(jsonStr string) ([]ledger.Plan, error) {
	var defs []PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &defs); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	out := make([]ledger.Plan, 0, len(defs))
	for _, pj := range defs {
		p, err := planFromJSON(pj)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func planFromJSON(pj PlanJSON) (*ledger.Plan, error) {
	if pj.Name == "" {
		return nil, fmt.Errorf("plan name is required")
	}
	if pj.LessonCount < 0 {
		return nil, fmt.Errorf("plan %q: lesson_count must not be negative", pj.Name)
	}
	price := decimal.Zero
	if pj.Price != "" {
		var err error
		price, err = decimal.NewFromString(pj.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %q: invalid price %q: %w", pj.Name, pj.Price, err)
		}
	}
	return &ledger.Plan{Name: pj.Name, LessonCount: pj.LessonCount, Price: price}, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultCatalog returns the standard group plans a fresh install starts
// with. Prices are in the studio's local currency.
func DefaultCatalog() []ledger.Plan {
	return []ledger.Plan{
		{Name: "Grup2", LessonCount: 2, Price: decimal.RequireFromString("300")},
		{Name: "Grup4", LessonCount: 4, Price: decimal.RequireFromString("560")},
		{Name: "Grup8", LessonCount: 8, Price: decimal.RequireFromString("1040")},
		{Name: "Grup12", LessonCount: 12, Price: decimal.RequireFromString("1440")},
	}
}

// SeedDefaults upserts the default catalog. Existing plans with the same
// name are overwritten, so repeated seeding is safe.
func SeedDefaults(ctx context.Context, store ledger.Store) error {
	for _, p := range DefaultCatalog() {
		plan := p
		if err := store.SavePlan(ctx, &plan); err != nil {
			return fmt.Errorf("failed to seed plan %q: %w", p.Name, err)
		}
	}
	return nil
}
