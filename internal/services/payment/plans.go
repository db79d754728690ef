package payment

import (
	"fmt"

	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Currency валюта всех тарифов.
const Currency = "RUB"

var premiumFeatures = []string{
	"unlimited_habits",
	"reminders",
	"goals",
}

// Catalogue статический каталог тарифов.
type Catalogue struct {
	plans []models.Plan
	byID  map[string]models.Plan
}

// DefaultCatalogue возвращает тарифы на месяц, квартал и год.
func DefaultCatalogue() *Catalogue {
	return NewCatalogue([]models.Plan{
		{ID: "month", Name: "Premium 1 month", Amount: "199.00", Currency: Currency, DurationDays: 30, Features: premiumFeatures},
		{ID: "quarter", Name: "Premium 3 months", Amount: "499.00", Currency: Currency, DurationDays: 90, Features: premiumFeatures},
		{ID: "year", Name: "Premium 12 months", Amount: "1690.00", Currency: Currency, DurationDays: 365, Features: premiumFeatures},
	})
}

// NewCatalogue создает каталог из списка тарифов.
func NewCatalogue(plans []models.Plan) *Catalogue {
	c := &Catalogue{plans: plans, byID: make(map[string]models.Plan, len(plans))}
	for _, p := range plans {
		c.byID[p.ID] = p
	}
	return c
}

// List возвращает тарифы в порядке объявления.
func (c *Catalogue) List() []models.Plan {
	out := make([]models.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Find возвращает тариф по id.
func (c *Catalogue) Find(id string) (models.Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("plan %q: %w", id, models.ErrUnknownPlan)
	}
	return p, nil
}
