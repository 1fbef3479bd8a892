package entitlement

import (
	"sort"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// Catalog прайс-лист тарифов. Используется для отображения, вывода тарифа
// по сумме платежа и расчёта доплаты при апгрейде. Закрытым множеством
// допустимых сумм не является.
type Catalog struct {
	plans []models.Plan
	byID  map[string]models.Plan
}

// NewCatalog строит каталог, упорядоченный по возрастанию цены.
func NewCatalog(plans []models.Plan) *Catalog {
	sorted := make([]models.Plan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	byID := make(map[string]models.Plan, len(sorted))
	for _, p := range sorted {
		byID[p.ID] = p
	}
	return &Catalog{plans: sorted, byID: byID}
}

// Plans возвращает копию списка тарифов.
func (c *Catalog) Plans() []models.Plan {
	out := make([]models.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// ByID ищет тариф по идентификатору.
func (c *Catalog) ByID(id string) (models.Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ByPrice ищет тариф по номинальной цене.
func (c *Catalog) ByPrice(amount int64) (models.Plan, bool) {
	for _, p := range c.plans {
		if p.Price == amount {
			return p, true
		}
	}
	return models.Plan{}, false
}

// priceOf возвращает номинальную цену текущего тарифа пользователя.
func (c *Catalog) priceOf(e models.Entitlement) int64 {
	if p, ok := c.byID[e.PlanID]; ok {
		return p.Price
	}
	return e.Amount
}

// Charge возвращает сумму к оплате за переход на target. Если у пользователя
// активна подписка на более дешёвый тариф, списывается разница цен,
// иначе полная цена target.
func (c *Catalog) Charge(current models.Entitlement, target models.Plan, now time.Time) int64 {
	if !current.IsSubscribed() || current.ExpiredAt(now) {
		return target.Price
	}
	if cur := c.priceOf(current); cur > 0 && cur < target.Price {
		return target.Price - cur
	}
	return target.Price
}

// Resolve определяет тариф, за который внесён платёж. planID имеет приоритет,
// затем точное совпадение суммы с ценой, затем сумма как доплата за апгрейд
// с текущего активного тарифа.
func (c *Catalog) Resolve(current models.Entitlement, planID string, amount int64, now time.Time) (models.Plan, bool) {
	if planID != "" {
		return c.ByID(planID)
	}
	if p, ok := c.ByPrice(amount); ok {
		return p, true
	}
	if !current.IsSubscribed() || current.ExpiredAt(now) {
		return models.Plan{}, false
	}
	cur := c.priceOf(current)
	for _, p := range c.plans {
		if p.Price > cur && p.Price-cur == amount {
			return p, true
		}
	}
	return models.Plan{}, false
}
