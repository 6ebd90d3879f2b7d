package service

import (
	"github.com/shopspring/decimal"

	"greenly-backend/internal/model"
)

// DefaultElements 定价计算器的固定目录。
// 数量默认为零，零数量的行项不计入总价但仍然可编辑
func DefaultElements() []model.GreeningElement {
	return []model.GreeningElement{
		{ID: "grass", Name: "Grass", Unit: "sq ft", PricePerUnit: decimal.NewFromFloat(2.5)},
		{ID: "trees", Name: "Trees", Unit: "each", PricePerUnit: decimal.NewFromInt(125)},
		{ID: "bushes", Name: "Bushes", Unit: "each", PricePerUnit: decimal.NewFromInt(35)},
		{ID: "flower-beds", Name: "Flower Beds", Unit: "sq ft", PricePerUnit: decimal.NewFromInt(8)},
		{ID: "mulch", Name: "Mulch", Unit: "cubic yard", PricePerUnit: decimal.NewFromInt(45)},
		{ID: "irrigation", Name: "Irrigation", Unit: "sq ft", PricePerUnit: decimal.NewFromFloat(3.5)},
		{ID: "walkways", Name: "Walkways", Unit: "sq ft", PricePerUnit: decimal.NewFromInt(15)},
		{ID: "retaining-walls", Name: "Retaining Walls", Unit: "sq ft", PricePerUnit: decimal.NewFromInt(85)},
		{ID: "outdoor-lighting", Name: "Outdoor Lighting", Unit: "each", PricePerUnit: decimal.NewFromInt(150)},
		{ID: "compost", Name: "Compost", Unit: "cubic yard", PricePerUnit: decimal.NewFromInt(55)},
	}
}

// PricingService 绿化定价计算器。行项总价永远由数量与单价现算，
// 从不信任外部传入的 total
type PricingService struct{}

func NewPricingService() *PricingService {
	return &PricingService{}
}

// Calculate 把用户编辑过的数量/单价套回目录并重算全部总价。
// 目录之外的 id 作为自定义行项保留
func (p *PricingService) Calculate(inputs []model.ElementInput) model.CalculateResponse {
	catalog := DefaultElements()
	byID := make(map[string]int, len(catalog))
	for i, el := range catalog {
		byID[el.ID] = i
	}

	for _, in := range inputs {
		if i, ok := byID[in.ID]; ok {
			catalog[i].Quantity = in.Quantity
			if in.PricePerUnit.IsPositive() {
				catalog[i].PricePerUnit = in.PricePerUnit
			}
			continue
		}
		catalog = append(catalog, model.GreeningElement{
			ID:           in.ID,
			Name:         in.ID,
			Unit:         "each",
			Quantity:     in.Quantity,
			PricePerUnit: in.PricePerUnit,
			IsCustom:     true,
		})
	}

	return p.recompute(catalog)
}

// Recompute 对一组已有行项重算总价，报告生成前的最后一道闸
func (p *PricingService) Recompute(elements []model.GreeningElement) model.CalculateResponse {
	out := make([]model.GreeningElement, len(elements))
	copy(out, elements)
	return p.recompute(out)
}

func (p *PricingService) recompute(elements []model.GreeningElement) model.CalculateResponse {
	grand := decimal.Zero
	active := 0

	for i := range elements {
		elements[i].Total = elements[i].Quantity.Mul(elements[i].PricePerUnit)
		if elements[i].Quantity.IsPositive() {
			grand = grand.Add(elements[i].Total)
			active++
		}
	}

	return model.CalculateResponse{
		Elements:   elements,
		GrandTotal: grand,
		Active:     active,
	}
}

// ActiveElements 过滤出数量大于零的行项，报告只渲染这些
func ActiveElements(elements []model.GreeningElement) []model.GreeningElement {
	out := make([]model.GreeningElement, 0, len(elements))
	for _, el := range elements {
		if el.Quantity.IsPositive() {
			out = append(out, el)
		}
	}
	return out
}
