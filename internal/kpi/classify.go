package kpi

import "sort"

// ClassifyABC assigns Pareto classes by cumulative share of sales value.
// Products are ranked by descending sales value with the product key as
// tie-break, and the running share up to and including each product
// decides its class: within 80% A, within 95% B, above that C. When the
// window has no sales value at all every share is zero, so the whole set
// lands in A; the partition still holds.
func ClassifyABC(products []ProductMetrics) map[string]string {
	ranked := make([]ProductMetrics, len(products))
	copy(ranked, products)
	sort.Slice(ranked, func(i, j int) bool {
		vi, vj := ranked[i].SalesValue(), ranked[j].SalesValue()
		if vi != vj {
			return vi > vj
		}
		return ranked[i].ProductKey < ranked[j].ProductKey
	})

	var total float64
	for _, p := range ranked {
		total += p.SalesValue()
	}

	classes := make(map[string]string, len(ranked))
	var cumulative float64
	for _, p := range ranked {
		cumulative += p.SalesValue()
		share := 0.0
		if total > 0 {
			share = cumulative / total
		}
		switch {
		case share <= 0.80:
			classes[p.ProductKey] = "A"
		case share <= 0.95:
			classes[p.ProductKey] = "B"
		default:
			classes[p.ProductKey] = "C"
		}
	}
	return classes
}

// ClassifyXYZ assigns variability classes from the coefficient of
// variation. Iteration runs in product-key order; the class is a pure
// per-product threshold function, the fixed order only makes traversal
// reproducible.
func ClassifyXYZ(products []ProductMetrics, lowCV, highCV float64) map[string]string {
	ordered := make([]ProductMetrics, len(products))
	copy(ordered, products)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ProductKey < ordered[j].ProductKey
	})

	classes := make(map[string]string, len(ordered))
	for _, p := range ordered {
		switch {
		case p.CoefficientOfVariation <= lowCV:
			classes[p.ProductKey] = "X"
		case p.CoefficientOfVariation <= highCV:
			classes[p.ProductKey] = "Y"
		default:
			classes[p.ProductKey] = "Z"
		}
	}
	return classes
}

// ApplyClassification attaches ABC/XYZ classes and the mutually exclusive
// excess/shortage flags to every product. Shortage wins: a product below
// its reorder point or under the shortage coverage threshold is never
// also excess. Keys absent from the classification maps default to C/Z.
func ApplyClassification(products []ProductMetrics, params Params) []ProductMetrics {
	abc := ClassifyABC(products)
	xyz := ClassifyXYZ(products, params.XYZLowCV, params.XYZHighCV)

	out := make([]ProductMetrics, len(products))
	for i, p := range products {
		class, ok := abc[p.ProductKey]
		if !ok {
			class = "C"
		}
		p.ABCClass = class

		vclass, ok := xyz[p.ProductKey]
		if !ok {
			vclass = "Z"
		}
		p.XYZClass = vclass

		p.IsShortage = p.FinalStock < p.ReorderPoint || p.CoverageDays < params.ShortageThresholdDays
		p.IsExcess = !p.IsShortage && p.CoverageDays > params.ExcessThresholdDays
		out[i] = p
	}
	return out
}
