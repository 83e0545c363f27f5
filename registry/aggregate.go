package registry

import "github.com/shopspring/decimal"

// SumField adds up a decimal field across a slice of packs, given an
// accessor. One generic helper every volume query builds on, instead of
// each supervision task re-deriving the same sum ad hoc.
func SumField(packs []*OrderPack, field func(*OrderPack) decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range packs {
		sum = sum.Add(field(p))
	}
	return sum
}

// Aggregate filters packs by pred and sums field across the survivors.
func Aggregate(packs []*OrderPack, pred func(*OrderPack) bool, field func(*OrderPack) decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range packs {
		if pred(p) {
			sum = sum.Add(field(p))
		}
	}
	return sum
}

// Resolve maps a slice of ids through the registry, skipping ids it no
// longer has a pack for.
func (r *Registry) Resolve(ids []string) []*OrderPack {
	out := make([]*OrderPack, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.packs[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
