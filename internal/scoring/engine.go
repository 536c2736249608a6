package scoring

import "math"

const (
	MinCategoryScore = 1
	MaxCategoryScore = 4
)

// Category is the scoring view of a rubric category.
type Category struct {
	ID     uint    `json:"id"`
	Weight float64 `json:"weight"`
	Active bool    `json:"active"`
}

// Result holds the weighted average on the 1-4 scale and the same value
// normalized to 0-100. Both are zero when no category contributed.
type Result struct {
	Average     float64 `json:"average"`
	Percentage  float64 `json:"percentage"`
	Band        string  `json:"band"`
	Contributed int     `json:"contributed"`
	TotalWeight float64 `json:"total_weight"`
}

// Score computes the weighted result of per-category scores. A category
// contributes only when it is active, has a positive weight and a score in
// the 1-4 range. Weights are renormalized over the contributing subset.
func Score(scores map[uint]int, categories []Category) Result {
	var (
		weightedSum float64
		totalWeight float64
		contributed int
	)

	for _, category := range categories {
		score, ok := scores[category.ID]
		if !ok || !category.Active || category.Weight <= 0 {
			continue
		}

		if score < MinCategoryScore || score > MaxCategoryScore {
			continue
		}

		weightedSum += float64(score) * category.Weight
		totalWeight += category.Weight
		contributed++
	}

	if totalWeight == 0 {
		return Result{Band: BandNotApplicable}
	}

	average := weightedSum / totalWeight
	percentage := round(average/MaxCategoryScore*100, 2)

	return Result{
		Average:     round(average, 2),
		Percentage:  percentage,
		Band:        Band(percentage),
		Contributed: contributed,
		TotalWeight: totalWeight,
	}
}

func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
