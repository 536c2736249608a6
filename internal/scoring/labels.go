package scoring

// Category ratings, one per integer score.
const (
	LabelExcellent     = "Excellent"
	LabelStrong        = "Strong"
	LabelNeedsWork     = "Needs Work"
	LabelPoor          = "Poor"
	LabelNotApplicable = "N/A"
)

// Dashboard bands over the overall percentage.
const (
	BandGood          = "good"
	BandFair          = "fair"
	BandWeak          = "weak"
	BandPoor          = "poor"
	BandNotApplicable = "n/a"
)

var categoryLabels = map[int]string{
	4: LabelExcellent,
	3: LabelStrong,
	2: LabelNeedsWork,
	1: LabelPoor,
}

var bands = []struct {
	minPercentage float64
	band          string
}{
	{85, BandGood},
	{70, BandFair},
	{50, BandWeak},
}

// CategoryLabel rates a single category score.
func CategoryLabel(score int) string {
	label, ok := categoryLabels[score]
	if !ok {
		return LabelNotApplicable
	}

	return label
}

// Band buckets an overall percentage for dashboards. It is unrelated to CategoryLabel.
func Band(percentage float64) string {
	for _, b := range bands {
		if percentage >= b.minPercentage {
			return b.band
		}
	}

	return BandPoor
}
