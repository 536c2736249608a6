package quality

import (
	"math"
	"strconv"
)

type Classification string

const (
	ClassificationFlagged Classification = "flagged"
	ClassificationWarned  Classification = "warned"
	ClassificationOK      Classification = "ok"
	ClassificationUnknown Classification = "unknown"
)

// MissingRatio is shown wherever a ratio is undefined.
const MissingRatio = "—"

// PlaybackRatio is the share of talk time the reviewer played back, in percent
// with one decimal. It is nil unless both values are positive.
func PlaybackRatio(playbackSeconds, talkTime int) *float64 {
	if playbackSeconds <= 0 || talkTime <= 0 {
		return nil
	}

	ratio := math.Round(float64(playbackSeconds)/float64(talkTime)*100*10) / 10

	return &ratio
}

func Classify(ratio *float64, thresholds Thresholds) Classification {
	switch {
	case ratio == nil:
		return ClassificationUnknown
	case *ratio < thresholds.Flag:
		return ClassificationFlagged
	case *ratio < thresholds.Warn:
		return ClassificationWarned
	default:
		return ClassificationOK
	}
}

func FormatRatio(ratio *float64) string {
	if ratio == nil {
		return MissingRatio
	}

	return strconv.FormatFloat(*ratio, 'f', 1, 64) + "%"
}
