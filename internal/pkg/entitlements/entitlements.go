package entitlements

import (
	"strings"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
)

// Quality is a playback resolution tier.
type Quality string

const (
	QualitySD  Quality = models.QualitySD
	QualityHD  Quality = models.QualityHD
	QualityFHD Quality = models.QualityFHD
	QualityUHD Quality = models.QualityUHD
)

// FreeQuality caps the manifest for free-threshold episodes.
const FreeQuality = QualitySD

// NormalizeQuality maps arbitrary input to a known tier, defaulting to SD.
func NormalizeQuality(q string) Quality {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case string(QualityUHD), "4k", "uhd":
		return QualityUHD
	case string(QualityFHD), "fhd":
		return QualityFHD
	case string(QualityHD), "hd":
		return QualityHD
	default:
		return QualitySD
	}
}

func qualityRank(q Quality) int {
	switch q {
	case QualityUHD:
		return 3
	case QualityFHD:
		return 2
	case QualityHD:
		return 1
	default:
		return 0
	}
}

// MinQuality returns the lower of two tiers.
func MinQuality(a, b Quality) Quality {
	if qualityRank(a) < qualityRank(b) {
		return a
	}
	return b
}

// PlanMaxQuality resolves a plan's resolution cap, defaulting to SD when the
// plan carries no usable value.
func PlanMaxQuality(plan *models.MembershipPlan) Quality {
	if plan == nil {
		return QualitySD
	}
	return NormalizeQuality(plan.MaxQuality)
}

// PlanRank orders plan codes by tier so upgrades/downgrades can be told apart
// without comparing prices directly.
func PlanRank(code string) int {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case models.PlanCodePremium:
		return 2
	case models.PlanCodeBasic:
		return 1
	default:
		return 0
	}
}
