package normalize

import (
	"strings"

	"github.com/abelzeko/river-alert/internal/entities"
	"golang.org/x/text/unicode/norm"
)

type statusRule struct {
	tier     entities.StatusTier
	keywords []string
}

// statusTable is checked top to bottom; the first matching row wins.
// Low-water labels come first because "น้ำน้อยวิกฤต" (critically low)
// would otherwise match the overflow marker "วิกฤต".
var statusTable = []statusRule{
	{entities.StatusNormal, []string{"น้ำน้อย", "low water"}},
	{entities.StatusOverflow, []string{"ล้น", "วิกฤต", "สูง", "overflow", "critical", "danger", "flood"}},
	{entities.StatusWarning, []string{"เฝ้าระวัง", "เตือน", "warning", "watch", "alert"}},
}

// ClassifyStatus maps a free-text status label to a tier
func ClassifyStatus(text string) entities.StatusTier {
	s := strings.ToLower(strings.TrimSpace(norm.NFC.String(text)))
	if s == "" {
		return entities.StatusUnknown
	}
	for _, rule := range statusTable {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.tier
			}
		}
	}
	return entities.StatusNormal
}
