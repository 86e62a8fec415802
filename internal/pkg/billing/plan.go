package billing

import (
	"strings"

	"github.com/CreditFox/CreditFox/app/models"
)

func normalizePlan(plan string) string {
	p := strings.ToLower(strings.TrimSpace(plan))
	if p == "" {
		return models.PlanFree
	}
	return p
}

func planLabel(plan string) string {
	return strings.ToUpper(normalizePlan(plan))
}
