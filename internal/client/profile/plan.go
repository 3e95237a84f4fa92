package profile

import (
	"fmt"
	"strconv"

	"github.com/planpage/server/internal/client/api"
)

// DerivePlan returns the first catalog entry whose interval matches the
// subscription tier. It reports false when there is no subscription or no
// entry matches.
func DerivePlan(catalog []api.Plan, status *api.SubscriptionStatus) (api.Plan, bool) {
	if status == nil || status.Subscription == nil {
		return api.Plan{}, false
	}
	for _, p := range catalog {
		if p.Interval == status.Subscription.SubscriptionTier {
			return p, true
		}
	}
	return api.Plan{}, false
}

// FormatAmount renders an amount followed by its currency, e.g. "10USD".
func FormatAmount(p api.Plan) string {
	return formatNumber(p.Amount) + p.Currency
}

// OptionLabel renders a plan selector option.
func OptionLabel(p api.Plan) string {
	return fmt.Sprintf("%s - $%s / %s", p.Name, formatNumber(p.Amount), p.Interval)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
