package profile

import (
	"fmt"
	"strings"

	"github.com/planpage/server/internal/client/api"
	"github.com/planpage/server/internal/client/query"
)

// Kind names which branch of the page is shown.
type Kind string

const (
	KindAuthLoading   Kind = "auth_loading"
	KindSignedOut     Kind = "signed_out"
	KindStatusLoading Kind = "status_loading"
	KindStatusError   Kind = "status_error"
	KindNotSubscribed Kind = "not_subscribed"
	KindPlanNotFound  Kind = "plan_not_found"
	KindPlan          Kind = "plan"
)

const (
	authLoadingText   = "Loading..."
	signedOutText     = "Please sign in to view your profile."
	statusLoadingText = "Loading subscription details..."
	notSubscribedText = "You are not subscribed to any plan."
	planNotFoundText  = "Current Plan not Found."
	activeStatusText  = "ACTIVE"
	selectPlanText    = "Select a New Plan"
	updatingPlanText  = "Updating Plan..."
	changePlanText    = "Change Plan"
	unsubscribeText   = "Unsubscribe"
	unsubscribingText = "Unsubscribing..."
)

// View is a snapshot of what the page displays.
type View struct {
	Kind    Kind
	Loading bool
	Message string
	User    *User

	// Set only when Kind is KindPlan.
	Plan        *PlanCard
	Selector    *PlanSelector
	Unsubscribe *Button
}

// PlanCard describes the current plan.
type PlanCard struct {
	Name   string
	Amount string
	Status string
}

// PlanSelector is the change-plan control.
type PlanSelector struct {
	Placeholder string
	Options     []Option
	Selected    string
	Disabled    bool
	Submit      Button
}

// Option is one selectable plan.
type Option struct {
	Value string
	Label string
}

// Button is a labelled action.
type Button struct {
	Label    string
	Disabled bool
}

// View derives the current display from auth, cache and mutation state.
func (c *Controller) View() View {
	c.mu.Lock()
	auth := c.auth
	fetching := c.fetching > 0
	fetchErr := c.fetchErr
	selected := c.selectedPlan
	changePending := c.changePlan.Pending()
	unsubscribePending := c.unsubscribe.Pending()
	c.mu.Unlock()

	v := View{User: auth.User}
	if !auth.Loaded {
		v.Kind, v.Loading, v.Message = KindAuthLoading, true, authLoadingText
		return v
	}
	if !auth.SignedIn {
		v.Kind, v.Message = KindSignedOut, signedOutText
		return v
	}

	status, state := c.cache.Get(StatusKey)
	hasData := state != query.StateMissing && status != nil
	switch {
	case !hasData && fetchErr == nil:
		v.Kind, v.Loading, v.Message = KindStatusLoading, true, statusLoadingText
		return v
	case !hasData && fetching:
		v.Kind, v.Loading, v.Message = KindStatusLoading, true, statusLoadingText
		return v
	case fetchErr != nil:
		v.Kind, v.Message = KindStatusError, fetchErr.Error()
		return v
	}

	if status.Subscription == nil {
		v.Kind, v.Message = KindNotSubscribed, notSubscribedText
		return v
	}

	plan, ok := DerivePlan(c.catalog, status)
	if !ok {
		v.Kind, v.Message = KindPlanNotFound, planNotFoundText
		return v
	}

	v.Kind = KindPlan
	v.Plan = &PlanCard{Name: plan.Name, Amount: FormatAmount(plan), Status: activeStatusText}
	v.Selector = &PlanSelector{
		Placeholder: selectPlanText,
		Options:     c.options(),
		Selected:    selected,
		Disabled:    changePending,
		Submit:      Button{Label: changePlanText, Disabled: changePending || selected == ""},
	}
	if changePending {
		v.Selector.Submit.Label = updatingPlanText
	}
	v.Unsubscribe = &Button{Label: unsubscribeText, Disabled: unsubscribePending}
	if unsubscribePending {
		v.Unsubscribe.Label = unsubscribingText
	}
	return v
}

func (c *Controller) options() []Option {
	opts := make([]Option, 0, len(c.catalog))
	for _, p := range c.catalog {
		opts = append(opts, Option{Value: p.Interval, Label: OptionLabel(p)})
	}
	return opts
}

// String renders the view as plain text.
func (v View) String() string {
	var b strings.Builder
	if v.User != nil && v.Kind != KindAuthLoading && v.Kind != KindSignedOut {
		fmt.Fprintf(&b, "%s <%s>\n", v.User.FullName(), v.User.Email)
		if v.User.ImageURL != "" {
			fmt.Fprintf(&b, "avatar: %s\n", v.User.ImageURL)
		}
		b.WriteString("\n")
	}

	if v.Kind != KindPlan {
		b.WriteString(v.Message)
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Current Plan: %s\n", v.Plan.Name)
	fmt.Fprintf(&b, "Amount: %s\n", v.Plan.Amount)
	fmt.Fprintf(&b, "Status: %s\n", v.Plan.Status)

	b.WriteString("\n")
	b.WriteString(v.Selector.Placeholder)
	b.WriteString(":\n")
	for _, o := range v.Selector.Options {
		marker := " "
		if o.Value == v.Selector.Selected {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s %s\n", marker, o.Label)
	}
	fmt.Fprintf(&b, "[%s]  [%s]\n", v.Selector.Submit.Label, v.Unsubscribe.Label)
	return b.String()
}

// CurrentPlan returns the plan derived from the cached status.
func (c *Controller) CurrentPlan() (api.Plan, bool) {
	status, _ := c.cache.Get(StatusKey)
	return DerivePlan(c.catalog, status)
}
