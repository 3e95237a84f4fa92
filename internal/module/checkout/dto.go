package checkout

// Request is the body of POST /api/checkout.
type Request struct {
	PlanType string `json:"planType"`
	UserID   string `json:"userId"`
	Email    string `json:"email"`
}

// complete reports whether every required field is present. Values are not
// checked beyond presence.
func (r *Request) complete() bool {
	return r.PlanType != "" && r.UserID != "" && r.Email != ""
}

// Response is returned once a checkout session exists.
type Response struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}
