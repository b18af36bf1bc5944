// AngelaMos | 2026
// dto.go

package billing

type CreateCheckoutRequest struct {
	Plan string `json:"plan" validate:"required,max=64"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type PlansResponse struct {
	Plans []Plan `json:"plans"`
}

type webhookErrorResponse struct {
	Error string `json:"error"`
}

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}
