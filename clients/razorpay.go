package clients

import (
	"github.com/razorpay/razorpay-go/utils"
)

// WebhookVerifier checks that a webhook body was signed by the payment gateway.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// RazorpayVerifier implements WebhookVerifier with the Razorpay SDK's HMAC-SHA256 check.
type RazorpayVerifier struct {
	webhookSecret string
}

func NewRazorpayVerifier(webhookSecret string) *RazorpayVerifier {
	return &RazorpayVerifier{webhookSecret: webhookSecret}
}

// VerifyWebhookSignature compares signature, a hex HMAC-SHA256 of body, against one computed
// with the webhook secret. An empty signature never verifies.
func (r *RazorpayVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" || r.webhookSecret == "" {
		return false
	}
	// The arguments for utils.VerifyWebhookSignature are (payload, signature, secret)
	return utils.VerifyWebhookSignature(string(body), signature, r.webhookSecret)
}
