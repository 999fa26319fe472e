package twilio

import (
	"net/url"

	twilioclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the HMAC Twilio computes over the webhook URL and form.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks webhook signatures with the account auth token.
type Validator struct {
	inner twilioclient.RequestValidator
	token string
}

func NewValidator(authToken string) *Validator {
	return &Validator{inner: twilioclient.NewRequestValidator(authToken), token: authToken}
}

// Validate reports whether signature matches the full request URL and the posted form.
func (v *Validator) Validate(fullURL string, form url.Values, signature string) bool {
	if v == nil || v.token == "" || signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k, vals := range form {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	return v.inner.Validate(fullURL, params, signature)
}
