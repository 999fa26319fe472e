package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonProviderTransient ReasonCode = "provider_transient"
	ReasonProviderRejected  ReasonCode = "provider_rejected"
	ReasonRateLimit         ReasonCode = "rate_limit"
	ReasonCircuitOpen       ReasonCode = "circuit_open"
	ReasonNotConfigured     ReasonCode = "not_configured"
	ReasonValidation        ReasonCode = "validation"
	ReasonNotFound          ReasonCode = "not_found"

	ReasonNLUExternal ReasonCode = "nlu_external"
	ReasonNLUModel    ReasonCode = "nlu_model"
	ReasonTTSPremium  ReasonCode = "tts_premium"
	ReasonTTSUpload   ReasonCode = "tts_upload"

	ReasonStoreRead  ReasonCode = "store_read"
	ReasonStoreWrite ReasonCode = "store_write"
	ReasonCache      ReasonCode = "cache"

	ReasonSyncStep                 ReasonCode = "sync_step"
	ReasonWebhookInvalidSignature  ReasonCode = "webhook_invalid_signature"
	ReasonWebhookMalformed         ReasonCode = "webhook_malformed"
	ReasonSessionInvalidTransition ReasonCode = "session_invalid_transition"
)
