// Package webhook implements the gateway's outbound push-notification
// delivery engine (spec §4.K): signs, POSTs, and retries task-update
// deliveries to registered or per-request webhook endpoints. The teacher
// has no equivalent component -- this package's shape is grounded directly
// on the spec's explicit header/claims/retry recipe, built with the same
// ambient conventions (pkg/httputil client construction, internal/gwlog
// domain logging, events.EventBus telemetry) the rest of the gateway uses.
package webhook

// Config is a delivery target: either a registered PushConfig looked up by
// task id, or a per-request webhook carried in an envelope. Normally one of
// Token, HMACSecret, or JWTSecret is set; if more than one is set, every
// scheme whose secret is set is applied (spec §4.K.3's "later overrides
// earlier within the same header name" only governs collisions within one
// scheme, so a config triggering more than one adds distinct headers).
type Config struct {
	ID     string
	TaskID string
	URL    string

	Token string

	HMACSecret string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTKeyID    string
	JWTTTL      int // seconds, defaults to DefaultJWTTTLSeconds
	JWTSkew     int // seconds, defaults to DefaultJWTSkewSeconds
}

// Defaults for a Config's JWT claim window and the engine's retry policy
// (spec §6 configuration keys push.maxAttempts, push.retryBaseMs).
const (
	DefaultJWTTTLSeconds  = 300
	DefaultJWTSkewSeconds = 120
	DefaultMaxAttempts    = 3
	DefaultRetryBaseMs    = 200
)

func (c Config) jwtTTL() int {
	if c.JWTTTL <= 0 {
		return DefaultJWTTTLSeconds
	}
	return c.JWTTTL
}

func (c Config) jwtSkew() int {
	if c.JWTSkew <= 0 {
		return DefaultJWTSkewSeconds
	}
	return c.JWTSkew
}
