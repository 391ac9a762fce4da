package service

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/layer-3/walletauth/internal/solana"
)

// Failure reasons surfaced by Verify. Verification failure is an
// expected outcome, carried as a result value rather than an error.
const (
	ReasonInvalidPublicKey = "invalid public key format"
	ReasonBadTimestamp     = "timestamp expired or invalid"
	ReasonInvalidSignature = "invalid signature"
)

// DefaultMaxMessageAge bounds how old a signed challenge may be.
const DefaultMaxMessageAge = 5 * time.Minute

var timestampPattern = regexp.MustCompile(`Timestamp: (\d+)`)

// VerifyOptions tunes a single verification. The zero value checks the
// timestamp against DefaultMaxMessageAge.
type VerifyOptions struct {
	// SkipTimestamp disables the message-age check entirely.
	SkipTimestamp bool

	// MaxAge overrides DefaultMaxMessageAge when positive.
	MaxAge time.Duration
}

// VerifyResult is the outcome of a verification attempt.
type VerifyResult struct {
	Valid     bool
	PublicKey string // echoed back on success
	Timestamp int64  // parsed message timestamp in ms, when present
	Reason    string // failure reason, empty when Valid
}

// Verifier validates (publicKey, signature, message) proofs. Nonces are
// deliberately not tracked for prior use: a captured message can be
// replayed until it ages past the window. Future-dated timestamps are
// not rejected either; only staleness is checked.
type Verifier struct {
	log *slog.Logger
}

// NewVerifier creates a Verifier. A nil logger falls back to the
// default slog logger.
func NewVerifier(log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{log: log}
}

// Verify checks the proof in order: public key decode, message
// freshness, signature. It short-circuits on the first failure and
// never returns an error; malformed input maps to a failure result.
func (v *Verifier) Verify(publicKey, signature, message string, opts VerifyOptions) VerifyResult {
	key, err := solana.DecodePublicKey(publicKey)
	if err != nil {
		v.log.Debug("proof rejected", "reason", ReasonInvalidPublicKey, "public_key", publicKey)
		return VerifyResult{Reason: ReasonInvalidPublicKey}
	}

	var timestamp int64
	if !opts.SkipTimestamp {
		maxAge := opts.MaxAge
		if maxAge <= 0 {
			maxAge = DefaultMaxMessageAge
		}

		ts, ok := extractTimestamp(message)
		if !ok {
			return VerifyResult{Reason: ReasonBadTimestamp}
		}
		if time.Now().UnixMilli()-ts >= maxAge.Milliseconds() {
			v.log.Debug("proof rejected", "reason", ReasonBadTimestamp, "timestamp", ts)
			return VerifyResult{Timestamp: ts, Reason: ReasonBadTimestamp}
		}
		timestamp = ts
	}

	sig, err := solana.DecodeSignature(signature)
	if err != nil {
		return VerifyResult{Timestamp: timestamp, Reason: ReasonInvalidSignature}
	}
	if !solana.Verify(key, []byte(message), sig) {
		v.log.Debug("proof rejected", "reason", ReasonInvalidSignature, "public_key", publicKey)
		return VerifyResult{Timestamp: timestamp, Reason: ReasonInvalidSignature}
	}

	return VerifyResult{Valid: true, PublicKey: publicKey, Timestamp: timestamp}
}

// extractTimestamp pulls the millisecond timestamp out of a challenge
// message. Returns false when the line is absent or not an integer.
func extractTimestamp(message string) (int64, bool) {
	m := timestampPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
