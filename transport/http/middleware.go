package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
)

// walletScheme is the credential scheme expected in the auth header.
const walletScheme = "Wallet "

// publicKeyContextKey is where the verified public key lands in the
// gin context.
const publicKeyContextKey = "walletPublicKey"

// AuthOptions configures the wallet auth middleware.
type AuthOptions struct {
	// HeaderName defaults to Authorization.
	HeaderName string

	// SkipTimestamp disables the message-age check.
	SkipTimestamp bool

	// MaxAge overrides the verifier's default message age when positive.
	MaxAge time.Duration

	// OnUnauthorized overrides the default 401 JSON response. The
	// handler must abort the request itself.
	OnUnauthorized func(c *gin.Context, reason string)
}

// PublicKeyFromContext returns the verified public key set by the
// middleware, or "" when the request carried no valid credential.
func PublicKeyFromContext(c *gin.Context) string {
	key, _ := c.Get(publicKeyContextKey)
	s, _ := key.(string)
	return s
}

// WalletAuth validates an `Authorization: Wallet <pk>:<sig>:<msg>`
// header and rejects the request when the credential is missing,
// malformed or fails verification. The message field is percent-encoded
// on the wire and decoded before verification.
func WalletAuth(verifier *service.Verifier, opts AuthOptions) gin.HandlerFunc {
	reject := opts.OnUnauthorized
	if reject == nil {
		reject = func(c *gin.Context, reason string) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
		}
	}

	return func(c *gin.Context) {
		proof, reason := parseWalletHeader(c, opts.HeaderName)
		if reason != "" {
			reject(c, reason)
			return
		}

		result := verifier.Verify(proof.publicKey, proof.signature, proof.message, service.VerifyOptions{
			SkipTimestamp: opts.SkipTimestamp,
			MaxAge:        opts.MaxAge,
		})
		if !result.Valid {
			reject(c, result.Reason)
			return
		}

		c.Set(publicKeyContextKey, result.PublicKey)
		c.Next()
	}
}

// OptionalWalletAuth parses and verifies the same header but never
// rejects: on any failure the request continues with no public key
// attached.
func OptionalWalletAuth(verifier *service.Verifier, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		proof, reason := parseWalletHeader(c, opts.HeaderName)
		if reason != "" {
			c.Next()
			return
		}

		result := verifier.Verify(proof.publicKey, proof.signature, proof.message, service.VerifyOptions{
			SkipTimestamp: opts.SkipTimestamp,
			MaxAge:        opts.MaxAge,
		})
		if result.Valid {
			c.Set(publicKeyContextKey, result.PublicKey)
		}
		c.Next()
	}
}

type walletProof struct {
	publicKey string
	signature string
	message   string
}

// parseWalletHeader splits the credential into its three fields without
// touching the verifier. The reason string is empty on success.
func parseWalletHeader(c *gin.Context, headerName string) (walletProof, string) {
	if headerName == "" {
		headerName = "Authorization"
	}

	header := c.GetHeader(headerName)
	if header == "" {
		return walletProof{}, "authorization header is required"
	}
	if !strings.HasPrefix(header, walletScheme) {
		return walletProof{}, "invalid authorization scheme"
	}

	// Exactly two colons outside the message; the message itself is
	// percent-encoded so its own colons survive the split.
	parts := strings.SplitN(strings.TrimPrefix(header, walletScheme), ":", 3)
	if len(parts) != 3 {
		return walletProof{}, "malformed wallet credential"
	}

	message, err := url.QueryUnescape(parts[2])
	if err != nil {
		return walletProof{}, "malformed wallet credential"
	}

	return walletProof{
		publicKey: parts[0],
		signature: parts[1],
		message:   message,
	}, ""
}
