package http

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/internal/solana"
	"github.com/layer-3/walletauth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// walletHeader builds a complete Wallet credential for a fresh keypair.
func walletHeader(t *testing.T) (header, publicKey string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	message := fmt.Sprintf("Acme wants you to sign in with your wallet.\n\nNonce: mwtestnonce1\nTimestamp: %d", time.Now().UnixMilli())
	sig := ed25519.Sign(priv, []byte(message))

	publicKey = solana.EncodePublicKey(pub)
	header = "Wallet " + publicKey + ":" + solana.EncodeSignature(sig) + ":" + url.QueryEscape(message)
	return header, publicKey
}

func authTestRouter(middleware gin.HandlerFunc) (*gin.Engine, *string) {
	router := gin.New()
	var seenKey string
	router.GET("/protected", middleware, func(c *gin.Context) {
		seenKey = PublicKeyFromContext(c)
		c.Status(http.StatusOK)
	})
	return router, &seenKey
}

func TestWalletAuthValidHeader(t *testing.T) {
	router, seenKey := authTestRouter(WalletAuth(service.NewVerifier(nil), AuthOptions{}))

	header, publicKey := walletHeader(t)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", header)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publicKey, *seenKey)
}

func TestWalletAuthMissingHeader(t *testing.T) {
	router, _ := authTestRouter(WalletAuth(service.NewVerifier(nil), AuthOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization header is required")
}

func TestWalletAuthWrongScheme(t *testing.T) {
	router, _ := authTestRouter(WalletAuth(service.NewVerifier(nil), AuthOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-jwt")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid authorization scheme")
}

func TestWalletAuthTooFewFields(t *testing.T) {
	router, _ := authTestRouter(WalletAuth(service.NewVerifier(nil), AuthOptions{}))

	// Two fields only; rejected during parsing, before the verifier runs.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Wallet abc:def")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed wallet credential")
}

func TestWalletAuthBadSignature(t *testing.T) {
	router, _ := authTestRouter(WalletAuth(service.NewVerifier(nil), AuthOptions{}))

	header, _ := walletHeader(t)
	_, otherKey := walletHeader(t)

	// Swap in a different key so the signature no longer matches.
	parts := strings.SplitN(strings.TrimPrefix(header, "Wallet "), ":", 3)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Wallet "+otherKey+":"+parts[1]+":"+parts[2])
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), service.ReasonInvalidSignature)
}

func TestWalletAuthCustomUnauthorizedHandler(t *testing.T) {
	var gotReason string
	opts := AuthOptions{
		OnUnauthorized: func(c *gin.Context, reason string) {
			gotReason = reason
			c.AbortWithStatus(http.StatusTeapot)
		},
	}
	router, _ := authTestRouter(WalletAuth(service.NewVerifier(nil), opts))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "authorization header is required", gotReason)
}

func TestOptionalWalletAuthContinuesWithoutHeader(t *testing.T) {
	router, seenKey := authTestRouter(OptionalWalletAuth(service.NewVerifier(nil), AuthOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, *seenKey)
}

func TestOptionalWalletAuthAttachesValidKey(t *testing.T) {
	router, seenKey := authTestRouter(OptionalWalletAuth(service.NewVerifier(nil), AuthOptions{}))

	header, publicKey := walletHeader(t)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", header)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publicKey, *seenKey)
}

func TestParseWalletHeaderDecodesMessage(t *testing.T) {
	message := "Acme wants you: to sign in\n\nNonce: abc\nTimestamp: 123"

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Wallet pk:sig:"+url.QueryEscape(message))

	proof, reason := parseWalletHeader(c, "")
	require.Empty(t, reason)
	assert.Equal(t, "pk", proof.publicKey)
	assert.Equal(t, "sig", proof.signature)
	assert.Equal(t, message, proof.message)
}
