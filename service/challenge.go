package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
)

// challengeTemplate is the fixed challenge text. The Nonce and
// Timestamp lines are load-bearing: the verifier's timestamp extractor
// parses them back out of the signed message.
const challengeTemplate = "%s wants you to sign in with your wallet.\n\nNonce: %s\nTimestamp: %d"

// GenerateChallenge builds a sign-in message for appName embedding a
// nonce and the current time in milliseconds. An empty nonce is
// replaced with a freshly generated one. Nonce uniqueness is not
// tracked; freshness is bounded by the verifier's timestamp window.
func GenerateChallenge(appName, nonce string) (*core.Challenge, error) {
	if nonce == "" {
		var err error
		nonce, err = generateNonce()
		if err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
	}

	now := time.Now()
	return &core.Challenge{
		AppName:  appName,
		Nonce:    nonce,
		IssuedAt: now,
		Message:  fmt.Sprintf(challengeTemplate, appName, nonce, now.UnixMilli()),
	}, nil
}

// generateNonce returns 32 hex characters from a CSPRNG.
func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
