package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TokenMaxAge is how long a minted admin token stays valid.
const TokenMaxAge = 24 * time.Hour

// CookieName is the cookie that carries the admin token.
const CookieName = "admin_token"

// Mint returns "<hex hmac-sha256(secret, ts)>.<ts>" where ts is now in unix seconds.
func Mint(secret string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return hex.EncodeToString(sign(secret, ts)) + "." + ts
}

// Verify reports whether token was minted with secret and is at most
// TokenMaxAge old at now. It never panics and rejects anything malformed.
func Verify(token, secret string, now time.Time) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	dot := strings.LastIndexByte(token, '.')
	if dot < 0 {
		return false
	}
	sigHex, tsStr := token[:dot], token[dot+1:]
	if sigHex == "" || tsStr == "" {
		return false
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return false
	}
	if now.Unix()-ts > int64(TokenMaxAge/time.Second) {
		return false
	}

	actual, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(actual, sign(secret, tsStr))
}

func sign(secret, message string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// Authenticator mints and verifies admin tokens for one secret.
type Authenticator struct {
	secret string
	now    func() time.Time
}

// NewAuthenticator creates an authenticator using the wall clock
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// WithClock returns a copy of a that reads time from now.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	return &Authenticator{secret: a.secret, now: now}
}

// Mint issues a fresh token.
func (a *Authenticator) Mint() string {
	return Mint(a.secret, a.now())
}

// Verify checks token against the authenticator's secret and clock.
func (a *Authenticator) Verify(token string) bool {
	return Verify(token, a.secret, a.now())
}
