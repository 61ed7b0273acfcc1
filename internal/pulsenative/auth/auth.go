// Package auth implements the PulseAudio native protocol's AUTH command:
// version negotiation and, when a cookie is configured, a constant-time
// cookie comparison. Unlike an RTMP-style multi-round handshake, there is
// no multi-round byte
// exchange here — AUTH is a single command/reply pair — but the same
// "parse, validate, classify into typed errors" shape applies.
package auth

import (
	"crypto/subtle"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
)

// MaxServerVersion is the highest protocol version this receiver speaks.
const MaxServerVersion uint32 = 35

// Version-gated capability floors.
const (
	MinVersionForSHM    uint32 = 13
	MinVersionForMemfd  uint32 = 31
)

// Client capability bits packed into AUTH's version word alongside the
// low-16-bit version number.
const (
	FlagSHM   uint32 = 0x80000000
	FlagMemfd uint32 = 0x40000000
)

// CookieLength is the fixed size of the PulseAudio auth cookie.
const CookieLength = 256

// Negotiated is the outcome of negotiating a client's AUTH version word
// against this server's capabilities.
type Negotiated struct {
	Version    uint32
	SHM        bool
	Memfd      bool
}

// Negotiate derives the effective protocol version and transport
// capabilities from the raw client version word:
// version = min(client_version & 0xFFFF, MaxServerVersion); SHM requires
// version >= 13 and the client's SHM flag; memfd additionally requires
// version >= 31 and the client's memfd flag.
func Negotiate(clientVersionWord uint32) Negotiated {
	clientVersion := clientVersionWord & 0xFFFF
	version := clientVersion
	if version > MaxServerVersion {
		version = MaxServerVersion
	}

	shm := version >= MinVersionForSHM && clientVersionWord&FlagSHM != 0
	memfd := shm && version >= MinVersionForMemfd && clientVersionWord&FlagMemfd != 0

	return Negotiated{Version: version, SHM: shm, Memfd: memfd}
}

// VerifyCookie reports whether supplied matches expected using a
// constant-time comparison, so a client cannot learn how many leading
// bytes of the cookie it guessed correctly from response timing. If no
// cookie is configured (expected is empty), any supplied cookie passes —
// callers gate that decision via CookieConfigured.
func VerifyCookie(expected, supplied []byte) error {
	if len(expected) == 0 {
		return nil
	}
	if len(supplied) != len(expected) {
		return protoerr.NewAccessError("auth.verify_cookie.length_mismatch", nil)
	}
	if subtle.ConstantTimeCompare(expected, supplied) != 1 {
		return protoerr.NewAccessError("auth.verify_cookie.mismatch", nil)
	}
	return nil
}

// CookieConfigured reports whether the server was started with a cookie
// requirement (a zero-length cookie means auth is disabled).
func CookieConfigured(cookie []byte) bool {
	return len(cookie) == CookieLength
}
