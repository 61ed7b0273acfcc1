package auth

import "testing"

func TestNegotiateCapsVersionAtServerMax(t *testing.T) {
	n := Negotiate(9999)
	if n.Version != MaxServerVersion {
		t.Fatalf("got version %d want %d", n.Version, MaxServerVersion)
	}
}

func TestNegotiateRespectsLowerClientVersion(t *testing.T) {
	n := Negotiate(20)
	if n.Version != 20 {
		t.Fatalf("got version %d want 20", n.Version)
	}
}

func TestNegotiateSHMRequiresVersionAndFlag(t *testing.T) {
	n := Negotiate(12 | FlagSHM)
	if n.SHM {
		t.Fatalf("SHM must require version >= 13")
	}
	n = Negotiate(13)
	if n.SHM {
		t.Fatalf("SHM must require the client flag")
	}
	n = Negotiate(13 | FlagSHM)
	if !n.SHM {
		t.Fatalf("expected SHM enabled at version 13 with flag")
	}
}

func TestNegotiateMemfdRequiresSHMVersionAndFlag(t *testing.T) {
	n := Negotiate(30 | FlagSHM | FlagMemfd)
	if n.Memfd {
		t.Fatalf("memfd must require version >= 31")
	}
	n = Negotiate(31 | FlagMemfd) // no SHM flag
	if n.Memfd {
		t.Fatalf("memfd must require the SHM flag too")
	}
	n = Negotiate(31 | FlagSHM | FlagMemfd)
	if !n.Memfd {
		t.Fatalf("expected memfd enabled at version 31 with both flags")
	}
}

func TestVerifyCookieNoCookieConfiguredAlwaysPasses(t *testing.T) {
	if err := VerifyCookie(nil, []byte{1, 2, 3}); err != nil {
		t.Fatalf("expected pass with no cookie configured: %v", err)
	}
}

func TestVerifyCookieMatch(t *testing.T) {
	expected := make([]byte, CookieLength)
	for i := range expected {
		expected[i] = byte(i)
	}
	supplied := append([]byte(nil), expected...)
	if err := VerifyCookie(expected, supplied); err != nil {
		t.Fatalf("expected match: %v", err)
	}
}

func TestVerifyCookieMismatch(t *testing.T) {
	expected := make([]byte, CookieLength)
	supplied := make([]byte, CookieLength)
	supplied[0] = 1
	if err := VerifyCookie(expected, supplied); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestVerifyCookieWrongLength(t *testing.T) {
	expected := make([]byte, CookieLength)
	if err := VerifyCookie(expected, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length-mismatch error")
	}
}

func TestCookieConfigured(t *testing.T) {
	if CookieConfigured(nil) {
		t.Fatalf("nil cookie should be unconfigured")
	}
	if CookieConfigured(make([]byte, 10)) {
		t.Fatalf("short cookie should be unconfigured")
	}
	if !CookieConfigured(make([]byte, CookieLength)) {
		t.Fatalf("full-length cookie should be configured")
	}
}
