package sign

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
)

func newTestCodec(secret string) *Codec {
	return NewCodec(Config{Secret: []byte(secret)})
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec("super-secret")

	token, expiresAt := c.Issue("users/u1/key.bin", "u1", ActionDownload, time.Hour)

	claims, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.SubjectID != "users/u1/key.bin" {
		t.Fatalf("subject mismatch: got %q", claims.SubjectID)
	}
	if claims.ActorID != "u1" {
		t.Fatalf("actor mismatch: got %q", claims.ActorID)
	}
	if claims.Action != ActionDownload {
		t.Fatalf("action mismatch: got %q", claims.Action)
	}
	if !claims.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expiry mismatch: got %v want %v", claims.ExpiresAt, expiresAt)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	c := newTestCodec("secret")
	issued := time.Now()
	c.now = func() time.Time { return issued }

	token, expiresAt := c.Issue("f1", "u1", ActionPreview, time.Minute)

	// Still valid one second before expiry.
	c.now = func() time.Time { return expiresAt.Add(-time.Second) }
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("expected valid token before expiry, got %v", err)
	}

	// Invalid exactly at expiry.
	c.now = func() time.Time { return expiresAt }
	if _, err := c.Verify(token); !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at expiry, got %v", err)
	}
}

func TestVerify_TamperedPayloadAndSignature(t *testing.T) {
	t.Parallel()

	c := newTestCodec("secret")
	token, _ := c.Issue("f1", "u1", ActionStream, time.Hour)

	parts := strings.Split(token, ".")

	// Flip one byte of the signature.
	sig := []byte(parts[4])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := strings.Join([]string{parts[0], parts[1], parts[2], parts[3], string(sig)}, ".")
	if _, err := c.Verify(tampered); !errors.Is(err, common.ErrInvalidSignature) && !errors.Is(err, common.ErrMalformedToken) {
		t.Fatalf("expected signature/malformed error, got %v", err)
	}

	// Swap the actor for another user, keeping the signature.
	other := strings.Join([]string{parts[0], "dTI", parts[2], parts[3], parts[4]}, ".")
	if _, err := c.Verify(other); !errors.Is(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for modified actor, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	token, _ := newTestCodec("right-secret").Issue("f1", "u1", ActionDownload, time.Hour)

	if _, err := newTestCodec("wrong-secret").Verify(token); !errors.Is(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	c := newTestCodec("k")

	cases := []string{
		"",
		"not-a-token",
		"a.b.c",
		"a.b.unknown-action.123.sig",
		"%%%.b.download.123.sig",
	}
	for _, tc := range cases {
		if _, err := c.Verify(tc); !errors.Is(err, common.ErrMalformedToken) {
			t.Fatalf("Verify(%q): expected ErrMalformedToken, got %v", tc, err)
		}
	}
}

// Two different field splits of the same concatenated bytes must never
// authenticate each other.
func TestCanonicalPayload_DelimiterSafety(t *testing.T) {
	t.Parallel()

	c := newTestCodec("k")
	now := time.Now()

	sigA := c.Signature("ab", "c", ActionDownload, now)
	sigB := c.Signature("a", "bc", ActionDownload, now)
	if sigA == sigB {
		t.Fatalf("field boundaries are ambiguous: identical signatures for different splits")
	}
}

func TestVerifyDetached(t *testing.T) {
	t.Parallel()

	c := newTestCodec("k")
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	sig := c.Signature("f1", "u1", ActionStream, expiresAt)

	if err := c.VerifyDetached("f1", "u1", ActionStream, expiresAt, sig); err != nil {
		t.Fatalf("VerifyDetached error: %v", err)
	}
	if err := c.VerifyDetached("f1", "u2", ActionStream, expiresAt, sig); !errors.Is(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong user, got %v", err)
	}
	if err := c.VerifyDetached("f1", "u1", ActionDownload, expiresAt, sig); !errors.Is(err, common.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for wrong action, got %v", err)
	}
	if err := c.VerifyDetached("f1", "u1", ActionStream, expiresAt, "!!!"); !errors.Is(err, common.ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken for undecodable signature, got %v", err)
	}

	stale := time.Now().Add(-time.Minute).Truncate(time.Second)
	staleSig := c.Signature("f1", "u1", ActionStream, stale)
	if err := c.VerifyDetached("f1", "u1", ActionStream, stale, staleSig); !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
