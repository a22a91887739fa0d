// Package sign implements compact, HMAC-signed, time-boxed authorization
// tokens for direct object access (downloads, previews, streams) and for
// per-chunk upload authorization. Tokens are stateless: revocation happens
// only through expiry.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
)

// Action names the single operation a token authorizes.
type Action string

const (
	ActionUpload      Action = "upload"
	ActionDownload    Action = "download"
	ActionPreview     Action = "preview"
	ActionStream      Action = "stream"
	ActionChunkUpload Action = "chunk-upload"
)

var knownActions = map[Action]struct{}{
	ActionUpload:      {},
	ActionDownload:    {},
	ActionPreview:     {},
	ActionStream:      {},
	ActionChunkUpload: {},
}

// Claims are the verified contents of a token.
type Claims struct {
	SubjectID string
	ActorID   string
	Action    Action
	ExpiresAt time.Time
}

// Config carries the process-wide signing secret. It is injected at
// construction so tests can run with distinct secrets per codec instance.
type Config struct {
	Secret []byte
}

// Codec issues and verifies signed tokens.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(cfg Config) *Codec {
	return &Codec{secret: cfg.Secret, now: time.Now}
}

// Issue builds a token authorizing actorID to perform action on subjectID
// until now+ttl. It is a pure function over the secret, the inputs and the
// clock.
func (c *Codec) Issue(subjectID, actorID string, action Action, ttl time.Duration) (string, time.Time) {
	expiresAt := c.now().Add(ttl).Truncate(time.Second)
	payload := canonicalPayload(subjectID, actorID, string(action), expiresAt.Unix())
	mac := c.mac(payload)

	token := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(subjectID)),
		base64.RawURLEncoding.EncodeToString([]byte(actorID)),
		string(action),
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString(mac),
	}, ".")

	return token, expiresAt
}

// Verify parses and authenticates a token. It returns common.ErrMalformedToken
// for structural problems, common.ErrInvalidSignature when the MAC does not
// match, and common.ErrTokenExpired when the token is authentic but stale.
// Signature is always checked before expiry.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 {
		return nil, common.ErrMalformedToken
	}

	subject, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, common.ErrMalformedToken
	}
	actor, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, common.ErrMalformedToken
	}
	action := Action(parts[2])
	if _, ok := knownActions[action]; !ok {
		return nil, common.ErrMalformedToken
	}
	expiresUnix, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, common.ErrMalformedToken
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, common.ErrMalformedToken
	}

	claims := &Claims{
		SubjectID: string(subject),
		ActorID:   string(actor),
		Action:    action,
		ExpiresAt: time.Unix(expiresUnix, 0),
	}

	if err := c.verifyMAC(claims, mac); err != nil {
		return nil, err
	}
	if !c.now().Before(claims.ExpiresAt) {
		return nil, common.ErrTokenExpired
	}
	return claims, nil
}

// Signature returns the detached hex-free MAC for the given claim fields,
// base64url-encoded. Used by the query-parameter signed-URL fallback, where
// the fields travel as individual parameters instead of a packed token.
func (c *Codec) Signature(subjectID, actorID string, action Action, expiresAt time.Time) string {
	payload := canonicalPayload(subjectID, actorID, string(action), expiresAt.Unix())
	return base64.RawURLEncoding.EncodeToString(c.mac(payload))
}

// VerifyDetached authenticates claim fields against a detached signature
// produced by Signature. Error semantics match Verify.
func (c *Codec) VerifyDetached(subjectID, actorID string, action Action, expiresAt time.Time, signature string) error {
	mac, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return common.ErrMalformedToken
	}
	claims := &Claims{SubjectID: subjectID, ActorID: actorID, Action: action, ExpiresAt: expiresAt}
	if err := c.verifyMAC(claims, mac); err != nil {
		return err
	}
	if !c.now().Before(expiresAt) {
		return common.ErrTokenExpired
	}
	return nil
}

func (c *Codec) verifyMAC(claims *Claims, mac []byte) error {
	want := c.mac(canonicalPayload(claims.SubjectID, claims.ActorID, string(claims.Action), claims.ExpiresAt.Unix()))
	// hmac.Equal is constant-time.
	if !hmac.Equal(mac, want) {
		return common.ErrInvalidSignature
	}
	return nil
}

func (c *Codec) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(payload)
	return h.Sum(nil)
}

// canonicalPayload builds the byte string the MAC covers. Every field is
// length-prefixed, so no value can shift the field boundaries regardless of
// its content. This makes the encoding delimiter-safe: "a"+"bc" and "ab"+"c"
// never produce the same payload.
func canonicalPayload(fields ...any) []byte {
	var out []byte
	var lenBuf [8]byte
	for _, f := range fields {
		var b []byte
		switch v := f.(type) {
		case string:
			b = []byte(v)
		case int64:
			b = make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(v))
		}
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out
}
