package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
)

// Signature headers sent with each webhook delivery.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

const (
	secretPrefix     = "whsec_"
	signatureVersion = "v1"

	// DefaultTolerance bounds the age of a signed delivery.
	DefaultTolerance = 5 * time.Minute
)

// Verification failures all wrap pferrors.ErrUnauthorized.
var (
	ErrMissingSignature = fmt.Errorf("%w: missing signature headers", pferrors.ErrUnauthorized)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", pferrors.ErrUnauthorized)
	ErrStaleSignature   = fmt.Errorf("%w: signature timestamp outside tolerance", pferrors.ErrUnauthorized)
)

// Verifier checks webhook signatures: base64 HMAC-SHA256 over
// "<id>.<timestamp>.<body>", listed as "v1,<sig>" entries in the signature
// header.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a Verifier from a signing secret. Secrets of the form
// "whsec_<base64>" are decoded; any other value is used as raw key bytes.
func NewVerifier(secret string) (*Verifier, error) {
	key := []byte(secret)
	if rest, ok := strings.CutPrefix(secret, secretPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode webhook secret: %w", err)
		}
		key = decoded
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret is empty")
	}
	return &Verifier{key: key, tolerance: DefaultTolerance, now: time.Now}, nil
}

// Sign returns the signature header value for a delivery.
func (v *Verifier) Sign(id string, ts time.Time, body []byte) string {
	return signatureVersion + "," + v.sign(id, strconv.FormatInt(ts.Unix(), 10), body)
}

func (v *Verifier) sign(id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature headers against body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id := h.Get(HeaderWebhookID)
	ts := h.Get(HeaderWebhookTimestamp)
	sigs := h.Get(HeaderWebhookSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingSignature
	}

	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, ts)
	}
	age := v.now().Sub(time.Unix(secs, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrStaleSignature
	}

	want := v.sign(id, ts, body)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(want)) {
			return nil
		}
	}
	return ErrInvalidSignature
}
