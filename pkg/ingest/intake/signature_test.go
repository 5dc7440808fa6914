package intake

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
)

var signedAt = time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("whsec_" + base64.StdEncoding.EncodeToString([]byte("test-signing-key")))
	require.NoError(t, err)
	v.now = func() time.Time { return signedAt.Add(time.Minute) }
	return v
}

func signedHeaders(v *Verifier, id string, ts time.Time, body []byte) http.Header {
	h := http.Header{}
	h.Set(HeaderWebhookID, id)
	h.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts.Unix(), 10))
	h.Set(HeaderWebhookSignature, v.Sign(id, ts, body))
	return h
}

func TestNewVerifier(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)

	_, err = NewVerifier("whsec_***not base64***")
	assert.Error(t, err)

	raw, err := NewVerifier("plain-secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain-secret"), raw.key)
}

func TestVerifier_Verify(t *testing.T) {
	v := newTestVerifier(t)
	body := []byte(`{"id": 42}`)

	tests := []struct {
		name    string
		headers func() http.Header
		body    []byte
		wantErr error
	}{
		{
			name:    "valid",
			headers: func() http.Header { return signedHeaders(v, "msg_1", signedAt, body) },
			body:    body,
		},
		{
			name: "one of several signatures matches",
			headers: func() http.Header {
				h := signedHeaders(v, "msg_1", signedAt, body)
				h.Set(HeaderWebhookSignature, "v1,Zm9v v2,bar "+h.Get(HeaderWebhookSignature))
				return h
			},
			body: body,
		},
		{
			name:    "tampered body",
			headers: func() http.Header { return signedHeaders(v, "msg_1", signedAt, body) },
			body:    []byte(`{"id": 43}`),
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "stale timestamp",
			headers: func() http.Header { return signedHeaders(v, "msg_1", signedAt.Add(-time.Hour), body) },
			body:    body,
			wantErr: ErrStaleSignature,
		},
		{
			name:    "missing headers",
			headers: func() http.Header { return http.Header{} },
			body:    body,
			wantErr: ErrMissingSignature,
		},
		{
			name: "bad timestamp",
			headers: func() http.Header {
				h := signedHeaders(v, "msg_1", signedAt, body)
				h.Set(HeaderWebhookTimestamp, "yesterday")
				return h
			},
			body:    body,
			wantErr: ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.headers(), tt.body)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, pferrors.IsUnauthorized(err))
		})
	}
}
