package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/webhook"
)

func TestEngine_Deliver_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	engine := webhook.NewEngine(bus)

	err := engine.Deliver(t.Context(), map[string]any{"task": map[string]any{"id": "task-1"}}, webhook.Config{URL: srv.URL})
	require.NoError(t, err)

	sr, ok := gotBody["streamResponse"].(map[string]any)
	require.True(t, ok)
	task, ok := sr["task"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "task-1", task["id"])
}

func TestEngine_Deliver_BearerToken(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("x-a2a-token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := webhook.NewEngine(nil)
	err := engine.Deliver(t.Context(), map[string]any{}, webhook.Config{URL: srv.URL, Token: "secret-token"})
	require.NoError(t, err)
	assert.Equal(t, "secret-token", gotToken)
}

func TestEngine_Deliver_HMACSignature(t *testing.T) {
	var gotSig, gotTS string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("x-a2a-signature")
		gotTS = r.Header.Get("x-a2a-timestamp")
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	frozen := clock.Frozen{At: time.Unix(1700000000, 0)}
	engine := webhook.NewEngine(nil)
	engine.Clk = frozen

	err := engine.Deliver(t.Context(), map[string]any{"x": 1}, webhook.Config{URL: srv.URL, HMACSecret: "shh"})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write([]byte(gotTS + "." + string(gotBody)))
	expected := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, gotSig)
	assert.Equal(t, "1700000000", gotTS)
}

func TestEngine_Deliver_JWTClaims(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	frozen := clock.Frozen{At: time.Unix(1700000000, 0)}
	engine := webhook.NewEngine(nil)
	engine.Clk = frozen

	cfg := webhook.Config{URL: srv.URL, JWTSecret: "jwt-secret", JWTIssuer: "gw", JWTAudience: "aud", JWTTTL: 300, JWTSkew: 60}
	err := engine.Deliver(t.Context(), map[string]any{}, cfg)
	require.NoError(t, err)

	require.True(t, len(gotAuth) > len("Bearer "))
	tokenStr := gotAuth[len("Bearer "):]

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(tok *jwt.Token) (any, error) {
		return []byte("jwt-secret"), nil
	})
	require.NoError(t, err)

	iat, _ := claims.GetIssuedAt()
	exp, _ := claims.GetExpirationTime()
	nbf, _ := claims.GetNotBefore()
	assert.Equal(t, int64(300), exp.Unix()-iat.Unix())
	assert.Equal(t, int64(60), iat.Unix()-nbf.Unix())
	assert.Equal(t, "gw", claims["iss"])
	assert.Equal(t, "aud", claims["aud"])
}

func TestEngine_Deliver_NoURLRejected(t *testing.T) {
	engine := webhook.NewEngine(nil)
	err := engine.Deliver(t.Context(), map[string]any{}, webhook.Config{})
	require.Error(t, err)
	kind, ok := gwerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindNoURL, kind)
}

func TestEngine_Deliver_ClientErrorNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	engine := webhook.NewEngine(nil)
	engine.RetryBaseMs = 1
	err := engine.Deliver(t.Context(), map[string]any{}, webhook.Config{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx must not be retried")
}

func TestEngine_Deliver_ServerErrorRetriesUpToMaxAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := webhook.NewEngine(nil)
	engine.RetryBaseMs = 1
	engine.MaxAttempts = 3

	err := engine.Deliver(t.Context(), map[string]any{}, webhook.Config{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "exhausts exactly maxAttempts tries")
}

func TestEngine_Deliver_EmitsPushTelemetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	var startSeen, successSeen int32
	unsub := bus.SubscribeAll(func(evt *events.Event) {
		switch evt.Type {
		case events.EventPushStart:
			atomic.AddInt32(&startSeen, 1)
		case events.EventPushSuccess:
			atomic.AddInt32(&successSeen, 1)
		}
	})
	defer unsub()

	engine := webhook.NewEngine(bus)
	err := engine.Deliver(t.Context(), map[string]any{"task": map[string]any{"id": "task-9"}}, webhook.Config{URL: srv.URL})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&startSeen) == 1 && atomic.LoadInt32(&successSeen) == 1 },
		time.Second, time.Millisecond)
}

func TestEngine_DeliverAll_FansOutIndependently(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := webhook.NewEngine(nil)
	engine.DeliverAll(t.Context(), map[string]any{}, []webhook.Config{{URL: srv.URL}, {URL: srv.URL}, {URL: srv.URL}})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 3 }, time.Second, time.Millisecond)
}
