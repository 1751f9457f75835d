package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func signedRequest(t *testing.T, body string, now time.Time) (*http.Request, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(body))
	if err := SignRequest(req, key, []byte(body), now); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return req, crypto.PubkeyToAddress(key.PublicKey)
}

func TestHeaderModeTrustsAddress(t *testing.T) {
	v, err := NewVerifier(Config{})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vault", nil)
	if _, err := v.Authenticate(req); !errors.Is(err, ErrMissingCaller) {
		t.Fatalf("expected missing caller, got %v", err)
	}
	req.Header.Set(HeaderAddress, "not-an-address")
	if _, err := v.Authenticate(req); !errors.Is(err, ErrInvalidCaller) {
		t.Fatalf("expected invalid caller, got %v", err)
	}
	want := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	req.Header.Set(HeaderAddress, want.Hex())
	got, err := v.Authenticate(req)
	if err != nil || got != want {
		t.Fatalf("unexpected caller %s err=%v", got.Hex(), err)
	}
}

func TestSignatureModeRecoversSigner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v, err := NewVerifier(Config{Mode: ModeSignature})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.now = func() time.Time { return now }

	body := `{"fingerprint":"0x01","proof_pointer":"ipfs://x"}`
	req, signer := signedRequest(t, body, now)
	got, err := v.Authenticate(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != signer {
		t.Fatalf("expected %s, got %s", signer.Hex(), got.Hex())
	}
	restored, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(restored) != body {
		t.Fatalf("body not restored: %q", restored)
	}
}

func TestSignatureModeRejectsTampering(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v, err := NewVerifier(Config{Mode: ModeSignature, MaxSkew: time.Minute})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.now = func() time.Time { return now }

	req, _ := signedRequest(t, `{"amount":"1"}`, now)
	req.Body = io.NopCloser(strings.NewReader(`{"amount":"1000"}`))
	if _, err := v.Authenticate(req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for altered body, got %v", err)
	}

	req, _ = signedRequest(t, `{}`, now)
	req.Header.Set(HeaderAddress, "0x00000000000000000000000000000000000000b1")
	if _, err := v.Authenticate(req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for foreign address, got %v", err)
	}

	req, _ = signedRequest(t, `{}`, now.Add(-2*time.Minute))
	if _, err := v.Authenticate(req); !errors.Is(err, ErrStaleRequest) {
		t.Fatalf("expected stale request, got %v", err)
	}
}

func TestMiddlewareInjectsCaller(t *testing.T) {
	v, err := NewVerifier(Config{Mode: ModeHeader})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	want := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	var seen common.Address
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/vault", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(CodeUnauthenticated)) {
		t.Fatalf("missing error code in body: %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vault", nil)
	req.Header.Set(HeaderAddress, strings.ToLower(want.Hex()))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != want {
		t.Fatalf("unexpected status %d caller %s", rec.Code, seen.Hex())
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Signature"); err != nil || m != ModeSignature {
		t.Fatalf("unexpected mode %q err=%v", m, err)
	}
	if _, err := ParseMode("jwt"); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if len(SigningPayload("post", "/x", strconv.Itoa(1), "n", nil)) == 0 {
		t.Fatal("payload must not be empty")
	}
}

func TestSignatureModeRejectsReplay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v, err := NewVerifier(Config{Mode: ModeSignature, MaxSkew: time.Minute})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v.now = func() time.Time { return now }

	body := `{"amount":"1"}`
	req, signer := signedRequest(t, body, now)
	replay := req.Clone(req.Context())
	replay.Body = io.NopCloser(strings.NewReader(body))

	if got, err := v.Authenticate(req); err != nil || got != signer {
		t.Fatalf("first use: caller %s err=%v", got.Hex(), err)
	}
	for i := 0; i < 2; i++ {
		replay.Body = io.NopCloser(strings.NewReader(body))
		if _, err := v.Authenticate(replay); !errors.Is(err, ErrReplayedRequest) {
			t.Fatalf("replay %d: expected replayed request, got %v", i, err)
		}
	}

	fresh, _ := signedRequest(t, body, now)
	if _, err := v.Authenticate(fresh); err != nil {
		t.Fatalf("fresh nonce rejected: %v", err)
	}

	missing, _ := signedRequest(t, body, now)
	missing.Header.Del(HeaderNonce)
	if _, err := v.Authenticate(missing); !errors.Is(err, ErrMissingNonce) {
		t.Fatalf("expected missing nonce, got %v", err)
	}
}

func TestNonceCacheExpiresAndBounds(t *testing.T) {
	signer := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	start := time.Unix(1_700_000_000, 0)
	c := newNonceCache(2)

	if !c.use(signer, "a", start.Add(time.Minute), start) {
		t.Fatal("first use of a rejected")
	}
	if c.use(signer, "a", start.Add(time.Minute), start.Add(30*time.Second)) {
		t.Fatal("reuse of a inside the window accepted")
	}
	if !c.use(signer, "b", start.Add(time.Minute), start) {
		t.Fatal("first use of b rejected")
	}
	if c.use(signer, "c", start.Add(time.Minute), start) {
		t.Fatal("full cache accepted a new nonce")
	}
	later := start.Add(2 * time.Minute)
	if !c.use(signer, "c", later.Add(time.Minute), later) {
		t.Fatal("expired entries were not evicted")
	}
	if c.size() != 1 {
		t.Fatalf("expected one tracked nonce after eviction, got %d", c.size())
	}
}
