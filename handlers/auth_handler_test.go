package handlers

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	auth "vietrank-backend/storage/auth"
)

const testSessionSecret = "test-session-secret"

func newAuthFixture(t *testing.T) (*AuthHandler, auth.NonceStore) {
	t.Helper()
	nonces := auth.NewMemoryNonceStore(5 * time.Minute)
	return NewAuthHandler(nonces, testSessionSecret, time.Hour), nonces
}

func issueNonce(t *testing.T, h *AuthHandler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/nonce", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleNonce(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("nonce issue status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Nonce string `json:"nonce"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Nonce == "" {
		t.Fatalf("empty nonce in response")
	}
	return resp.Data.Nonce
}

func signInPayload(t *testing.T, key *ecdsa.PrivateKey, nonce string) (string, string) {
	t.Helper()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message := fmt.Sprintf(
		"vietrank.vn wants you to sign in with your wallet:\n%s\n\nChain ID: 1\nNonce: %s\nIssued At: %s",
		address, nonce, time.Now().UTC().Format(time.RFC3339))

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27 // wallet-style V
	return message, hexutil.Encode(sig)
}

func postVerify(t *testing.T, h *AuthHandler, message, signature string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"message": message, "signature": signature})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleVerify(rec, req)
	return rec
}

func TestVerifyHappyPath(t *testing.T) {
	h, _ := newAuthFixture(t)
	key, _ := crypto.GenerateKey()

	nonce := issueNonce(t, h)
	message, signature := signInPayload(t, key, nonce)

	rec := postVerify(t, h, message, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Token   string `json:"token"`
			Address string `json:"address"`
			ChainID int64  `json:"chain_id"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Data.Token == "" {
		t.Fatalf("no session token returned")
	}
	wantAddr := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	if resp.Data.Address != wantAddr {
		t.Fatalf("address %s, want lowercase %s", resp.Data.Address, wantAddr)
	}
	if resp.Data.ChainID != 1 {
		t.Fatalf("chain id %d", resp.Data.ChainID)
	}
}

func TestVerifyRejectsReplay(t *testing.T) {
	h, _ := newAuthFixture(t)
	key, _ := crypto.GenerateKey()

	nonce := issueNonce(t, h)
	message, signature := signInPayload(t, key, nonce)

	if rec := postVerify(t, h, message, signature); rec.Code != http.StatusOK {
		t.Fatalf("first verify failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := postVerify(t, h, message, signature); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed signature accepted: %d", rec.Code)
	}
}

func TestVerifyRejectsUnknownNonce(t *testing.T) {
	h, _ := newAuthFixture(t)
	key, _ := crypto.GenerateKey()

	message, signature := signInPayload(t, key, "deadbeefdeadbeefdeadbeefdeadbeef")
	if rec := postVerify(t, h, message, signature); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown nonce accepted: %d", rec.Code)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	h, _ := newAuthFixture(t)
	claimed, _ := crypto.GenerateKey()
	actual, _ := crypto.GenerateKey()

	nonce := issueNonce(t, h)
	// Message names one address, signature comes from another key.
	message, _ := signInPayload(t, claimed, nonce)
	_, signature := signInPayload(t, actual, nonce)

	if rec := postVerify(t, h, message, signature); rec.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched signer accepted: %d", rec.Code)
	}
}

func TestVerifyFailureLeavesNonceUsable(t *testing.T) {
	h, nonces := newAuthFixture(t)
	key, _ := crypto.GenerateKey()

	nonce := issueNonce(t, h)
	message, _ := signInPayload(t, key, nonce)

	// Garbage signature fails verification before the nonce is consumed.
	if rec := postVerify(t, h, message, "0x1234"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status %d", rec.Code)
	}
	if err := nonces.Validate(nonce); err != nil {
		t.Fatalf("nonce consumed by a failed verification: %v", err)
	}

	// The nonce still works for a proper attempt.
	message, signature := signInPayload(t, key, nonce)
	if rec := postVerify(t, h, message, signature); rec.Code != http.StatusOK {
		t.Fatalf("valid retry rejected: %d %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyRejectsMalformedMessage(t *testing.T) {
	h, _ := newAuthFixture(t)
	rec := postVerify(t, h, "hello world", "0x00")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed message status %d", rec.Code)
	}
}

func TestParseSignInMessage(t *testing.T) {
	raw := "vietrank.vn wants you to sign in with your wallet:\n" +
		"0x52908400098527886E0F7030069857D2E4169EE7\n\n" +
		"Chain ID: 56\nNonce: abc123\nIssued At: 2026-08-29T10:00:00Z"

	msg, err := parseSignInMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Address != "0x52908400098527886E0F7030069857D2E4169EE7" ||
		msg.ChainID != 56 || msg.Nonce != "abc123" {
		t.Fatalf("unexpected parse result: %+v", msg)
	}

	for _, bad := range []string{
		"",
		"Nonce: abc\nChain ID: 1",       // no address
		"0x52908400098527886E0F7030069857D2E4169EE7\nChain ID: 1",  // no nonce
		"0x52908400098527886E0F7030069857D2E4169EE7\nNonce: abc",   // no chain id
	} {
		if _, err := parseSignInMessage(bad); err == nil {
			t.Fatalf("malformed message parsed: %q", bad)
		}
	}
}
