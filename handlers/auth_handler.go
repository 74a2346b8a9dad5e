package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"vietrank-backend/middleware"
	"vietrank-backend/models"
	auth "vietrank-backend/storage/auth"
)

// signInMessage is the parsed wallet sign-in message. The message is
// line-oriented so wallets render it legibly:
//
//	vietrank.vn wants you to sign in with your wallet:
//	0xAbC...123
//
//	Chain ID: 1
//	Nonce: 4f3c...
//	Issued At: 2026-08-29T10:00:00Z
type signInMessage struct {
	Address  string
	ChainID  int64
	Nonce    string
	IssuedAt string
}

func parseSignInMessage(raw string) (*signInMessage, error) {
	msg := &signInMessage{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case common.IsHexAddress(line):
			msg.Address = line
		case strings.HasPrefix(line, "Chain ID:"):
			v, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "Chain ID:")), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chain id")
			}
			msg.ChainID = v
		case strings.HasPrefix(line, "Nonce:"):
			msg.Nonce = strings.TrimSpace(strings.TrimPrefix(line, "Nonce:"))
		case strings.HasPrefix(line, "Issued At:"):
			msg.IssuedAt = strings.TrimSpace(strings.TrimPrefix(line, "Issued At:"))
		}
	}
	if msg.Address == "" {
		return nil, fmt.Errorf("message does not contain a wallet address")
	}
	if msg.Nonce == "" {
		return nil, fmt.Errorf("message does not contain a nonce")
	}
	if msg.ChainID == 0 {
		return nil, fmt.Errorf("message does not contain a chain id")
	}
	return msg, nil
}

// recoverSigner recovers the wallet address that personal-signed the message.
// The returned address is lowercase.
func recoverSigner(message, signatureHex string) (string, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding")
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes")
	}
	// Wallets emit V as 27/28; secp256k1 recovery wants 0/1.
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	pub, err := crypto.SigToPub(hash.Bytes(), cp)
	if err != nil {
		return "", fmt.Errorf("signature recovery failed")
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// AuthHandler implements wallet sign-in: nonce issuance plus signed-message
// verification that mints a session token.
type AuthHandler struct {
	*BaseHandler
	nonces        auth.NonceStore
	sessionSecret string
	sessionTTL    time.Duration
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(nonces auth.NonceStore, sessionSecret string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		BaseHandler:   NewBaseHandler(),
		nonces:        nonces,
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
	}
}

type nonceRequest struct {
	Address string `json:"address"`
}

// HandleNonce serves POST /api/auth/nonce.
func (h *AuthHandler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req nonceRequest
	// The address hint is optional; an empty body is fine.
	_ = h.parseJSON(r, &req)

	n, err := h.nonces.Issue(strings.ToLower(req.Address))
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to issue nonce")
		return
	}
	h.sendSuccess(w, map[string]interface{}{
		"nonce":      n.Nonce,
		"expires_at": n.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// HandleVerify serves POST /api/auth/verify. The nonce is validated before
// the signature is checked and consumed only after both pass, so a failed
// verification leaves the nonce usable and a successful one retires it.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req verifyRequest
	if err := h.parseJSON(r, &req); err != nil || req.Message == "" || req.Signature == "" {
		h.sendError(w, http.StatusBadRequest, "message and signature are required")
		return
	}

	msg, err := parseSignInMessage(req.Message)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.nonces.Validate(msg.Nonce); err != nil {
		if errors.Is(err, auth.ErrNonceInvalid) {
			h.sendError(w, http.StatusUnauthorized, "Invalid or expired nonce")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "Failed to validate nonce")
		return
	}

	signer, err := recoverSigner(req.Message, req.Signature)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "Signature verification failed")
		return
	}
	if signer != strings.ToLower(msg.Address) {
		h.sendError(w, http.StatusUnauthorized, "Signature does not match the message address")
		return
	}

	if err := h.nonces.Consume(msg.Nonce); err != nil {
		// Lost the race against a concurrent login with the same nonce.
		h.sendError(w, http.StatusUnauthorized, "Invalid or expired nonce")
		return
	}

	user := models.SessionUser{Address: signer, ChainID: msg.ChainID}
	token, err := middleware.MintSessionToken(user, h.sessionSecret, h.sessionTTL)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"token":    token,
		"address":  user.Address,
		"chain_id": user.ChainID,
	})
}
