package auth

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	xerrors "AgentVault/internal/errors"
)

// Verifier 按配置的模式认证请求。
type Verifier struct {
	mode    Mode
	maxSkew time.Duration
	nonces  *nonceCache
	now     func() time.Time
}

// NewVerifier 构造认证器。
func NewVerifier(cfg Config) (*Verifier, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	skew := cfg.MaxSkew
	if skew <= 0 {
		skew = defaultMaxSkew
	}
	return &Verifier{mode: mode, maxSkew: skew, nonces: newNonceCache(maxTrackedNonces), now: time.Now}, nil
}

// Mode 返回认证模式。
func (v *Verifier) Mode() Mode {
	if v == nil {
		return ModeHeader
	}
	return v.mode
}

// Authenticate 返回请求的调用方地址。签名模式下会读取并还原请求体。
func (v *Verifier) Authenticate(r *http.Request) (common.Address, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderAddress))
	if raw == "" {
		return common.Address{}, ErrMissingCaller
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, ErrInvalidCaller
	}
	caller := common.HexToAddress(raw)
	if caller == (common.Address{}) {
		return common.Address{}, ErrInvalidCaller
	}
	if v.Mode() == ModeHeader {
		return caller, nil
	}

	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, ErrStaleRequest
	}
	now, signedAt := v.now(), time.Unix(ts, 0)
	if skew := now.Sub(signedAt); skew > v.maxSkew || skew < -v.maxSkew {
		return common.Address{}, ErrStaleRequest
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" || len(nonce) > maxNonceLength {
		return common.Address{}, ErrMissingNonce
	}

	body, err := readBody(r)
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "read request body")
	}
	sig, err := hexutil.Decode(strings.TrimSpace(r.Header.Get(HeaderSignature)))
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	signer, err := recoverSigner(SigningPayload(r.Method, r.URL.Path, timestamp, nonce, body), sig)
	if err != nil || signer != caller {
		return common.Address{}, ErrInvalidSignature
	}
	// nonce 保留到其时间戳离开偏差窗口为止。
	if !v.nonces.use(signer, nonce, signedAt.Add(v.maxSkew), now) {
		return common.Address{}, ErrReplayedRequest
	}
	return caller, nil
}

// SigningPayload 生成待签名文本：METHOD\nPATH\nTIMESTAMP\nNONCE\nkeccak256(body)。
func SigningPayload(method, path, timestamp, nonce string, body []byte) []byte {
	digest := crypto.Keccak256Hash(body)
	return []byte(strings.ToUpper(method) + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + digest.Hex())
}

// Sign 使用私钥生成 X-Agent-Signature 的值。
func Sign(key *ecdsa.PrivateKey, method, path, timestamp, nonce string, body []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(SigningPayload(method, path, timestamp, nonce, body)), key)
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignRequest 为请求写入认证头并生成一次性 nonce，调用方需保证 body 与实际请求体一致。
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, body []byte, now time.Time) error {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	nonce := uuid.NewString()
	sig, err := Sign(key, r.Method, r.URL.Path, timestamp, nonce, body)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, sig)
	return nil
}

func recoverSigner(payload, sig []byte) (common.Address, error) {
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(payload), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
