package venue

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Instructions named in signed requests.
const (
	InstructionPositionQuery = "positionQuery"
	InstructionOrderExecute  = "orderExecute"
)

// Signer produces ED25519 request signatures.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner accepts the base64 secret as a 32 byte seed or a 64 byte private key.
func NewSigner(secret string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMissingCredentials, "api secret is not valid base64", err)
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return &Signer{key: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		return &Signer{key: ed25519.PrivateKey(raw)}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeMissingCredentials, "api secret must decode to %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// PublicKey returns the base64 public key matching the secret.
func (s *Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign returns the base64 signature of the canonical signing string.
func (s *Signer) Sign(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	msg := SigningString(instruction, params, timestampMs, windowMs)

	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(msg)))
}

// SigningString renders instruction=<name>&k=v... (keys sorted)&timestamp=<ms>&window=<ms>.
func SigningString(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+3)
	parts = append(parts, "instruction="+instruction)

	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}

	parts = append(parts, "timestamp="+strconv.FormatInt(timestampMs, 10), "window="+strconv.FormatInt(windowMs, 10))

	return strings.Join(parts, "&")
}

// Verify checks a base64 signature against a base64 public key.
func Verify(publicKey, signature, message string) bool {
	pub, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}

// orderParams flattens an order into the signed parameter set.
func orderParams(req OrderRequest) map[string]string {
	return map[string]string{
		"symbol":      req.Symbol,
		"side":        req.Side,
		"order_type":  req.OrderType,
		"quantity":    req.Quantity,
		"reduce_only": strconv.FormatBool(req.ReduceOnly),
	}
}
