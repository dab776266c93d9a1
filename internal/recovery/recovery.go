package recovery

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// secp256k1 curve order
	secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
)

// Common errors
var (
	ErrRMismatch       = errors.New("R values must match")
	ErrIdentical       = errors.New("signatures are identical")
	ErrNoInverse       = errors.New("failed to compute modular inverse")
	ErrRecoveryFailed  = errors.New("failed to recover private key")
	ErrInvalidSig      = errors.New("invalid signature")
	ErrNotEnoughSigs   = errors.New("not enough signatures")
	ErrInvalidBitCount = errors.New("invalid nonce bit count")
)

// Signature is an ECDSA signature (R, S) over the message hash Z
type Signature struct {
	Z *big.Int `json:"z"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// Validate checks that R and S are in [1, n) and Z is present
func (sig Signature) Validate() error {
	if sig.Z == nil || sig.R == nil || sig.S == nil {
		return fmt.Errorf("%w: missing component", ErrInvalidSig)
	}
	for _, v := range []*big.Int{sig.R, sig.S} {
		if v.Sign() <= 0 || v.Cmp(secp256k1N) >= 0 {
			return fmt.Errorf("%w: component out of range", ErrInvalidSig)
		}
	}
	return nil
}

// RecoverNonceReuse recovers a private key from two signatures with the same nonce.
// Both signatures must be from the same private key (a.R == b.R).
func RecoverNonceReuse(a, b Signature) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := b.Validate(); err != nil {
		return "", err
	}
	if a.R.Cmp(b.R) != 0 {
		return "", ErrRMismatch
	}
	if a.S.Cmp(b.S) == 0 {
		return "", ErrIdentical
	}

	// k = (z1 - z2) * (s1 - s2)^(-1) mod n
	zDiff := new(big.Int).Sub(a.Z, b.Z)
	zDiff.Mod(zDiff, secp256k1N)

	sDiff := new(big.Int).Sub(a.S, b.S)
	sDiff.Mod(sDiff, secp256k1N)

	sDiffInv := new(big.Int).ModInverse(sDiff, secp256k1N)
	if sDiffInv == nil {
		return "", ErrNoInverse
	}

	k := new(big.Int).Mul(zDiff, sDiffInv)
	k.Mod(k, secp256k1N)

	// s may have been normalized to the low half, try -k as well
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			k.Sub(secp256k1N, k)
		}
		priv, err := keyFromNonce(a, k)
		if err != nil {
			continue
		}
		return encodeKey(priv), nil
	}

	return "", ErrRecoveryFailed
}

// RecoverWithKnownNonce recovers a private key when the nonce k is known
func RecoverWithKnownNonce(sig Signature, k *big.Int) (string, error) {
	if err := sig.Validate(); err != nil {
		return "", err
	}
	priv, err := keyFromNonce(sig, k)
	if err != nil {
		return "", err
	}
	return encodeKey(priv), nil
}

// d = (s * k - z) * r^(-1) mod n
func keyFromNonce(sig Signature, k *big.Int) (*ecdsa.PrivateKey, error) {
	rInv := new(big.Int).ModInverse(sig.R, secp256k1N)
	if rInv == nil {
		return nil, ErrNoInverse
	}

	d := new(big.Int).Mul(sig.S, k)
	d.Sub(d, sig.Z)
	d.Mul(d, rInv)
	d.Mod(d, secp256k1N)

	return crypto.ToECDSA(gmath.PaddedBigBytes(d, 32))
}

// DeriveNonce derives the nonce k from a signature and known private key
// k = (z + r*d) * s^(-1) mod n
func DeriveNonce(sig Signature, privKeyHex string) (*big.Int, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	priv, err := decodeKey(privKeyHex)
	if err != nil {
		return nil, err
	}

	sInv := new(big.Int).ModInverse(sig.S, secp256k1N)
	if sInv == nil {
		return nil, ErrNoInverse
	}

	k := new(big.Int).Mul(sig.R, priv.D)
	k.Add(k, sig.Z)
	k.Mul(k, sInv)
	k.Mod(k, secp256k1N)
	return k, nil
}

// NonceMatches reports whether k is the nonce behind sig, (k*G).x mod n == r
func NonceMatches(sig Signature, k *big.Int) bool {
	if k.Sign() <= 0 || k.Cmp(secp256k1N) >= 0 {
		return false
	}
	rx, _ := crypto.S256().ScalarBaseMult(gmath.PaddedBigBytes(k, 32))
	rx.Mod(rx, secp256k1N)
	return rx.Cmp(sig.R) == 0
}

// VerifyPrivateKey verifies that a private key corresponds to an address
func VerifyPrivateKey(privKeyHex, expectedAddr string) bool {
	addr, err := AddressFromPrivateKey(privKeyHex)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr, expectedAddr)
}

// AddressFromPrivateKey derives the address from a private key
func AddressFromPrivateKey(privKeyHex string) (string, error) {
	priv, err := decodeKey(privKeyHex)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

func decodeKey(privKeyHex string) (*ecdsa.PrivateKey, error) {
	privBytes, err := hex.DecodeString(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

func encodeKey(priv *ecdsa.PrivateKey) string {
	return "0x" + hex.EncodeToString(crypto.FromECDSA(priv))
}
