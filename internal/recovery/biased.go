package recovery

import (
	"context"
	"fmt"
	"math/big"

	"cvp-knife/internal/cvp"
)

// MinBiasedSignatures is the smallest signature count RecoverBiasedNonces accepts
const MinBiasedSignatures = 2

// Recovered is a key found from signatures with short nonces
type Recovered struct {
	PrivateKey string     `json:"private_key"`
	Address    string     `json:"address"`
	Nonces     []*big.Int `json:"nonces"`
	NonceBits  int        `json:"nonce_bits"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// BiasedNonceSystem builds the hidden number instance for signatures whose
// nonces are all below 2^nonceBits. Each nonce is the affine form
// k_i = s_i^-1*r_i*d + s_i^-1*z_i (mod n) bounded to [0, 2^nonceBits].
func BiasedNonceSystem(sigs []Signature, nonceBits int, opts ...cvp.Option) (*cvp.Compiler, error) {
	if nonceBits <= 0 || nonceBits >= secp256k1N.BitLen() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitCount, nonceBits)
	}
	if len(sigs) < MinBiasedSignatures {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSigs, len(sigs), MinBiasedSignatures)
	}

	c := cvp.NewCompiler(opts...)
	keyBound := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := c.AddExpr(cvp.Linear{Label: "d", Parts: []cvp.Term{cvp.NewTerm(1, "d")}},
		cvp.Bounded(big.NewInt(0), keyBound)); err != nil {
		return nil, err
	}

	nonceBound := new(big.Int).Lsh(big.NewInt(1), uint(nonceBits))
	for i, sig := range sigs {
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		sInv := new(big.Int).ModInverse(sig.S, secp256k1N)
		if sInv == nil {
			return nil, fmt.Errorf("signature %d: %w", i, ErrNoInverse)
		}
		t := new(big.Int).Mul(sInv, sig.R)
		t.Mod(t, secp256k1N)
		u := new(big.Int).Mul(sInv, sig.Z)
		u.Mod(u, secp256k1N)

		k := cvp.Linear{
			Label: fmt.Sprintf("k%d", i),
			Parts: []cvp.Term{{Coeff: t, Monomial: "d", Degree: 1}, cvp.ConstTerm(u)},
		}
		if err := c.AddExpr(k, cvp.Mod(secp256k1N), cvp.Bounded(big.NewInt(0), nonceBound)); err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
	}
	return c, nil
}

// RecoverBiasedNonces recovers the signing key from signatures whose nonces
// are shorter than nonceBits bits. Every recovered nonce is checked against
// its signature before the key is returned.
func RecoverBiasedNonces(ctx context.Context, sigs []Signature, nonceBits int, opts ...cvp.Option) (*Recovered, error) {
	c, err := BiasedNonceSystem(sigs, nonceBits, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := c.Compile(); err != nil {
		return nil, err
	}
	sol, err := c.Solve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}

	// Values are d, k0, k1, ...
	nonces := sol.Values[1:]
	for i, k := range nonces {
		if !NonceMatches(sigs[i], k) {
			return nil, fmt.Errorf("%w: nonce %d does not match r", ErrRecoveryFailed, i)
		}
	}

	priv, err := keyFromNonce(sigs[0], nonces[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	key := encodeKey(priv)
	addr, err := AddressFromPrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &Recovered{
		PrivateKey: key,
		Address:    addr,
		Nonces:     nonces,
		NonceBits:  nonceBits,
		Warnings:   sol.Warnings,
	}, nil
}
