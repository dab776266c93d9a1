package recovery

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// This private key is for testing only - never use on mainnet!
	testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddr    = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

// signWithNonce signs a message hash with a specific nonce k
func signWithNonce(privKey *ecdsa.PrivateKey, hash []byte, k *big.Int) Signature {
	curve := crypto.S256()
	N := curve.Params().N

	// R = k * G
	rx, _ := curve.ScalarBaseMult(k.Bytes())
	r := new(big.Int).Mod(rx, N)

	// s = k^(-1) * (z + r*d) mod N
	z := new(big.Int).SetBytes(hash)
	kInv := new(big.Int).ModInverse(k, N)
	s := new(big.Int).Mul(r, privKey.D)
	s.Add(s, z)
	s.Mul(s, kInv)
	s.Mod(s, N)

	return Signature{Z: z, R: r, S: s}
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(testPrivKey[2:])
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestVerifyPrivateKey(t *testing.T) {
	if !VerifyPrivateKey(testPrivKey, testAddr) {
		t.Errorf("VerifyPrivateKey failed for known good key/address pair")
	}

	// Wrong address should fail
	if VerifyPrivateKey(testPrivKey, "0x0000000000000000000000000000000000000000") {
		t.Errorf("VerifyPrivateKey should fail for wrong address")
	}
	if VerifyPrivateKey("0xzz", testAddr) {
		t.Errorf("VerifyPrivateKey should fail for malformed key")
	}
}

func TestAddressFromPrivateKey(t *testing.T) {
	addr, err := AddressFromPrivateKey(testPrivKey)
	if err != nil {
		t.Fatalf("AddressFromPrivateKey failed: %v", err)
	}
	if addr != testAddr {
		t.Errorf("Expected %s, got %s", testAddr, addr)
	}
}

func TestRecoverNonceReuse(t *testing.T) {
	key := testKey(t)
	k := big.NewInt(0xdeadbeef)

	a := signWithNonce(key, crypto.Keccak256([]byte("first")), k)
	b := signWithNonce(key, crypto.Keccak256([]byte("second")), k)

	got, err := RecoverNonceReuse(a, b)
	if err != nil {
		t.Fatalf("RecoverNonceReuse failed: %v", err)
	}
	if got != testPrivKey {
		t.Errorf("Expected %s, got %s", testPrivKey, got)
	}

	if _, err := RecoverNonceReuse(a, a); !errors.Is(err, ErrIdentical) {
		t.Errorf("identical signatures: got %v", err)
	}
	c := signWithNonce(key, crypto.Keccak256([]byte("third")), big.NewInt(99))
	if _, err := RecoverNonceReuse(a, c); !errors.Is(err, ErrRMismatch) {
		t.Errorf("different nonces: got %v", err)
	}
}

func TestKnownNonceAndDerive(t *testing.T) {
	key := testKey(t)
	k := big.NewInt(424242)
	sig := signWithNonce(key, crypto.Keccak256([]byte("msg")), k)

	got, err := RecoverWithKnownNonce(sig, k)
	if err != nil {
		t.Fatalf("RecoverWithKnownNonce failed: %v", err)
	}
	if got != testPrivKey {
		t.Errorf("Expected %s, got %s", testPrivKey, got)
	}

	derived, err := DeriveNonce(sig, testPrivKey)
	if err != nil {
		t.Fatalf("DeriveNonce failed: %v", err)
	}
	if derived.Cmp(k) != 0 {
		t.Errorf("DeriveNonce = %s, want %s", derived, k)
	}

	if !NonceMatches(sig, k) {
		t.Error("NonceMatches rejected the real nonce")
	}
	if NonceMatches(sig, big.NewInt(424243)) {
		t.Error("NonceMatches accepted a wrong nonce")
	}
	if NonceMatches(sig, big.NewInt(0)) {
		t.Error("NonceMatches accepted zero")
	}
}

func TestSignatureValidate(t *testing.T) {
	tests := []struct {
		name string
		sig  Signature
		ok   bool
	}{
		{"valid", Signature{Z: big.NewInt(1), R: big.NewInt(2), S: big.NewInt(3)}, true},
		{"missing", Signature{Z: big.NewInt(1), R: big.NewInt(2)}, false},
		{"zero r", Signature{Z: big.NewInt(1), R: big.NewInt(0), S: big.NewInt(3)}, false},
		{"s too large", Signature{Z: big.NewInt(1), R: big.NewInt(2), S: new(big.Int).Set(secp256k1N)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func biasedSignatures(t *testing.T, count, bits int) ([]Signature, []*big.Int) {
	key := testKey(t)
	rng := rand.New(rand.NewSource(7))
	bound := new(big.Int).Lsh(big.NewInt(1), uint(bits))

	var sigs []Signature
	var nonces []*big.Int
	for i := 0; i < count; i++ {
		k := new(big.Int).Rand(rng, bound)
		if k.Sign() == 0 {
			k.SetInt64(1)
		}
		hash := crypto.Keccak256([]byte{byte(i), 'm', 's', 'g'})
		sigs = append(sigs, signWithNonce(key, hash, k))
		nonces = append(nonces, k)
	}
	return sigs, nonces
}

func TestRecoverBiasedNonces(t *testing.T) {
	sigs, nonces := biasedSignatures(t, 4, 128)

	rec, err := RecoverBiasedNonces(context.Background(), sigs, 128)
	if err != nil {
		t.Fatalf("RecoverBiasedNonces failed: %v", err)
	}
	if rec.PrivateKey != testPrivKey {
		t.Errorf("PrivateKey = %s, want %s", rec.PrivateKey, testPrivKey)
	}
	if rec.Address != testAddr {
		t.Errorf("Address = %s, want %s", rec.Address, testAddr)
	}
	if len(rec.Nonces) != len(nonces) {
		t.Fatalf("got %d nonces, want %d", len(rec.Nonces), len(nonces))
	}
	for i := range nonces {
		if rec.Nonces[i].Cmp(nonces[i]) != 0 {
			t.Errorf("nonce %d = %s, want %s", i, rec.Nonces[i], nonces[i])
		}
	}
}

func TestBiasedNonceSystemErrors(t *testing.T) {
	sigs, _ := biasedSignatures(t, 2, 64)

	if _, err := BiasedNonceSystem(sigs[:1], 64); !errors.Is(err, ErrNotEnoughSigs) {
		t.Errorf("one signature: got %v", err)
	}
	if _, err := BiasedNonceSystem(sigs, 0); !errors.Is(err, ErrInvalidBitCount) {
		t.Errorf("zero bits: got %v", err)
	}
	if _, err := BiasedNonceSystem(sigs, 256); !errors.Is(err, ErrInvalidBitCount) {
		t.Errorf("256 bits: got %v", err)
	}
	bad := append([]Signature{}, sigs...)
	bad[1] = Signature{Z: big.NewInt(1), R: big.NewInt(0), S: big.NewInt(1)}
	if _, err := BiasedNonceSystem(bad, 64); !errors.Is(err, ErrInvalidSig) {
		t.Errorf("bad signature: got %v", err)
	}

	c, err := BiasedNonceSystem(sigs, 64)
	if err != nil {
		t.Fatalf("BiasedNonceSystem failed: %v", err)
	}
	lat, err := c.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	// d, two nonces and the constant column
	if lat.Cols() != 4 {
		t.Errorf("Cols() = %d, want 4", lat.Cols())
	}
}
