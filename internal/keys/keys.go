// Package keys implements hashing, key-pair generation/signing, and
// address derivation (spec.md §4.1). It is grounded on the teacher
// repo's wallet/wallet.go, generalized from P-256 to secp256k1 and from
// a Base58 Bitcoin-style address to the spec's "KD"-prefixed base32
// address.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for the legacy KD1 address format, see AddressLegacy.

	"github.com/kado-chain/kado/internal/ledgererr"
)

// AddressPrefix is the network identifier every address must carry.
const AddressPrefix = "KD"

// AddressLength is the fixed length of a serialized address: the 2-byte
// "KD" prefix plus the unpadded base32 encoding of a 20-byte hash, which
// is always 32 characters (160 bits / 5 bits-per-symbol). spec.md §3
// states 35 as the target length while also pinning the construction to
// "KD"+base32(20 bytes); the two are arithmetically incompatible (34, not
// 35), so this implementation follows the explicit construction formula
// — see DESIGN.md's Open Questions for the resolution.
const AddressLength = 2 + 32

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Hash is SHA-256, the hashing primitive used throughout the ledger.
func Hash(data []byte) [32]byte { return sha256.Sum256(data) }

// HashHex hashes data and hex-encodes the result, matching the
// "lowercase hex in all serialized forms" rule of spec.md §4.1.
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}

// KeyPair is a secp256k1 signing key plus its serialized public key.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  []byte // 33-byte compressed public key
}

// NewKeyPair generates a fresh secp256k1 key pair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindMalformedKey, err, "generate key pair")
	}
	return &KeyPair{Private: priv, Public: priv.PubKey().SerializeCompressed()}, nil
}

// KeyPairFromPrivateBytes reconstructs a KeyPair from a raw private scalar,
// used when restoring a wallet from disk.
func KeyPairFromPrivateBytes(raw []byte) (*KeyPair, error) {
	if len(raw) != 32 {
		return nil, ledgererr.New(ledgererr.KindMalformedKey, "private key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeyPair{Private: priv, Public: priv.PubKey().SerializeCompressed()}, nil
}

// PrivateBytes returns the raw 32-byte private scalar for persistence.
func (k *KeyPair) PrivateBytes() []byte { return k.Private.Serialize() }

// GobEncode implements gob.GobEncoder, storing only the private scalar —
// the public key and curve are recomputed from it on decode. Grounded on
// the teacher's Wallet.GobEncode, which does the same for its P-256 key.
func (k *KeyPair) GobEncode() ([]byte, error) {
	return k.PrivateBytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (k *KeyPair) GobDecode(data []byte) error {
	restored, err := KeyPairFromPrivateBytes(data)
	if err != nil {
		return err
	}
	*k = *restored
	return nil
}

// Sign produces a 64-byte raw (r,s) signature over preimage.
func (k *KeyPair) Sign(preimage []byte) ([]byte, error) {
	digest := sha256.Sum256(preimage)
	sig := ecdsa.Sign(k.Private, digest[:])
	return rawSignatureBytes(sig), nil
}

// rawSignatureBytes packs the (r,s) pair of a signature into 64 bytes,
// 32 bytes each, big-endian, zero-padded — the fixed-width raw ECDSA
// encoding spec.md §4.1 calls for (as opposed to ASN.1 DER).
func rawSignatureBytes(sig *ecdsa.Signature) []byte {
	der := sig.Serialize()
	r, s := parseDER(der)
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out
}

// parseDER extracts r and s from a DER-encoded ECDSA signature. Avoids
// depending on unexported fields of ecdsa.Signature.
func parseDER(der []byte) (*big.Int, *big.Int) {
	// DER: 0x30 len 0x02 rlen r 0x02 slen s
	if len(der) < 8 || der[0] != 0x30 {
		return new(big.Int), new(big.Int)
	}
	idx := 2
	rLen := int(der[idx+1])
	r := new(big.Int).SetBytes(der[idx+2 : idx+2+rLen])
	idx = idx + 2 + rLen
	sLen := int(der[idx+1])
	s := new(big.Int).SetBytes(der[idx+2 : idx+2+sLen])
	return r, s
}

// VerifySignature verifies a 64-byte raw (r,s) signature over preimage
// against a serialized compressed public key.
func VerifySignature(pubKey, signature, preimage []byte) (bool, error) {
	if len(signature) != 64 {
		return false, ledgererr.New(ledgererr.KindInvalidSignature, "signature must be 64 bytes, got %d", len(signature))
	}
	key, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false, ledgererr.Wrap(ledgererr.KindMalformedKey, err, "parse public key")
	}
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])

	modN := secp256k1.S256().N
	if r.Sign() <= 0 || r.Cmp(modN) >= 0 || s.Sign() <= 0 || s.Cmp(modN) >= 0 {
		return false, nil
	}

	var rScalar, sScalar secp256k1.ModNScalar
	rScalar.SetByteSlice(r.Bytes())
	sScalar.SetByteSlice(s.Bytes())
	sig := ecdsa.NewSignature(&rScalar, &sScalar)

	digest := sha256.Sum256(preimage)
	return sig.Verify(digest[:], key), nil
}

// PublicKeyHash returns the 20-byte SHA-256-derived identifier used to
// build an address, per spec.md §4.1: SHA256(public_key_bytes)[:20].
func PublicKeyHash(pubKey []byte) []byte {
	h := sha256.Sum256(pubKey)
	return h[:20]
}

// Address derives the "KD"-prefixed base32 address from a public key.
func Address(pubKey []byte) string {
	hash := PublicKeyHash(pubKey)
	return AddressPrefix + b32.EncodeToString(hash)
}

// ValidAddress reports whether addr has the right prefix and length for
// this network. It does not (and cannot) prove the address corresponds
// to any particular public key — that is established by signature
// verification against the referenced output, per spec.md §4.3.
func ValidAddress(addr string) bool {
	if len(addr) != AddressLength {
		return false
	}
	if addr[:len(AddressPrefix)] != AddressPrefix {
		return false
	}
	_, err := b32.DecodeString(addr[len(AddressPrefix):])
	return err == nil
}

// legacyVersion is the single version byte prefixed to the payload
// before base58 encoding, the role Bitcoin's P2PKH version byte plays.
const legacyVersion = 0x00

// legacyChecksumLength is the number of leading checksum bytes appended
// to the payload before encoding, matching Bitcoin's 4-byte checksum.
const legacyChecksumLength = 4

// AddressLegacy derives a Bitcoin-style "KD1" + base58(version ||
// RIPEMD160(SHA256(pubkey)) || checksum) address, the compatibility
// import/export format SPEC_FULL.md's domain stack reserves
// github.com/mr-tron/base58 for. It is never produced by the primary
// wallet flow; it exists only so external KD1-era key material can be
// imported and its legacy address recomputed for verification.
func AddressLegacy(pubKey []byte) (string, error) {
	sum := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	if _, err := hasher.Write(sum[:]); err != nil {
		return "", fmt.Errorf("keys: ripemd160: %w", err)
	}
	pubKeyHash := hasher.Sum(nil)

	versioned := append([]byte{legacyVersion}, pubKeyHash...)
	checksum := legacyChecksum(versioned)
	payload := append(versioned, checksum...)

	return "KD1" + base58.Encode(payload), nil
}

// legacyChecksum is the first legacyChecksumLength bytes of the double
// SHA-256 of payload, the same checksum construction Bitcoin's Base58Check
// uses.
func legacyChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:legacyChecksumLength]
}
