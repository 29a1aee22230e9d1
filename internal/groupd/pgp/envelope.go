// Package pgp implements the crypto envelope of the protocol: detached
// signature verification of inbound requests and detached signing of every
// outbound reply. The signed payload is always the raw UTF-8 bytes of one
// request or reply field, never a re-serialized JSON object.
package pgp

import (
	"fmt"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// Result classifies a detached-signature check.
type Result int

const (
	// Valid: the signature is a detached signature over exactly the
	// supplied payload bytes, made by the supplied key.
	Valid Result = iota
	// Invalid: key and signature parsed, but the signature does not match
	// the payload.
	Invalid
	// Malformed: the key or the signature could not be parsed.
	Malformed
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "malformed"
	}
}

// Verify checks armoredSig as a detached signature over payload against
// armoredPub. It never returns an error: every failure mode is folded into
// the Result so callers map it straight to a wire reply.
func Verify(payload []byte, armoredSig, armoredPub string) Result {
	key, err := crypto.NewKeyFromArmored(armoredPub)
	if err != nil {
		return Malformed
	}

	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return Malformed
	}

	sig, err := crypto.NewPGPSignatureFromArmored(armoredSig)
	if err != nil {
		return Malformed
	}

	if err := ring.VerifyDetached(crypto.NewPlainMessage(payload), sig, crypto.GetUnixTime()); err != nil {
		return Invalid
	}
	return Valid
}

// ParsePublicKey parses an ASCII-armored public key, e.g. the configured
// admin key or a key supplied during registration.
func ParsePublicKey(armored string) (*crypto.Key, error) {
	key, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return nil, fmt.Errorf("parse armored key: %w", err)
	}
	return key, nil
}

// Signer produces armored detached signatures with the server's unlocked
// private key. It is read-only after construction and safe for concurrent
// use.
type Signer struct {
	ring *crypto.KeyRing
}

// NewSigner wraps an unlocked private key.
func NewSigner(key *crypto.Key) (*Signer, error) {
	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("build signing keyring: %w", err)
	}
	return &Signer{ring: ring}, nil
}

// Sign returns an ASCII-armored detached signature over payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := s.ring.SignDetached(crypto.NewPlainMessage(payload))
	if err != nil {
		return "", fmt.Errorf("sign detached: %w", err)
	}

	armored, err := sig.GetArmored()
	if err != nil {
		return "", fmt.Errorf("armor signature: %w", err)
	}
	return armored, nil
}
