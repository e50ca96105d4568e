// Package signature verifies detached OpenPGP signatures on runner files so
// that only files signed by a trusted key are executed.
package signature

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// SignatureSuffix is appended to a runner file path to find its signature.
const SignatureSuffix = ".asc"

const armorHeader = "-----BEGIN PGP PUBLIC KEY BLOCK-----"

// Sentinel errors
var (
	ErrEmptyKeyring     = errors.New("keyring contains no public keys")
	ErrMissingSignature = errors.New("signature file not found")
)

// VerificationError reports that a runner file's signature could not be
// checked or did not match any trusted key.
type VerificationError struct {
	Path          string
	SignaturePath string
	Err           error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("signature verification failed for %s (%s): %v", e.Path, e.SignaturePath, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Verifier checks runner file content against a detached signature stored
// next to the file.
type Verifier struct {
	keyRing      *crypto.KeyRing
	fingerprints []string
}

// NewVerifier builds a Verifier from one or more concatenated armored
// public key blocks.
func NewVerifier(armoredKeys string) (*Verifier, error) {
	blocks := splitArmoredKeys(armoredKeys)
	if len(blocks) == 0 {
		return nil, ErrEmptyKeyring
	}

	v := &Verifier{}
	for i, block := range blocks {
		key, err := crypto.NewKeyFromArmored(block)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key %d: %w", i, err)
		}
		if v.keyRing == nil {
			v.keyRing, err = crypto.NewKeyRing(key)
			if err != nil {
				return nil, fmt.Errorf("failed to create keyring: %w", err)
			}
		} else if err := v.keyRing.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key to keyring: %w", err)
		}
		v.fingerprints = append(v.fingerprints, key.GetFingerprint())
	}
	return v, nil
}

// LoadVerifier reads a keyring file of armored public keys.
func LoadVerifier(keyringPath string) (*Verifier, error) {
	data, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring %s: %w", keyringPath, err)
	}
	v, err := NewVerifier(string(data))
	if err != nil {
		return nil, fmt.Errorf("keyring %s: %w", keyringPath, err)
	}
	return v, nil
}

// Fingerprints returns the fingerprints of the trusted keys.
func (v *Verifier) Fingerprints() []string {
	return append([]string(nil), v.fingerprints...)
}

// Verify checks data, the content of the runner file at path, against the
// signature at path + SignatureSuffix. Armored and binary signatures are
// both accepted.
func (v *Verifier) Verify(path string, data []byte) error {
	sigPath := path + SignatureSuffix
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrMissingSignature
		}
		return &VerificationError{Path: path, SignaturePath: sigPath, Err: err}
	}
	if err := v.VerifyDetached(data, sig); err != nil {
		return &VerificationError{Path: path, SignaturePath: sigPath, Err: err}
	}
	return nil
}

// VerifyDetached checks message against a detached signature.
func (v *Verifier) VerifyDetached(message, signature []byte) error {
	if v.keyRing == nil {
		return ErrEmptyKeyring
	}

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := v.keyRing.VerifyDetached(crypto.NewPlainMessage(message), pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature does not match a trusted key: %w", err)
	}
	return nil
}

// splitArmoredKeys separates concatenated armored public key blocks.
func splitArmoredKeys(data string) []string {
	var blocks []string
	parts := strings.Split(data, armorHeader)
	for _, part := range parts[1:] {
		blocks = append(blocks, armorHeader+part)
	}
	return blocks
}
