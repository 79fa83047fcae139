package bundle

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

const (
	// SignatureExt is appended to a pack path to name its signature file.
	SignatureExt = ".sig"

	signatureFormat = "reprobox-ssh-v1"
)

// Signature is a detached SSH signature over a pack digest.
type Signature struct {
	Format      string    `json:"format"`
	Digest      string    `json:"digest"`
	SignedAt    time.Time `json:"signed_at"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	Algorithm   string    `json:"algorithm"`
	Blob        string    `json:"signature"`
}

// SignaturePath returns where the signature of packPath is stored.
func SignaturePath(packPath string) string {
	return packPath + SignatureExt
}

// Sign signs the pack with an OpenSSH private key and writes the detached
// signature next to it.
func Sign(packPath, keyPath string) (*Signature, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignKey, "read private key", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignKey, "parse private key", err).
			WithSuggestion("Passphrase-protected keys are not supported; use an unencrypted key or ssh-agent export")
	}

	digest, err := Digest(packPath)
	if err != nil {
		return nil, readError(packPath, err)
	}

	sig := &Signature{
		Format:      signatureFormat,
		Digest:      digest,
		SignedAt:    time.Now().UTC().Truncate(time.Second),
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))),
		Fingerprint: ssh.FingerprintSHA256(signer.PublicKey()),
	}

	raw, err := signer.Sign(rand.Reader, sig.message())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignKey, "sign pack digest", err)
	}
	sig.Algorithm = raw.Format
	sig.Blob = base64.StdEncoding.EncodeToString(raw.Blob)

	data, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode signature: %w", err)
	}
	if err := os.WriteFile(SignaturePath(packPath), append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write signature: %w", err)
	}
	return sig, nil
}

// Verify checks the pack's detached signature against the keys listed in
// an authorized_keys style file. It fails if the signature is absent, the
// signer is not listed, or the pack changed since signing.
func Verify(packPath, authorizedKeysPath string) (*Signature, error) {
	trusted, err := loadAuthorizedKeys(authorizedKeysPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(SignaturePath(packPath))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Newf(errors.ErrCodeSignMissing, "pack is not signed: %s not found", SignaturePath(packPath)).
				WithSuggestion("Run 'reprobox sign <pack> --key <private key>'")
		}
		return nil, fmt.Errorf("read signature: %w", err)
	}

	var sig Signature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignMismatch, "decode signature", err)
	}
	if sig.Format != signatureFormat {
		return nil, errors.Newf(errors.ErrCodeSignMismatch, "unknown signature format %q", sig.Format)
	}

	publicKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(sig.PublicKey))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignMismatch, "parse signer public key", err)
	}
	if !isTrusted(publicKey, trusted) {
		return nil, errors.Newf(errors.ErrCodeSignMismatch, "pack signed by untrusted key %s", ssh.FingerprintSHA256(publicKey))
	}

	digest, err := Digest(packPath)
	if err != nil {
		return nil, readError(packPath, err)
	}
	if digest != sig.Digest {
		return nil, errors.Newf(errors.ErrCodeSignMismatch, "pack digest %s does not match signed digest %s", digest, sig.Digest).
			WithSuggestion("The pack was modified after it was signed")
	}

	blob, err := base64.StdEncoding.DecodeString(sig.Blob)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignMismatch, "decode signature blob", err)
	}
	if err := publicKey.Verify(sig.message(), &ssh.Signature{Format: sig.Algorithm, Blob: blob}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignMismatch, "signature verification failed", err)
	}
	return &sig, nil
}

// message is the canonical byte string a signature covers.
func (s *Signature) message() []byte {
	var buf strings.Builder
	buf.WriteString("REPROBOX PACK SIGNATURE\n")
	fmt.Fprintf(&buf, "Digest: %s\n", s.Digest)
	fmt.Fprintf(&buf, "Timestamp: %s\n", s.SignedAt.Format(time.RFC3339))
	return []byte(buf.String())
}

func loadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignKey, "read trusted keys", err)
	}

	var keys []ssh.PublicKey
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		key, _, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSignKey, "parse trusted keys "+path, err)
		}
		keys = append(keys, key)
		rest = next
	}
	if len(keys) == 0 {
		return nil, errors.Newf(errors.ErrCodeSignKey, "no public keys in %s", path)
	}
	return keys, nil
}

func isTrusted(key ssh.PublicKey, trusted []ssh.PublicKey) bool {
	for _, t := range trusted {
		if bytes.Equal(key.Marshal(), t.Marshal()) {
			return true
		}
	}
	return false
}
