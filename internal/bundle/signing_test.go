package bundle_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/bundle/bundletest"
	"github.com/felixgeelhaar/reprobox/internal/errors"
)

func TestSignVerify(t *testing.T) {
	packPath := bundletest.New(t).Pack(t)
	keyPath, trusted := bundletest.GenerateSSHKey(t)

	sig, err := bundle.Sign(packPath, keyPath)
	require.NoError(t, err)
	assert.FileExists(t, bundle.SignaturePath(packPath))
	assert.Equal(t, ssh.KeyAlgoED25519, sig.Algorithm)

	digest, err := bundle.Digest(packPath)
	require.NoError(t, err)
	assert.Equal(t, digest, sig.Digest)

	verified, err := bundle.Verify(packPath, trusted)
	require.NoError(t, err)
	assert.Equal(t, sig.Fingerprint, verified.Fingerprint)
}

func TestVerifyTamperedPack(t *testing.T) {
	packPath := bundletest.New(t).Pack(t)
	keyPath, trusted := bundletest.GenerateSSHKey(t)
	_, err := bundle.Sign(packPath, keyPath)
	require.NoError(t, err)

	f, err := os.OpenFile(packPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("trailing garbage"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = bundle.Verify(packPath, trusted)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSignMismatch, errors.CodeOf(err))
}

func TestVerifyUntrustedKey(t *testing.T) {
	packPath := bundletest.New(t).Pack(t)
	keyPath, _ := bundletest.GenerateSSHKey(t)
	_, otherTrusted := bundletest.GenerateSSHKey(t)

	_, err := bundle.Sign(packPath, keyPath)
	require.NoError(t, err)

	_, err = bundle.Verify(packPath, otherTrusted)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSignMismatch, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "untrusted key")
}

func TestVerifyUnsigned(t *testing.T) {
	packPath := bundletest.New(t).Pack(t)
	_, trusted := bundletest.GenerateSSHKey(t)

	_, err := bundle.Verify(packPath, trusted)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSignMissing, errors.CodeOf(err))
	assert.Equal(t, errors.KindSignature, errors.KindOf(err))
}

func TestSignBadKey(t *testing.T) {
	packPath := bundletest.New(t).Pack(t)
	keyPath := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a key"), 0o600))

	_, err := bundle.Sign(packPath, keyPath)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSignKey, errors.CodeOf(err))
	assert.NoFileExists(t, bundle.SignaturePath(packPath))
}
