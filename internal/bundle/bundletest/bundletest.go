// Package bundletest builds recorded-experiment fixtures for tests.
package bundletest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/log"
)

// Fixture is a fake host filesystem plus the trace directory describing
// one recorded experiment on it.
type Fixture struct {
	// Root holds every fixture path.
	Root string

	// Host is the fake host prefix; every recorded path lives under it.
	Host string

	// TraceDir contains config.yml.
	TraceDir string
}

// Option adjusts the generated config.
type Option func(*options)

type options struct {
	arch  string
	trace []byte
}

// WithArchitecture records arch for every run.
func WithArchitecture(arch string) Option {
	return func(o *options) { o.arch = arch }
}

// WithTraceDB places data at trace.sqlite3 in the trace directory.
func WithTraceDB(data []byte) Option {
	return func(o *options) { o.trace = data }
}

// HostArchitecture returns the machine name uname reports for the running
// build, for the common architectures.
func HostArchitecture() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return runtime.GOARCH
	}
}

// New lays out the fixture:
//
//	host/lib/libc.so      -> libc.so.6 (package libc6, packed)
//	host/lib/libc.so.6
//	host/bin/tool         (package tools, not packed)
//	host/exp/data.csv     (input of run "prepare")
//	host/exp/result.txt   (output of run "report")
//	host/share/doc/{a,b}.txt
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()
	o := &options{arch: HostArchitecture()}
	for _, opt := range opts {
		opt(o)
	}

	root := t.TempDir()
	fx := &Fixture{
		Root:     root,
		Host:     filepath.Join(root, "host"),
		TraceDir: filepath.Join(root, ".reprozip-trace"),
	}

	fx.WriteFile(t, "lib/libc.so.6", "libc contents\n", 0o755)
	require.NoError(t, os.Symlink("libc.so.6", fx.Path("lib/libc.so")))
	fx.WriteFile(t, "bin/tool", "#!/bin/sh\necho tool\n", 0o755)
	fx.WriteFile(t, "exp/data.csv", "a,b\n1,2\n", 0o644)
	fx.WriteFile(t, "exp/result.txt", "42\n", 0o644)
	fx.WriteFile(t, "share/doc/a.txt", "a\n", 0o644)
	fx.WriteFile(t, "share/doc/b.txt", "b\n", 0o644)

	require.NoError(t, os.MkdirAll(fx.TraceDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fx.TraceDir, "config.yml"), []byte(fx.config(o)), 0o644))
	if o.trace != nil {
		require.NoError(t, os.WriteFile(filepath.Join(fx.TraceDir, bundle.TraceFileName), o.trace, 0o644))
	}
	return fx
}

// Path returns the absolute path of rel under the fake host.
func (fx *Fixture) Path(rel string) string {
	return filepath.Join(fx.Host, filepath.FromSlash(rel))
}

// WriteFile creates rel under the fake host with its parent directories.
func (fx *Fixture) WriteFile(t testing.TB, rel, content string, mode os.FileMode) {
	t.Helper()
	path := fx.Path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
}

// AddOtherFile appends an other_files entry to the config.
func (fx *Fixture) AddOtherFile(t testing.TB, name, path string) {
	t.Helper()
	configPath := filepath.Join(fx.TraceDir, "config.yml")
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "  - name: %s\n    path: %s\n", name, path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// Pack packs the fixture into a new file under Root and returns its path.
func (fx *Fixture) Pack(t testing.TB) string {
	t.Helper()
	target := filepath.Join(fx.Root, "experiment"+bundle.DefaultPackExt)
	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, fx.TraceDir)
	require.NoError(t, err)
	return target
}

func (fx *Fixture) config(o *options) string {
	uid, gid := os.Getuid(), os.Getgid()
	return fmt.Sprintf(`version: "1"
runs:
  - id: prepare
    binary: %[1]s
    argv: [tool, data.csv]
    environ:
      HOME: /home/user
      PATH: /usr/bin:/bin
    workingdir: %[2]s
    uid: %[3]d
    gid: %[4]d
    architecture: %[5]s
    system: Linux
    input_files: [libc, data.csv]
  - id: report
    argv: [%[1]s, --report, it's done]
    environ:
      PATH: /usr/bin:/bin
      LANG: C
    workingdir: %[2]s
    uid: %[3]d
    gid: %[4]d
    architecture: %[5]s
    system: Linux
    input_files: [libc]
    output_files: [result.txt]
packages:
  - name: libc6
    version: 2.36-9
    packfiles: true
    files:
      - name: libc
        path: %[6]s
  - name: tools
    version: "1.0"
    packfiles: false
    files:
      - name: tool
        path: %[1]s
other_files:
  - name: data.csv
    path: %[7]s
  - name: result.txt
    path: %[8]s
  - name: docs
    path: %[9]s
`, fx.Path("bin/tool"), fx.Path("exp"), uid, gid, o.arch,
		fx.Path("lib/libc.so"), fx.Path("exp/data.csv"), fx.Path("exp/result.txt"), fx.Path("share/doc"))
}

// GenerateSSHKey writes an OpenSSH ed25519 key pair and returns the
// private key path and an authorized_keys file trusting it.
func GenerateSSHKey(t testing.TB) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "test key")
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "id_ed25519")
	authPath := filepath.Join(dir, "authorized_keys")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(block), 0o600))
	require.NoError(t, os.WriteFile(authPath, ssh.MarshalAuthorizedKey(sshPub), 0o644))
	return privPath, authPath
}
