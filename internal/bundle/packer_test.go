package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/bundle/bundletest"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
)

func members(t *testing.T, packPath string) []string {
	t.Helper()
	var names []string
	require.NoError(t, bundle.Walk(packPath, func(h *tar.Header, _ io.Reader) error {
		names = append(names, strings.TrimSuffix(h.Name, "/"))
		return nil
	}))
	return names
}

func TestPackLayout(t *testing.T) {
	fx := bundletest.New(t)
	packPath := fx.Pack(t)

	m := func(rel string) string { return bundle.MemberName(fx.Path(rel)) }
	assert.Equal(t, []string{
		bundle.VersionMember,
		bundle.ConfigMember,
		m("lib/libc.so"),
		m("lib/libc.so.6"),
		m("exp/data.csv"),
		m("exp/result.txt"),
		m("share/doc"),
		m("share/doc/a.txt"),
		m("share/doc/b.txt"),
	}, members(t, packPath))

	version, err := bundle.ReadMember(packPath, bundle.VersionMember)
	require.NoError(t, err)
	assert.Equal(t, "REPROZIP VERSION 1\n", string(version))

	cfgData, err := bundle.ReadMember(packPath, bundle.ConfigMember)
	require.NoError(t, err)
	original, err := os.ReadFile(filepath.Join(fx.TraceDir, "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, original, cfgData, "config is stored byte for byte")

	info, err := os.Stat(packPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestPackSkipsUnpackedPackageFiles(t *testing.T) {
	fx := bundletest.New(t)
	packPath := fx.Pack(t)

	assert.NotContains(t, members(t, packPath), bundle.MemberName(fx.Path("bin/tool")))

	manifest, err := bundle.ReadManifest(packPath)
	require.NoError(t, err)
	tool, ok := manifest.Config.File("tool")
	require.True(t, ok, "the file stays listed in the config")
	assert.Equal(t, fx.Path("bin/tool"), tool.Path)
}

func TestPackKeepsSymlinks(t *testing.T) {
	fx := bundletest.New(t)
	packPath := fx.Pack(t)

	var link *tar.Header
	require.NoError(t, bundle.Walk(packPath, func(h *tar.Header, _ io.Reader) error {
		if h.Name == bundle.MemberName(fx.Path("lib/libc.so")) {
			link = h
		}
		return nil
	}))
	require.NotNil(t, link)
	assert.Equal(t, byte(tar.TypeSymlink), link.Typeflag)
	assert.Equal(t, "libc.so.6", link.Linkname)
}

func TestPackFollowsLongChains(t *testing.T) {
	fx := bundletest.New(t)
	prev := "libc.so.6"
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("hop%d", i)
		require.NoError(t, os.Symlink(prev, fx.Path("lib/"+name)))
		prev = name
	}

	fx.AddOtherFile(t, "chain", fx.Path("lib/"+prev))
	packPath := fx.Pack(t)

	names := members(t, packPath)
	for i := 0; i < 10; i++ {
		assert.Contains(t, names, bundle.MemberName(fx.Path(fmt.Sprintf("lib/hop%d", i))))
	}
}

func TestPackSymlinkLoop(t *testing.T) {
	fx := bundletest.New(t)
	require.NoError(t, os.Symlink("loop-b", fx.Path("lib/loop-a")))
	require.NoError(t, os.Symlink("loop-a", fx.Path("lib/loop-b")))
	fx.AddOtherFile(t, "loop", fx.Path("lib/loop-a"))

	target := filepath.Join(fx.Root, "loop.rpz")
	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, fx.TraceDir)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeArchiveSymlinks, errors.CodeOf(err))
	assert.Equal(t, errors.KindArchiveWrite, errors.KindOf(err))
	assert.Equal(t, errors.DocsPacking, docsURL(t, err))
	assert.NoFileExists(t, target)
	assertNoTempFiles(t, fx.Root)
}

func TestPackRefusesExistingTarget(t *testing.T) {
	fx := bundletest.New(t)
	target := filepath.Join(fx.Root, "existing.rpz")
	original := []byte("precious")
	require.NoError(t, os.WriteFile(target, original, 0o600))

	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, fx.TraceDir)
	require.Error(t, err)
	assert.Equal(t, errors.KindArchiveExists, errors.KindOf(err))
	assert.Equal(t, errors.DocsPacking, docsURL(t, err))

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, after)
}

func TestPackMissingConfig(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.rpz")

	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, filepath.Join(dir, "no-trace"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputConfig, errors.CodeOf(err))
	assert.Equal(t, errors.KindMissingInput, errors.KindOf(err))
	assert.NoFileExists(t, target)
}

func TestPackInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("runs: []\n"), 0o644))
	target := filepath.Join(dir, "out.rpz")

	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, dir)
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.NoFileExists(t, target)
}

func TestPackMissingPayload(t *testing.T) {
	fx := bundletest.New(t)
	require.NoError(t, os.Remove(fx.Path("exp/data.csv")))

	target := filepath.Join(fx.Root, "out.rpz")
	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), target, fx.TraceDir)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputPayload, errors.CodeOf(err))
	assert.Contains(t, err.Error(), fx.Path("exp/data.csv"))
	assert.NoFileExists(t, target)
	assertNoTempFiles(t, fx.Root)
}

func TestPackDeduplicatesMembers(t *testing.T) {
	fx := bundletest.New(t)
	fx.AddOtherFile(t, "doc-a", fx.Path("share/doc/a.txt"))
	packPath := fx.Pack(t)

	count := 0
	for _, name := range members(t, packPath) {
		if name == bundle.MemberName(fx.Path("share/doc/a.txt")) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestPackDeterministicOrder(t *testing.T) {
	fx := bundletest.New(t)
	first := fx.Pack(t)
	second := filepath.Join(fx.Root, "again.rpz")
	_, err := bundle.NewPacker(log.Discard()).Pack(context.Background(), second, fx.TraceDir)
	require.NoError(t, err)

	assert.Equal(t, members(t, first), members(t, second))
}

func TestPackWithTrace(t *testing.T) {
	fx := bundletest.New(t, bundletest.WithTraceDB([]byte("not really sqlite")))
	packPath := fx.Pack(t)

	names := members(t, packPath)
	require.GreaterOrEqual(t, len(names), 3)
	assert.Equal(t, bundle.TraceMember, names[2])

	manifest, err := bundle.ReadManifest(packPath)
	require.NoError(t, err)
	assert.True(t, manifest.HasTrace)
	assert.Equal(t, int64(len("not really sqlite")), manifest.TraceSize)
}

func TestPackCancelled(t *testing.T) {
	fx := bundletest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := filepath.Join(fx.Root, "cancelled.rpz")
	_, err := bundle.NewPacker(log.Discard()).Pack(ctx, target, fx.TraceDir)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, target)
}

func TestPackReportsMembers(t *testing.T) {
	fx := bundletest.New(t)
	target := filepath.Join(fx.Root, "progress.rpz")

	var done []int
	var paths []string
	total := 0
	packer := bundle.NewPacker(log.Discard())
	packer.OnMember = func(n, of int, path string) {
		done = append(done, n)
		paths = append(paths, path)
		total = of
	}
	result, err := packer.Pack(context.Background(), target, fx.TraceDir)
	require.NoError(t, err)

	assert.Equal(t, result.Members, total)
	require.Len(t, done, total)
	assert.Equal(t, 1, done[0])
	assert.Equal(t, total, done[len(done)-1])
	assert.Contains(t, paths, fx.Path("exp/data.csv"))
}

func TestReadManifestVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	packPath := filepath.Join(dir, "old.rpz")

	var buf bytes.Buffer
	w := bundle.NewWriter(&buf)
	require.NoError(t, w.WriteBytes(bundle.VersionMember, []byte("REPROZIP VERSION 2\n"), time.Now()))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(packPath, buf.Bytes(), 0o644))

	_, err := bundle.ReadManifest(packPath)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCompatVersion, errors.CodeOf(err))
	assert.Equal(t, errors.KindCompatibility, errors.KindOf(err))
	assert.Equal(t, errors.DocsUnpacking, docsURL(t, err))
}

func TestReadManifestNotAPack(t *testing.T) {
	packPath := filepath.Join(t.TempDir(), "junk.rpz")
	require.NoError(t, os.WriteFile(packPath, []byte("hello"), 0o644))

	_, err := bundle.ReadManifest(packPath)
	require.Error(t, err)
	assert.Equal(t, errors.KindArchiveRead, errors.KindOf(err))
	assert.Equal(t, errors.DocsUnpacking, docsURL(t, err))
}

func docsURL(t *testing.T, err error) string {
	t.Helper()
	boxErr, ok := errors.As(err)
	require.True(t, ok, "expected a coded error, got %v", err)
	return boxErr.DocsURL
}

func TestReadManifestPayload(t *testing.T) {
	fx := bundletest.New(t)
	packPath := fx.Pack(t)

	manifest, err := bundle.ReadManifest(packPath)
	require.NoError(t, err)
	assert.Equal(t, bundle.VersionMarker, manifest.Version)
	require.Len(t, manifest.Config.Runs, 2)
	require.Len(t, manifest.Payload, 7)
	assert.Equal(t, fx.Path("lib/libc.so"), manifest.Payload[0].Path)
	assert.Equal(t, fx.Path("share/doc"), manifest.Payload[4].Path)
}

func TestDigestStable(t *testing.T) {
	fx := bundletest.New(t)
	packPath := fx.Pack(t)

	a, err := bundle.Digest(packPath)
	require.NoError(t, err)
	b, err := bundle.Digest(packPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "blake3:"))
	assert.Len(t, a, len("blake3:")+64)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temporary file %s", e.Name())
	}
}
