package sandbox

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// Programs every replayed command goes through inside the root.
var requiredPrograms = []string{"/bin/sh", "/usr/bin/env"}

// SetupOptions controls Create.
type SetupOptions struct {
	// RestoreOwner applies the recorded owners to the extracted files.
	// Nil restores them only when running as root.
	RestoreOwner *bool

	// StaticShell is a statically linked shell installed as /bin/sh and
	// /usr/bin/env when the pack lacks them.
	StaticShell string

	// SkipCompatibility extracts even when the host cannot run the pack.
	SkipCompatibility bool

	// VerifyKey is an authorized_keys file; when set, the pack's detached
	// signature must verify against it before anything is extracted.
	VerifyKey string

	// Host overrides the detected host platform.
	Host *Platform

	// Progress is called after each payload member is extracted.
	Progress func(done, total int, member string)

	Logger *log.Logger
}

// SetupResult describes a created target.
type SetupResult struct {
	Target   *Target
	Digest   string
	Stats    *bundle.ExtractStats
	Inputs   int
	Warnings []string
	Duration time.Duration
}

// Create unpacks the pack at packPath into a new target at dir.
//
// The target is assembled in a sibling temporary directory and renamed
// into place once complete, so a failure leaves nothing at dir. A dir
// that already holds anything is refused.
func Create(packPath, dir string, opts SetupOptions) (*SetupResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	started := time.Now()

	if err := checkVacant(dir); err != nil {
		return nil, err
	}

	if opts.VerifyKey != "" {
		sig, err := bundle.Verify(packPath, opts.VerifyKey)
		if err != nil {
			return nil, err
		}
		logger.Info("pack signature verified", "fingerprint", sig.Fingerprint)
	}

	manifest, err := bundle.ReadManifest(packPath)
	if err != nil {
		return nil, err
	}
	cfg := manifest.Config

	if !opts.SkipCompatibility {
		host := opts.Host
		if host == nil {
			detected, err := HostPlatform()
			if err != nil {
				logger.WithError(err).Warn("cannot detect host platform, using build target")
				detected = goosPlatform()
			}
			host = &detected
		}
		if err := CheckCompatibility(cfg, *host); err != nil {
			return nil, err
		}
	}

	digest, err := bundle.Digest(packPath)
	if err != nil {
		return nil, err
	}

	restoreOwner := os.Geteuid() == 0
	if opts.RestoreOwner != nil {
		restoreOwner = *opts.RestoreOwner
	}

	parent := filepath.Dir(filepath.Clean(dir))
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".setup-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	published := false
	defer func() {
		if published {
			return
		}
		if rmErr := removeTree(staging); rmErr != nil {
			logger.Warn("failed to remove staging directory", "path", staging, "error", rmErr)
		}
	}()

	staged := &Target{Dir: staging, Config: cfg}
	if err := os.Mkdir(staged.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	logger.Info("extracting pack", "pack", packPath, "target", dir, "restore_owner", restoreOwner)
	stats, err := bundle.Extract(packPath, staged.Root(), bundle.ExtractOptions{
		RestoreOwner: restoreOwner,
		OnMember:     extractProgress(opts.Progress, len(manifest.Payload)),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(staging, config.FileName), manifest.ConfigData, 0o644); err != nil {
		return nil, fmt.Errorf("write configuration: %w", err)
	}

	inputs, err := saveInputs(staged, logger)
	if err != nil {
		return nil, err
	}

	warnings, err := ensurePrograms(staged.Root(), opts.StaticShell, logger)
	if err != nil {
		return nil, err
	}

	if err := state.Write(staging, state.New(len(cfg.Runs), digest)); err != nil {
		return nil, err
	}

	if err := os.Rename(staging, dir); err != nil {
		if stderrors.Is(err, fs.ErrExist) || isNotEmpty(err) {
			return nil, errors.NewAlreadySetUpError(dir)
		}
		return nil, fmt.Errorf("publish target: %w", err)
	}
	published = true

	result := &SetupResult{
		Target:   &Target{Dir: dir, Config: cfg},
		Digest:   digest,
		Stats:    stats,
		Inputs:   inputs,
		Warnings: warnings,
		Duration: time.Since(started),
	}
	logger.Info("target ready", "target", dir, "files", stats.Files, "dirs", stats.Dirs,
		"links", stats.Links, "bytes", stats.Bytes, "duration", result.Duration)
	return result, nil
}

// checkVacant accepts a missing path or an empty directory.
func checkVacant(dir string) error {
	if state.Exists(dir) {
		return errors.NewAlreadySetUpError(dir)
	}
	entries, err := os.ReadDir(dir)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		if _, statErr := os.Lstat(dir); statErr == nil {
			return errors.NewAlreadySetUpError(dir)
		}
		return fmt.Errorf("inspect target: %w", err)
	case len(entries) > 0:
		return errors.NewAlreadySetUpError(dir)
	}
	return nil
}

// saveInputs archives the packed bytes of every input file so upload can
// restore them later. Inputs the pack does not carry are skipped.
func saveInputs(t *Target, logger *log.Logger) (int, error) {
	out, err := os.OpenFile(t.InputsPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create inputs archive: %w", err)
	}
	defer out.Close()

	w := bundle.NewWriter(out)
	count := 0
	for _, f := range t.Config.Inputs() {
		source, err := resolveFinal(t.Root(), f.Path)
		if err != nil {
			logger.Debug("input not in pack", "name", f.Name, "path", f.Path, "error", err)
			continue
		}
		info, err := os.Lstat(source)
		if err != nil || !info.Mode().IsRegular() {
			logger.Debug("input not in pack", "name", f.Name, "path", f.Path)
			continue
		}
		if err := w.WriteFile(source, bundle.MemberName(f.Path)); err != nil {
			return 0, fmt.Errorf("save input %s: %w", f.Name, err)
		}
		count++
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finish inputs archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close inputs archive: %w", err)
	}
	return count, nil
}

// ensurePrograms installs staticShell for each missing required program,
// or returns a warning per missing program when none was given.
func ensurePrograms(root, staticShell string, logger *log.Logger) ([]string, error) {
	var warnings []string
	for _, program := range requiredPrograms {
		if presentInRoot(root, program) {
			continue
		}
		target, err := bundle.InRoot(root, program, staticShell != "")
		if staticShell == "" {
			msg := fmt.Sprintf("%s is missing from the root; replayed commands will fail to start", program)
			logger.Warn(msg, "hint", "set --static-shell or REPROBOX_STATIC_SHELL")
			warnings = append(warnings, msg)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("install %s: %w", program, err)
		}
		if err := installFile(staticShell, target, 0o755); err != nil {
			return nil, fmt.Errorf("install %s: %w", program, err)
		}
		logger.Info("installed static shell", "program", program, "source", staticShell)
	}
	return warnings, nil
}

// installFile copies source to target through a temporary file in the
// same directory, replacing whatever sat at target.
func installFile(source, target string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeReplacing(target, in, mode)
}

func writeReplacing(target string, r io.Reader, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory", target)
	}
	return os.Rename(tmpName, target)
}

// presentInRoot reports whether p resolves to an existing non-directory
// inside root.
func presentInRoot(root, p string) bool {
	resolved, err := resolveFinal(root, p)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && !info.IsDir()
}

// resolveFinal maps p into root and follows symbolic links at its last
// component the way a chrooted process would. The result is never a link.
func resolveFinal(root, p string) (string, error) {
	for hops := 0; hops <= bundle.MaxSymlinkHops; hops++ {
		resolved, err := bundle.InRoot(root, p, false)
		if err != nil {
			return "", err
		}
		info, err := os.Lstat(resolved)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return resolved, nil
		}
		link, err := os.Readlink(resolved)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(p), link)
		}
		p = link
	}
	return "", fmt.Errorf("too many levels of symbolic links resolving %s", p)
}

func extractProgress(fn func(done, total int, member string), total int) func(string) {
	if fn == nil {
		return nil
	}
	done := 0
	return func(member string) {
		done++
		fn(done, total, member)
	}
}
