package bundle

import (
	"archive/tar"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/reprobox/internal/log"
)

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// RestoreOwner applies the recorded uid/gid to every extracted object.
	RestoreOwner bool

	// Include limits extraction to the members it accepts. Nil extracts
	// the whole payload.
	Include func(member string) bool

	// OnMember is called after each payload member is extracted or skipped.
	OnMember func(member string)

	Logger *log.Logger
}

// ExtractStats counts what Extract created.
type ExtractStats struct {
	Files    int
	Dirs     int
	Links    int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}

type pendingDir struct {
	path    string
	mode    os.FileMode
	modTime time.Time
}

// Extract unpacks the payload members of the pack at packPath under root,
// treating root as "/". Metadata members are never extracted. Symbolic
// links met while resolving a member's parent directories are followed
// inside root, so no write can land outside it. Permission bits, including
// setuid/setgid/sticky, are kept.
func Extract(packPath, root string, opts ExtractOptions) (*ExtractStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	started := time.Now()
	stats := &ExtractStats{}
	var dirs []pendingDir

	err := Walk(packPath, func(header *tar.Header, r io.Reader) error {
		member, err := cleanMember(header.Name)
		if err != nil {
			return readError(packPath, err)
		}
		if member == "" || isMetadata(member) {
			return nil
		}
		if opts.Include != nil && !opts.Include(member) {
			return nil
		}

		parent, err := resolveInRoot(root, path.Dir(member), true)
		if err != nil {
			return fmt.Errorf("extract %s: %w", member, err)
		}
		target := filepath.Join(parent, path.Base(member))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := extractDir(target); err != nil {
				return fmt.Errorf("extract %s: %w", member, err)
			}
			dirs = append(dirs, pendingDir{path: target, mode: fileMode(header.Mode), modTime: header.ModTime})
			stats.Dirs++
		case tar.TypeReg:
			n, err := extractFile(r, header, target)
			if err != nil {
				return fmt.Errorf("extract %s: %w", member, err)
			}
			stats.Files++
			stats.Bytes += n
		case tar.TypeSymlink:
			if err := replaceWith(target, func() error { return os.Symlink(header.Linkname, target) }); err != nil {
				return fmt.Errorf("extract %s: %w", member, err)
			}
			stats.Links++
		case tar.TypeLink:
			linked, err := cleanMember(header.Linkname)
			if err != nil {
				return readError(packPath, err)
			}
			linkParent, err := resolveInRoot(root, path.Dir(linked), false)
			if err != nil {
				return fmt.Errorf("extract %s: %w", member, err)
			}
			source := filepath.Join(linkParent, path.Base(linked))
			if err := replaceWith(target, func() error { return os.Link(source, target) }); err != nil {
				return fmt.Errorf("extract %s: %w", member, err)
			}
			stats.Links++
		default:
			logger.Warn("skipping unsupported member type", "member", member, "type", string(header.Typeflag))
			stats.Skipped++
			if opts.OnMember != nil {
				opts.OnMember(member)
			}
			return nil
		}

		if opts.RestoreOwner {
			if err := os.Lchown(target, header.Uid, header.Gid); err != nil {
				return fmt.Errorf("restore owner of %s: %w", member, err)
			}
		}
		if header.Typeflag == tar.TypeReg {
			if err := os.Chmod(target, fileMode(header.Mode)); err != nil {
				return fmt.Errorf("set mode of %s: %w", member, err)
			}
			if err := os.Chtimes(target, header.ModTime, header.ModTime); err != nil {
				return fmt.Errorf("set times of %s: %w", member, err)
			}
		}
		logger.Debug("extracted member", "member", member)
		if opts.OnMember != nil {
			opts.OnMember(member)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Directory modes go last so read-only directories can still be filled.
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, d.mode); err != nil {
			return nil, fmt.Errorf("set mode of %s: %w", d.path, err)
		}
		if err := os.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			return nil, fmt.Errorf("set times of %s: %w", d.path, err)
		}
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

// InRoot maps p, an absolute path on the original host, to its location
// under root. Parent directories are resolved the way Extract resolves
// them; missing ones are created when create is set.
func InRoot(root, p string, create bool) (string, error) {
	member, err := cleanMember(p)
	if err != nil {
		return "", err
	}
	if member == "" {
		return filepath.Clean(root), nil
	}
	parent, err := resolveInRoot(root, path.Dir(member), create)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, path.Base(member)), nil
}

func extractDir(target string) error {
	info, err := os.Lstat(target)
	if err == nil && info.IsDir() {
		return nil
	}
	return replaceWith(target, func() error { return os.Mkdir(target, 0o700) })
}

func extractFile(r io.Reader, header *tar.Header, target string) (int64, error) {
	var written int64
	err := replaceWith(target, func() error {
		out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		written, err = io.Copy(out, io.LimitReader(r, header.Size))
		closeErr := out.Close()
		if err != nil {
			return err
		}
		return closeErr
	})
	if err != nil {
		return 0, err
	}
	if written != header.Size {
		return 0, fmt.Errorf("size mismatch: expected %d, got %d", header.Size, written)
	}
	return written, nil
}

// replaceWith removes whatever non-directory object sits at target, then
// runs create.
func replaceWith(target string, create func() error) error {
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s exists and is a directory", target)
		}
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	return create()
}

// cleanMember validates a member name and returns it relative, without a
// leading slash or trailing separator.
func cleanMember(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("null byte in member name %q", name)
	}
	trimmed := strings.Trim(strings.TrimPrefix(name, "./"), "/")
	if trimmed == "" {
		return "", nil
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", fmt.Errorf("parent directory reference in member name %q", name)
		}
	}
	return path.Clean(trimmed), nil
}

// resolveInRoot walks rel below root component by component, following
// symbolic links the way the kernel would after chroot(root): absolute
// link targets restart at root and ".." never climbs above it. Missing
// directories are created when create is set.
func resolveInRoot(root, rel string, create bool) (string, error) {
	root = filepath.Clean(root)
	pending := splitPath(rel)
	current := root
	hops := 0

	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			if current != root {
				current = filepath.Dir(current)
			}
			continue
		}

		next := filepath.Join(current, comp)
		info, err := os.Lstat(next)
		if stderrors.Is(err, fs.ErrNotExist) && create {
			if err := os.Mkdir(next, 0o755); err != nil && !stderrors.Is(err, fs.ErrExist) {
				return "", err
			}
			current = next
			continue
		}
		if err != nil {
			return "", err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			hops++
			if hops > MaxSymlinkHops {
				return "", fmt.Errorf("too many levels of symbolic links resolving %s", rel)
			}
			target, err := os.Readlink(next)
			if err != nil {
				return "", err
			}
			if filepath.IsAbs(target) {
				current = root
			}
			pending = append(splitPath(target), pending...)
			continue
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", next)
		}
		current = next
	}
	return current, nil
}

func splitPath(p string) []string {
	return strings.Split(filepath.ToSlash(p), "/")
}

// fileMode converts tar mode bits, keeping setuid, setgid and sticky.
func fileMode(mode int64) os.FileMode {
	m := os.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		m |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= os.ModeSticky
	}
	return m
}
