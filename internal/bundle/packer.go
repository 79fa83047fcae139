package bundle

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
)

// Packer builds packs from a trace directory.
type Packer struct {
	Logger *log.Logger

	// Now stamps the metadata members. Defaults to time.Now.
	Now func() time.Time

	// OnMember is called after each payload member is written.
	OnMember func(done, total int, path string)
}

// PackResult summarizes a written pack.
type PackResult struct {
	Path     string
	Members  int
	HasTrace bool
	Size     int64
	Digest   string
}

// NewPacker returns a Packer logging to logger.
func NewPacker(logger *log.Logger) *Packer {
	return &Packer{Logger: logger, Now: time.Now}
}

// Pack writes the pack for the trace directory sourceDir to target.
//
// target is never overwritten: the archive is built in a temporary file
// next to it and published with a hard link, which fails if target
// appeared in the meantime. On any failure nothing is left at target.
func (p *Packer) Pack(ctx context.Context, target, sourceDir string) (*PackResult, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.L()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	if _, err := os.Lstat(target); err == nil {
		return nil, errors.NewArchiveExistsError(target)
	}

	configPath := filepath.Join(sourceDir, config.FileName)
	configData, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(errors.ErrCodeInputConfig, fmt.Sprintf("configuration file does not exist: %s", configPath), err).
				WithSuggestion("Use --dir to point at a different trace directory")
		}
		return nil, writeError("read configuration", err)
	}
	cfg, err := config.Parse(configData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	tracePath := filepath.Join(sourceDir, TraceFileName)
	hasTrace := false
	if info, statErr := os.Stat(tracePath); statErr == nil && info.Mode().IsRegular() {
		hasTrace = true
	}

	payload, err := PlanPayload(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("creating pack", "target", target, "members", len(payload), "trace", hasTrace)

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, writeError("create temporary pack", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmpName); rmErr != nil && !stderrors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("failed to remove temporary pack", "path", tmpName, "error", rmErr)
		}
	}()

	w := NewWriter(tmp)
	stamp := now()
	if err := w.WriteBytes(VersionMember, []byte(VersionMarker), stamp); err != nil {
		return nil, writeError("write version marker", err)
	}
	if err := w.WriteBytes(ConfigMember, configData, stamp); err != nil {
		return nil, writeError("write configuration", err)
	}
	if hasTrace {
		if err := w.WriteFile(tracePath, TraceMember); err != nil {
			return nil, writeError("write trace database", err)
		}
	}
	for i, entry := range payload {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("adding member", "path", entry.Path)
		if err := w.WriteFile(entry.Path, entry.Member); err != nil {
			return nil, writeError("write "+entry.Path, err)
		}
		if p.OnMember != nil {
			p.OnMember(i+1, len(payload), entry.Path)
		}
	}
	if err := w.Close(); err != nil {
		return nil, writeError("finish pack", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return nil, writeError("set pack permissions", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, writeError("sync pack", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, writeError("close pack", err)
	}

	if err := os.Link(tmpName, target); err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return nil, errors.NewArchiveExistsError(target)
		}
		return nil, writeError("publish pack", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, writeError("stat pack", err)
	}
	digest, err := Digest(target)
	if err != nil {
		return nil, err
	}

	logger.Info("pack created", "target", target, "size", info.Size(), "digest", digest)
	return &PackResult{
		Path:     target,
		Members:  len(payload),
		HasTrace: hasTrace,
		Size:     info.Size(),
		Digest:   digest,
	}, nil
}
