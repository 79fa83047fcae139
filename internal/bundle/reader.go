package bundle

import (
	"archive/tar"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/log"
)

// errStop ends a Walk early without reporting an error.
var errStop = stderrors.New("stop walking")

// Walk calls fn for every member of the pack at path, in archive order.
// fn may read the member's content from r. Returning errStop from fn ends
// the walk cleanly.
func Walk(path string, fn func(header *tar.Header, r io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return readError(path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.L().Warn("failed to close pack", "path", path, "error", closeErr)
		}
	}()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return readError(path, err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return readError(path, err)
		}

		if err := fn(header, tarReader); err != nil {
			if stderrors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

// ReadManifest reads the metadata members of a pack and lists its payload.
// The version marker must match VersionMarker exactly.
func ReadManifest(path string) (*Manifest, error) {
	m := &Manifest{}
	var sawVersion, sawConfig bool

	err := Walk(path, func(header *tar.Header, r io.Reader) error {
		name := strings.TrimPrefix(header.Name, "./")
		switch name {
		case VersionMember:
			data, err := io.ReadAll(r)
			if err != nil {
				return readError(path, err)
			}
			m.Version = string(data)
			sawVersion = true
		case ConfigMember:
			data, err := io.ReadAll(r)
			if err != nil {
				return readError(path, err)
			}
			m.ConfigData = data
			sawConfig = true
		case TraceMember:
			m.HasTrace = true
			m.TraceSize = header.Size
		default:
			if isMetadata(name) {
				return nil
			}
			member := strings.TrimSuffix(name, "/")
			m.Payload = append(m.Payload, PayloadEntry{Path: HostPath(member), Member: member})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !sawVersion {
		return nil, readError(path, fmt.Errorf("missing %s", VersionMember))
	}
	if m.Version != VersionMarker {
		return nil, errors.Newf(errors.ErrCodeCompatVersion,
			"unsupported pack version %q (this build reads %q)",
			strings.TrimSpace(m.Version), strings.TrimSpace(VersionMarker)).
			WithSuggestion("Use the reprobox release that created this pack").
			WithDocs(errors.DocsUnpacking)
	}
	if !sawConfig {
		return nil, readError(path, fmt.Errorf("missing %s", ConfigMember))
	}

	cfg, err := config.Parse(m.ConfigData)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}
	m.Config = cfg
	return m, nil
}

// ReadMember returns the content of one member.
func ReadMember(path, member string) ([]byte, error) {
	var data []byte
	found := false

	err := Walk(path, func(header *tar.Header, r io.Reader) error {
		if strings.TrimPrefix(header.Name, "./") != member {
			return nil
		}
		var err error
		if data, err = io.ReadAll(r); err != nil {
			return readError(path, err)
		}
		found = true
		return errStop
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, readError(path, fmt.Errorf("member %s not found", member))
	}
	return data, nil
}
