package bundle

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/google/go-containerregistry/pkg/v1/types"

	"github.com/felixgeelhaar/reprobox/internal/errors"
)

const (
	// OCI media types for packs
	PackLayerMediaType = "application/vnd.reprobox.pack.layer.v1.tar+gzip"
	PackArtifactType   = "application/vnd.reprobox.pack.v1"
	artifactTypeKey    = "org.opencontainers.image.artifactType"
	labelPackDigest    = "dev.reprobox.pack.digest"
	labelPackRuns      = "dev.reprobox.pack.runs"
	labelPackArch      = "dev.reprobox.pack.architecture"
	defaultUserAgent   = "reprobox/1.0"
)

// RegistryOptions configures registry operations.
type RegistryOptions struct {
	// Insecure talks plain HTTP to the registry.
	Insecure bool

	// Keychain provides credentials. Defaults to the Docker config keychain.
	Keychain authn.Keychain

	UserAgent string
}

// RemotePack describes a pack stored in a registry.
type RemotePack struct {
	Reference string
	Digest    string
	Labels    map[string]string
}

func (o RegistryOptions) parse(ref string) (name.Reference, error) {
	var nameOpts []name.Option
	if o.Insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, nameOpts...)
	if err != nil {
		return nil, ClassifyRegistryError(err, ref, "parse")
	}
	return parsed, nil
}

func (o RegistryOptions) remoteOptions(ctx context.Context) []remote.Option {
	keychain := o.Keychain
	if keychain == nil {
		keychain = authn.DefaultKeychain
	}
	userAgent := o.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(keychain),
		remote.WithUserAgent(userAgent),
	}
}

// Push uploads the pack at packPath as a single-layer OCI artifact.
func Push(ctx context.Context, packPath, ref string, opts RegistryOptions) (*RemotePack, error) {
	parsed, err := opts.parse(ref)
	if err != nil {
		return nil, err
	}

	manifest, err := ReadManifest(packPath)
	if err != nil {
		return nil, err
	}
	digest, err := Digest(packPath)
	if err != nil {
		return nil, readError(packPath, err)
	}

	layer, err := tarball.LayerFromFile(packPath, tarball.WithMediaType(PackLayerMediaType))
	if err != nil {
		return nil, fmt.Errorf("failed to create layer from pack: %w", err)
	}
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to append layer: %w", err)
	}

	current, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	run := manifest.Config.Runs[0]
	labels := map[string]string{
		"org.opencontainers.image.title": filepath.Base(packPath),
		labelPackDigest:                  digest,
		labelPackRuns:                    strconv.Itoa(len(manifest.Config.Runs)),
		labelPackArch:                    run.Architecture,
	}
	img, err = mutate.ConfigFile(img, &v1.ConfigFile{
		Architecture: run.Architecture,
		OS:           "linux",
		Config:       v1.Config{Labels: labels},
		RootFS:       current.RootFS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set config: %w", err)
	}
	img = mutate.Annotations(img, map[string]string{artifactTypeKey: PackArtifactType}).(v1.Image)

	if err := remote.Write(parsed, img, opts.remoteOptions(ctx)...); err != nil {
		return nil, ClassifyRegistryError(err, ref, "push")
	}

	imgDigest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	return &RemotePack{Reference: parsed.String(), Digest: imgDigest.String(), Labels: labels}, nil
}

// Pull downloads a pack artifact to outputPath. outputPath must not exist.
func Pull(ctx context.Context, ref, outputPath string, opts RegistryOptions) (*RemotePack, error) {
	parsed, err := opts.parse(ref)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(outputPath); err == nil {
		return nil, errors.NewArchiveExistsError(outputPath)
	}

	img, err := remote.Image(parsed, opts.remoteOptions(ctx)...)
	if err != nil {
		return nil, ClassifyRegistryError(err, ref, "pull")
	}

	manifest, err := img.Manifest()
	if err != nil {
		return nil, ClassifyRegistryError(err, ref, "pull")
	}
	if t, ok := manifest.Annotations[artifactTypeKey]; ok && t != PackArtifactType {
		return nil, notAPackError(ref, fmt.Sprintf("artifact type %q", t))
	}
	if len(manifest.Layers) != 1 {
		return nil, notAPackError(ref, fmt.Sprintf("%d layers", len(manifest.Layers)))
	}
	if manifest.Layers[0].MediaType != types.MediaType(PackLayerMediaType) {
		return nil, notAPackError(ref, fmt.Sprintf("layer media type %s", manifest.Layers[0].MediaType))
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("failed to get layers: %w", err)
	}
	rc, err := layers[0].Compressed()
	if err != nil {
		return nil, fmt.Errorf("failed to get layer contents: %w", err)
	}
	defer rc.Close()

	if err := writeExclusive(outputPath, rc); err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	imgDigest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}

	if want := cfg.Config.Labels[labelPackDigest]; want != "" {
		got, err := Digest(outputPath)
		if err != nil {
			return nil, err
		}
		if got != want {
			_ = os.Remove(outputPath)
			return nil, errors.Newf(errors.ErrCodeRegistryUnknown, "pulled pack digest %s does not match label %s", got, want)
		}
	}

	return &RemotePack{Reference: parsed.String(), Digest: imgDigest.String(), Labels: cfg.Config.Labels}, nil
}

// writeExclusive copies r into a new file at path, removing it on failure.
func writeExclusive(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if stderrors.Is(err, fs.ErrExist) {
			return errors.NewArchiveExistsError(path)
		}
		return writeError("create "+path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return writeError("write "+path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return writeError("close "+path, err)
	}
	return nil
}

func notAPackError(ref, detail string) error {
	return errors.Newf(errors.ErrCodeRegistryNotFound, "%s is not a reprobox pack (%s)", ref, detail).
		WithSuggestion("Push packs with 'reprobox push <pack> <reference>'")
}
