package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Writer streams members into a gzip-compressed tar archive.
type Writer struct {
	gz *gzip.Writer
	tw *tar.Writer
}

// NewWriter wraps w. Close must be called to flush the archive.
func NewWriter(w io.Writer) *Writer {
	gz := gzip.NewWriter(w)
	return &Writer{gz: gz, tw: tar.NewWriter(gz)}
}

// WriteBytes adds an in-memory regular file.
func (w *Writer) WriteBytes(member string, data []byte, modTime time.Time) error {
	return w.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     member,
		Mode:     0o644,
		ModTime:  modTime,
	}, data)
}

// WriteHeader adds a member described by header. For regular files data is
// the content and header.Size is set from it.
func (w *Writer) WriteHeader(header *tar.Header, data []byte) error {
	if header.Typeflag == tar.TypeReg {
		header.Size = int64(len(data))
	}
	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", header.Name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("failed to write data for %s: %w", header.Name, err)
	}
	return nil
}

// WriteFile adds the filesystem object at source under member. Links are
// stored as links, directories as empty directory entries; ownership and
// permission bits are kept.
func (w *Writer) WriteFile(source, member string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", source, err)
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(source); err != nil {
			return fmt.Errorf("failed to read link %s: %w", source, err)
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", source, err)
	}
	header.Name = member
	if info.IsDir() {
		header.Name += "/"
	}

	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", member, err)
	}
	if header.Typeflag != tar.TypeReg {
		return nil
	}

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer file.Close()

	written, err := io.Copy(w.tw, file)
	if err != nil {
		return fmt.Errorf("failed to write data for %s: %w", member, err)
	}
	if written != header.Size {
		return fmt.Errorf("%s changed size while packing: expected %d, got %d", source, header.Size, written)
	}
	return nil
}

// Close flushes the tar and gzip streams. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
