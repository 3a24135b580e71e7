// Package archive exports the successful records of a batch result as
// a zstd-compressed tar stream.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"repofetch/internal/errors"
	"repofetch/internal/fetch"
)

// Write streams every successful record into w as a tar entry, zstd
// compressed, and returns how many entries were written. Error records
// are skipped: an archive holds content, not diagnostics. Entry names
// are the record paths, so two selections of the same file produce two
// entries with the same name.
func Write(w io.Writer, result *fetch.Result) (int, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return 0, errors.Wrap(errors.Internal, "creating zstd encoder", err)
	}

	tw := tar.NewWriter(enc)
	now := time.Now()
	written := 0
	for _, f := range result.Files {
		if f.Error != nil {
			continue
		}
		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    0o644,
			Size:    int64(len(f.Content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return written, errors.Wrap(errors.Internal, "writing tar header", err).WithPath(f.Path)
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			return written, errors.Wrap(errors.Internal, "writing tar entry", err).WithPath(f.Path)
		}
		written++
	}

	if err := tw.Close(); err != nil {
		return written, errors.Wrap(errors.Internal, "closing tar stream", err)
	}
	if err := enc.Close(); err != nil {
		return written, errors.Wrap(errors.Internal, "closing zstd stream", err)
	}
	return written, nil
}

// WriteFile writes the archive to path, creating or truncating it.
func WriteFile(path string, result *fetch.Result) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(errors.Internal, "creating archive file", err).WithPath(path)
	}
	written, err := Write(f, result)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(errors.Internal, "closing archive file", cerr).WithPath(path)
	}
	return written, err
}
