// Copyright © 2018 One Concern

// Package archive extracts release archives onto the work file system.
//
// Supported formats are tar (optionally compressed with gzip or bzip2) and zip.
// Files with a recognized model extension are reported as models, identified by
// their base name without extension.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	units "github.com/docker/go-units"
	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/oneconcern/modelcrawler/pkg/release"
	"github.com/oneconcern/modelcrawler/pkg/release/status"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var _ release.Unpacker = &Unpacker{}

type format uint8

const (
	formatUnknown format = iota
	formatTar
	formatTarGzip
	formatTarBzip2
	formatZip
)

func detectFormat(name string) format {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".tar.gz"), strings.HasSuffix(n, ".tgz"):
		return formatTarGzip
	case strings.HasSuffix(n, ".tar.bz2"), strings.HasSuffix(n, ".tbz2"), strings.HasSuffix(n, ".tbz"):
		return formatTarBzip2
	case strings.HasSuffix(n, ".tar"):
		return formatTar
	case strings.HasSuffix(n, ".zip"):
		return formatZip
	default:
		return formatUnknown
	}
}

// Unpacker extracts archives on an afero file system
type Unpacker struct {
	fs           afero.Fs
	maxFileSize  int64
	maxTotalSize int64
	extensions   map[string]struct{}
	l            *zap.Logger
}

// New unpacker working on a file system
func New(fs afero.Fs, opts ...Option) *Unpacker {
	u := &Unpacker{
		fs:           fs,
		maxFileSize:  DefaultMaxFileSize,
		maxTotalSize: DefaultMaxTotalSize,
		l:            zap.NewNop(),
	}
	Extensions(DefaultExtensions...)(u)
	for _, apply := range opts {
		apply(u)
	}
	return u
}

type extraction struct {
	*Unpacker
	ctx    context.Context
	dest   string
	total  int64
	models model.ModelPathMap
}

// Unpack extracts an archive into dest and maps the models it contains.
//
// Any failure removes the destination directory entirely.
func (u *Unpacker) Unpack(ctx context.Context, archivePath, dest string) (model.ModelPathMap, error) {
	x := &extraction{
		Unpacker: u,
		ctx:      ctx,
		dest:     path.Clean(dest),
		models:   make(model.ModelPathMap),
	}

	if err := u.fs.RemoveAll(x.dest); err != nil {
		return nil, status.ErrExtraction.Wrap(err)
	}
	if err := x.run(archivePath); err != nil {
		if rerr := u.fs.RemoveAll(x.dest); rerr != nil {
			u.l.Warn("cannot remove partial extraction", zap.String("dest", x.dest), zap.Error(rerr))
		}
		return nil, status.ErrExtraction.WrapWithLog(u.l, err, zap.String("archive", archivePath))
	}

	u.l.Info("unpacked release archive",
		zap.String("archive", archivePath),
		zap.String("dest", x.dest),
		zap.Int("models", len(x.models)),
		zap.String("size", units.HumanSize(float64(x.total))),
	)
	return x.models, nil
}

func (x *extraction) run(archivePath string) error {
	f, err := x.fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	switch detectFormat(archivePath) {
	case formatTar:
		return x.untar(f)
	case formatTarGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		return x.untar(gz)
	case formatTarBzip2:
		return x.untar(bzip2.NewReader(f))
	case formatZip:
		fi, err := f.Stat()
		if err != nil {
			return err
		}
		return x.unzip(f, fi.Size())
	default:
		return fmt.Errorf("unsupported archive format: %s", path.Base(archivePath))
	}
}

func (x *extraction) untar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := x.ctx.Err(); err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.mkdir(hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.extract(hdr.Name, hdr.Size, tr); err != nil {
				return err
			}
		default:
			// links and special files are not model content
			x.l.Debug("skipping archive entry", zap.String("name", hdr.Name))
		}
	}
}

func (x *extraction) unzip(r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return err
	}
	for _, zf := range zr.File {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := x.mkdir(zf.Name); err != nil {
				return err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			x.l.Debug("skipping archive entry", zap.String("name", zf.Name))
			continue
		}
		if err := x.extractZipEntry(zf); err != nil {
			return err
		}
	}
	return nil
}

func (x *extraction) extractZipEntry(zf *zip.File) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return x.extract(zf.Name, int64(zf.UncompressedSize64), rc)
}

func (x *extraction) mkdir(entry string) error {
	if path.Clean(strings.ReplaceAll(entry, "\\", "/")) == "." {
		return nil
	}
	name, err := sanitize(entry)
	if err != nil {
		return err
	}
	return x.fs.MkdirAll(path.Join(x.dest, name), 0700)
}

func (x *extraction) extract(entry string, declared int64, r io.Reader) error {
	name, err := sanitize(entry)
	if err != nil {
		return err
	}
	if declared > x.maxFileSize {
		return fmt.Errorf("entry %q exceeds the maximum file size of %s", entry, units.BytesSize(float64(x.maxFileSize)))
	}

	target := path.Join(x.dest, name)
	if err := x.fs.MkdirAll(path.Dir(target), 0700); err != nil {
		return err
	}
	w, err := x.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	// read one byte past the limit to detect entries lying about their size
	n, err := io.Copy(w, io.LimitReader(r, x.maxFileSize+1))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extracting %q: %w", entry, err)
	}
	if n > x.maxFileSize {
		return fmt.Errorf("entry %q exceeds the maximum file size of %s", entry, units.BytesSize(float64(x.maxFileSize)))
	}
	x.total += n
	if x.total > x.maxTotalSize {
		return fmt.Errorf("archive exceeds the maximum extracted size of %s", units.BytesSize(float64(x.maxTotalSize)))
	}

	return x.register(name)
}

func (x *extraction) register(name string) error {
	base := path.Base(name)
	ext := path.Ext(base)
	if _, ok := x.extensions[strings.ToLower(ext)]; !ok {
		return nil
	}
	modelID := strings.TrimSuffix(base, ext)
	if err := model.ValidateID("model", modelID); err != nil {
		x.l.Warn("skipping model file with an invalid name", zap.String("path", name), zap.Error(err))
		return nil
	}
	if previous, ok := x.models[modelID]; ok {
		return fmt.Errorf("model %q found twice in archive: %q and %q", modelID, previous, name)
	}
	x.models[modelID] = name
	return nil
}

// sanitize an entry name into a relative, slash separated path within the destination
func sanitize(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(n, "/") {
		return "", fmt.Errorf("entry %q has an absolute path", name)
	}
	clean := path.Clean(n)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("entry %q escapes the destination directory", name)
	}
	return clean, nil
}
