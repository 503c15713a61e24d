package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/obentoo/external-updater/internal/common/logger"
	"github.com/pierrec/lz4/v4"
)

// Extract unpacks the archive at file into dest, creating dest if needed.
// Entries whose path or link target would land outside dest, including
// through links extracted earlier, abort the extraction with ErrUnsafePath.
func Extract(ctx context.Context, file string, format Format, dest string) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	logger.Debug("extracting %s (%s) into %s", file, format, dest)

	x, err := newExtractor(dest)
	if err != nil {
		return err
	}
	defer x.close()

	if format == FormatZip {
		return extractZip(ctx, file, x)
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeFn, err := decompressor(f, format)
	if err != nil {
		return err
	}
	defer closeFn()

	return extractTar(ctx, r, x)
}

// decompressor wraps r with the stream decoder of a tar format
func decompressor(r io.Reader, format Format) (io.Reader, func(), error) {
	noop := func() {}
	switch format {
	case FormatTar:
		return r, noop, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case FormatTarBz2:
		return bzip2.NewReader(r), noop, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	case FormatTarLz4:
		return lz4.NewReader(r), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func extractTar(ctx context.Context, r io.Reader, x *extractor) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = x.mkdir(hdr.Name)
		case tar.TypeReg:
			err = x.writeFile(hdr.Name, tr, hdr.FileInfo().Mode().Perm())
		case tar.TypeSymlink:
			err = x.symlink(hdr.Name, hdr.Linkname)
		case tar.TypeLink:
			err = x.link(hdr.Name, hdr.Linkname)
		default:
			// pax headers, devices and fifos carry no project content
			logger.Debug("skipping %s (type %c)", hdr.Name, hdr.Typeflag)
		}
		if err != nil {
			return err
		}
	}
}

func extractZip(ctx context.Context, file string, x *extractor) error {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			err = x.mkdir(f.Name)
		case mode&os.ModeSymlink != 0:
			var link string
			link, err = readZipLink(f)
			if err == nil {
				err = x.symlink(f.Name, link)
			}
		default:
			var rc io.ReadCloser
			rc, err = f.Open()
			if err == nil {
				err = x.writeFile(f.Name, rc, mode.Perm())
				rc.Close()
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readZipLink(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	link, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(link), nil
}

// extractor creates archive entries below dest. Files and directories go
// through an os.Root, and every entry is resolved against the links
// already on disk before anything is created.
type extractor struct {
	dest     string
	realDest string // dest with symlinks resolved
	root     *os.Root
}

func newExtractor(dest string) (*extractor, error) {
	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, err
	}
	return &extractor{dest: dest, realDest: realDest, root: root}, nil
}

func (x *extractor) close() {
	x.root.Close()
}

// resolve returns name relative to dest. It fails with ErrUnsafePath when
// the name, or the links it passes through on disk, lead outside dest.
func (x *extractor) resolve(name string) (string, error) {
	target, err := safeJoin(x.dest, name)
	if err != nil {
		return "", err
	}
	resolved, err := realPath(target)
	if err != nil {
		return "", err
	}
	if !within(x.realDest, resolved) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Rel(x.dest, target)
}

func (x *extractor) mkdir(name string) error {
	rel, err := x.resolve(name)
	if err != nil {
		return err
	}
	return x.mkdirAll(rel)
}

func (x *extractor) mkdirAll(rel string) error {
	if rel == "." {
		return nil
	}
	var dir string
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		err := x.root.Mkdir(dir, 0755)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		info, err := x.root.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory", filepath.Join(x.dest, dir))
		}
	}
	return nil
}

func (x *extractor) writeFile(name string, r io.Reader, perm os.FileMode) error {
	rel, err := x.resolve(name)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	if err := x.mkdirAll(filepath.Dir(rel)); err != nil {
		return err
	}

	out, err := x.root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// symlink creates name pointing at linkname. The target is resolved the
// way the kernel will resolve it, through the links already extracted.
func (x *extractor) symlink(name, linkname string) error {
	rel, err := x.resolve(name)
	if err != nil {
		return err
	}
	target := filepath.Join(x.dest, rel)
	errUnsafe := fmt.Errorf("%w: %s -> %s", ErrUnsafePath, name, linkname)
	if filepath.IsAbs(linkname) || !within(x.dest, filepath.Join(filepath.Dir(target), linkname)) {
		return errUnsafe
	}
	resolved, err := realPath(filepath.Dir(target) + string(filepath.Separator) + filepath.FromSlash(linkname))
	if err != nil {
		return err
	}
	if !within(x.realDest, resolved) {
		return errUnsafe
	}
	if err := x.mkdirAll(filepath.Dir(rel)); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

// link creates name as a hard link to the earlier entry source
func (x *extractor) link(name, source string) error {
	rel, err := x.resolve(name)
	if err != nil {
		return err
	}
	srcRel, err := x.resolve(source)
	if err != nil {
		return err
	}
	if err := x.mkdirAll(filepath.Dir(rel)); err != nil {
		return err
	}
	return os.Link(filepath.Join(x.dest, srcRel), filepath.Join(x.dest, rel))
}

// safeJoin joins name to dest and rejects results outside dest
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realPath resolves the symlinks of the existing part of the absolute path
// p. p is not cleaned first, so "link/.." climbs from the link's target.
// The missing tail is appended unresolved.
func realPath(p string) (string, error) {
	var rest string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		i := strings.LastIndexByte(p, filepath.Separator)
		if i <= 0 {
			return filepath.Join(string(filepath.Separator), p, rest), nil
		}
		rest = filepath.Join(p[i+1:], rest)
		p = p[:i]
	}
}

// Root returns the directory holding the archive's content: starting from
// dir it descends while a directory holds exactly one subdirectory and
// nothing else.
func Root(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrEmptyArchive
	}

	for len(entries) == 1 && entries[0].IsDir() {
		dir = filepath.Join(dir, entries[0].Name())
		entries, err = os.ReadDir(dir)
		if err != nil {
			return "", err
		}
	}
	return dir, nil
}
