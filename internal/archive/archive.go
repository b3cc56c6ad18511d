package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Ext is the suffix of produced archives.
const Ext = ".zip"

// CompressDir zips src (a directory tree or a single file) into dst.
// Entries are stored relative to the parent of src so the bundle name is
// preserved inside the archive. The trace contents are treated as opaque.
// On failure the partially written dst is removed.
func CompressDir(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("archive source: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("archive target: %w", err)
	}
	zw := zip.NewWriter(out)
	defer func() {
		cerr := zw.Close()
		if cerr == nil {
			cerr = out.Close()
		} else {
			_ = out.Close()
		}
		if err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	base := filepath.Dir(src)
	if !info.IsDir() {
		return addFile(zw, src, filepath.Base(src))
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(base, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, derr := zw.Create(rel + "/")
			return derr
		}
		if !d.Type().IsRegular() {
			// symlinks and devices do not appear in trace bundles; skip
			return nil
		}
		return addFile(zw, path, rel)
	})
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	return nil
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
