// Package archive packages and unpackages a set of instance directories
// into a single transport archive (spec.md §4.6 Archive Codec). Per the
// explicit re-architecture in spec.md §9, the format is tar only
// (uncompressed); the source's zip-based zipdirs is not carried forward.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Pack writes every file under each of dirs into archivePath as a tar
// archive. Entries are named `<series-dir-basename>/<relative-path>` so that
// Unpack restores the same top-level series-directory layout the Coordinator
// matched against (spec.md §4.6 Phase B).
//
// The archive is written atomically: Pack never leaves a partially-written
// file visible at archivePath, so a reader of that path (Phase C, when it
// posts the Task) never observes a torn write.
func Pack(archivePath string, dirs []string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("archive: create parent dir: %w", err)
	}

	pf, err := renameio.NewPendingFile(archivePath)
	if err != nil {
		return fmt.Errorf("archive: create pending file: %w", err)
	}
	defer pf.Cleanup() //nolint:errcheck // no-op once CloseAtomicallyReplace succeeds

	tw := tar.NewWriter(pf)

	for _, dir := range dirs {
		base := filepath.Base(dir)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return fmt.Errorf("archive: relativize %s: %w", path, err)
			}
			return addFile(tw, path, filepath.Join(base, rel))
		})
		if err != nil {
			return fmt.Errorf("archive: pack %s: %w", dir, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive: close tar writer: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("archive: finalize: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, srcPath, entryName string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("build header for %s: %w", srcPath, err)
	}
	hdr.Name = filepath.ToSlash(entryName)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", srcPath, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %s into archive: %w", srcPath, err)
	}
	return nil
}

// Unpack extracts archivePath into destDir, restoring the relative paths
// Pack wrote. It rejects entries that would escape destDir (path traversal
// via ".." segments or absolute paths) since archivePath is produced by this
// same module but also travels over HTTPS to and from an external inference
// server (spec.md §4.4) and so is not a fully trusted input on the way back.
func Unpack(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", archivePath, err)
	}
	defer f.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("archive: create dest dir: %w", err)
	}

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: read header: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("archive: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("archive: mkdir parent of %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("archive: create %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // size bounded by the same pipeline that produced it
				out.Close()
				return fmt.Errorf("archive: write %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("archive: close %s: %w", target, err)
			}
		default:
			// Skip symlinks, devices, etc. — never produced by Pack.
			continue
		}
	}
}

func safeJoin(base, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive: refusing absolute entry %q", name)
	}
	target := filepath.Join(base, name)
	cleanBase := filepath.Clean(base) + string(os.PathSeparator)
	if target != filepath.Clean(base) && !filepathHasPrefix(target, cleanBase) {
		return "", fmt.Errorf("archive: entry %q escapes destination directory", name)
	}
	return target, nil
}

func filepathHasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
