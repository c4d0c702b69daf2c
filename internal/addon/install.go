package addon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Install copies the package described by m into extensionsDir and returns
// the installed location.
//
// Unpacked packages land in extensionsDir/<id>/, packed ones in
// extensionsDir/<id>.xpi. A package directory reached through a symbolic
// link is followed; symbolic links inside it are skipped. The destination
// is created if needed.
func Install(fs afero.Fs, m *Manifest, extensionsDir string) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	if err := fs.MkdirAll(extensionsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", extensionsDir, err)
	}

	if m.Packed {
		dst := filepath.Join(extensionsDir, m.ID+PackedExt)
		if err := copyFile(fs, m.Path, dst, 0o644); err != nil {
			return "", err
		}
		return dst, nil
	}

	src, err := resolveDir(fs, m.Path)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(extensionsDir, m.ID)
	if err := copyDir(fs, src, dst); err != nil {
		return "", err
	}
	if err := checkInstalled(fs, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// resolveDir follows symbolic links in dir on the OS filesystem, since
// afero.Walk does not descend into a root that is a link.
func resolveDir(fs afero.Fs, dir string) (string, error) {
	if _, ok := fs.(*afero.OsFs); !ok {
		return dir, nil
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve addon directory %s: %w", dir, err)
	}
	return resolved, nil
}

// checkInstalled reports an error unless dir holds an install manifest.
func checkInstalled(fs afero.Fs, dir string) error {
	for _, name := range []string{ManifestFile, InstallRDFFile} {
		ok, err := afero.Exists(fs, filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to check installed addon at %s: %w", dir, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("installed addon at %s: %w", dir, ErrNoManifest)
}

func copyDir(fs afero.Fs, srcDir, dstDir string) error {
	return afero.Walk(fs, srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("error walking addon directory at %s: %w", path, walkErr)
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		dstPath := filepath.Join(dstDir, relPath)

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			if err := fs.MkdirAll(dstPath, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dstPath, err)
			}
			return nil
		}
		return copyFile(fs, path, dstPath, info.Mode().Perm())
	})
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) (err error) {
	srcFile, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}
	defer func() {
		if cerr := dstFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", dst, cerr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
