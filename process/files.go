package process

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ProcessedDir is the subdirectory finished images are moved into.
const ProcessedDir = "processed"

// IsImage reports whether name has an extension Tesseract input can be
// decoded from.
func IsImage(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.Contains(base, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// ListImages returns the image files directly under dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "process: read dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// MoveToProcessed moves path into dir/processed, overwriting a previous file
// of the same name. It renames when possible and copies otherwise.
func MoveToProcessed(dir, path string) (string, error) {
	target := filepath.Join(dir, ProcessedDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", eris.Wrapf(err, "process: mkdir %s", target)
	}
	dst := filepath.Join(target, filepath.Base(path))
	if err := os.Rename(path, dst); err == nil {
		return dst, nil
	}
	if err := copyRemove(path, dst); err != nil {
		return "", eris.Wrapf(err, "process: move %s", path)
	}
	return dst, nil
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
