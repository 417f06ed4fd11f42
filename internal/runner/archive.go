package runner

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Unzip extracts archive into dir and returns the name of the root folder
// inside the archive.
func Unzip(archive, dir string) (string, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer reader.Close()

	root := ""
	for _, file := range reader.File {
		name := filepath.Clean(file.Name)
		if name == "." || strings.HasPrefix(name, "..") {
			return "", fmt.Errorf("archive %s contains an unsafe path %q", archive, file.Name)
		}
		if root == "" {
			root = strings.Split(name, string(filepath.Separator))[0]
		}

		target := filepath.Join(dir, name)
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return "", fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(file, target); err != nil {
			return "", err
		}
	}
	if root == "" {
		return "", fmt.Errorf("archive %s is empty", archive)
	}
	return root, nil
}

func extractFile(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive member %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return nil
}

// ZipDir packs srcDir into a .zip at zipPath. Entries are stored under the
// directory's base name so unpacking reproduces the original layout.
func ZipDir(srcDir, zipPath string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", zipPath, err)
	}
	defer f.Close()

	writer := zip.NewWriter(f)
	defer writer.Close()

	base := filepath.Base(srcDir)
	parent := filepath.Dir(srcDir)

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		if rel == base && info.IsDir() {
			return nil
		}
		name := filepath.ToSlash(rel)
		if info.IsDir() {
			_, err := writer.Create(name + "/")
			return err
		}

		entry, err := writer.Create(name)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
}
