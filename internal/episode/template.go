package episode

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Directories never copied from a template into a fresh workspace.
var skipDirs = map[string]bool{
	"node_modules": true,
	".next":        true,
	".git":         true,
}

// CopyTemplate populates a fresh workspace from a project template,
// skipping dependency trees and build output. The destination must not
// already contain files.
func CopyTemplate(templateDir, workspaceDir string) error {
	info, err := os.Stat(templateDir)
	if err != nil {
		return fmt.Errorf("template %s: %w", templateDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("template %s is not a directory", templateDir)
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	return filepath.WalkDir(templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(templateDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dst := filepath.Join(workspaceDir, rel)
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(dst, 0o755)
		}
		return copyFile(path, dst)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}
