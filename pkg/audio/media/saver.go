package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidName is returned by [DirSaver] for names that reduce to no file.
var ErrInvalidName = errors.New("media: invalid file name")

// DirSaver writes files into Dir. Only the base name of [File.Name] is
// used, so a file can never escape the directory.
type DirSaver struct {
	Dir string
}

var _ Saver = DirSaver{}

// Save implements [Saver].
func (s DirSaver) Save(ctx context.Context, f File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(f.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("%w %q", ErrInvalidName, f.Name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("media: create dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, name), f.Data, 0o644); err != nil {
		return fmt.Errorf("media: write file: %w", err)
	}
	return nil
}
