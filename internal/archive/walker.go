package archive

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var threadFileName = regexp.MustCompile(`^t(\d+)\.xml$`)

// activeDirMarker marks directories holding threads that are still live.
const activeDirMarker = "messages"

// ThreadFile is one thread archive found by the walker.
type ThreadFile struct {
	// Path is the file's path on disk, below the walker's base path.
	Path string
	// Rel is the slash-separated path relative to the walk root.
	Rel string
	// Dir is the on-disk directory containing the file.
	Dir string
	// TID is the thread number taken from the file name.
	TID string
}

// Archived reports whether the thread lives outside a "messages" directory.
func (f ThreadFile) Archived() bool {
	return !strings.Contains(f.Dir, activeDirMarker)
}

// Walker finds thread files below a root directory.
type Walker struct {
	fsys   fs.FS
	base   string
	logger *zap.Logger
}

// NewWalker walks fsys, reporting paths joined onto base. base is usually
// the absolute directory fsys was opened from (os.DirFS(base)).
func NewWalker(fsys fs.FS, base string, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		fsys:   fsys,
		base:   base,
		logger: logger,
	}
}

// NewDirWalker walks the directory dir on the local filesystem.
func NewDirWalker(dir string, logger *zap.Logger) (*Walker, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &WalkError{Path: dir, Err: err}
	}
	return NewWalker(os.DirFS(abs), abs, logger), nil
}

// FS returns the filesystem the walker reads from.
func (w *Walker) FS() fs.FS {
	return w.fsys
}

// Walk calls fn for every thread file, depth first in directory order.
// Hidden entries are skipped. Unreadable directories below the root are
// logged and skipped; an unreadable root is returned as a *WalkError.
// Walk stops when fn returns an error or ctx is done.
func (w *Walker) Walk(ctx context.Context, fn func(ThreadFile) error) error {
	return w.WalkWithErrors(ctx, fn, nil)
}

// WalkWithErrors is Walk with a hook that is told about every skipped entry.
func (w *Walker) WalkWithErrors(ctx context.Context, fn func(ThreadFile) error, onSkip func(*WalkError)) error {
	return fs.WalkDir(w.fsys, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if walkErr != nil {
			if rel == "." {
				return &WalkError{Path: w.base, Err: walkErr}
			}
			werr := &WalkError{Path: w.osPath(rel), Err: walkErr}
			w.logger.Warn("Skipping unreadable entry",
				zap.String("path", werr.Path),
				zap.Error(walkErr))
			if onSkip != nil {
				onSkip(werr)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if rel == "." {
			w.logger.Debug("Handling directory", zap.String("path", w.base))
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			w.logger.Debug("Handling directory", zap.String("path", w.osPath(rel)))
			return nil
		}

		m := threadFileName.FindStringSubmatch(name)
		if m == nil {
			return nil
		}

		return fn(ThreadFile{
			Path: w.osPath(rel),
			Rel:  rel,
			Dir:  w.osPath(path.Dir(rel)),
			TID:  m[1],
		})
	})
}

func (w *Walker) osPath(rel string) string {
	if rel == "." {
		return w.base
	}
	return filepath.Join(w.base, filepath.FromSlash(rel))
}
