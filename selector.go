package diskkit

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
)

// FileSelector filters entries during a Find.
//
//	files, err := diskkit.ListWithSelector(ctx, fs, "/", diskkit.Glob("*.txt"), true)
//
//	selector := diskkit.And(
//	    diskkit.Glob("*.jpg"),
//	    diskkit.FuncSelector(func(f *diskkit.FileInfo) bool {
//	        return f.Size < 10*1024*1024
//	    }),
//	)
type FileSelector interface {
	// Match returns true if the file should be included in results.
	Match(file *FileInfo) bool

	// TraverseDescendants returns true if a directory should be descended into.
	// Only called for directories.
	TraverseDescendants(file *FileInfo) bool
}

// ListWithSelector lists files under path matching selector, descending
// into subdirectories when recursive is set. Directories themselves are
// never returned.
func ListWithSelector(ctx context.Context, fs FileReader, path string, selector FileSelector, recursive bool) ([]FileInfo, error) {
	if selector == nil {
		selector = All()
	}

	var results []FileInfo
	if err := listRecursive(ctx, fs, path, selector, recursive, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func listRecursive(ctx context.Context, fs FileReader, path string, selector FileSelector, recursive bool, results *[]FileInfo) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	files, err := fs.ListContents(ctx, path, false)
	if err != nil {
		return err
	}

	for i := range files {
		file := &files[i]

		if file.IsDir {
			if recursive && selector.TraverseDescendants(file) {
				if err := listRecursive(ctx, fs, file.Path, selector, recursive, results); err != nil {
					return err
				}
			}
			continue
		}

		if selector.Match(file) {
			*results = append(*results, *file)
		}
	}

	return nil
}

// AllSelector matches all files and traverses all directories.
type AllSelector struct{}

func (s AllSelector) Match(file *FileInfo) bool               { return true }
func (s AllSelector) TraverseDescendants(file *FileInfo) bool { return true }

// All returns a selector that matches every file.
func All() FileSelector {
	return AllSelector{}
}

type globSelector struct {
	g        glob.Glob
	fullPath bool
}

// Glob matches file names against a shell pattern: *, ?, [abc], [a-z],
// {a,b}. A pattern containing "/" is matched against the whole path instead,
// where "**" crosses directory boundaries:
//
//	Glob("*.txt")           // report.txt
//	Glob("{*.jpg,*.png}")   // photo.jpg, icon.png
//	Glob("logs/**.gz")      // logs/2024/01/app.gz
//
// An invalid pattern matches nothing.
func Glob(pattern string) FileSelector {
	fullPath := strings.Contains(pattern, "/")
	var (
		g   glob.Glob
		err error
	)
	if fullPath {
		g, err = glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
	} else {
		g, err = glob.Compile(pattern)
	}
	if err != nil {
		return FuncSelector(func(*FileInfo) bool { return false })
	}
	return &globSelector{g: g, fullPath: fullPath}
}

func (s *globSelector) Match(file *FileInfo) bool {
	if s.fullPath {
		return s.g.Match(strings.TrimPrefix(file.Path, "/"))
	}
	return s.g.Match(file.Name)
}

func (s *globSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type depthSelector struct {
	maxDepth int
	basePath string
}

// Depth limits traversal to maxDepth levels below basePath.
// Depth 1 = immediate children only.
func Depth(maxDepth int, basePath string) FileSelector {
	return &depthSelector{
		maxDepth: maxDepth,
		basePath: strings.Trim(basePath, "/"),
	}
}

func (s *depthSelector) depth(path string) int {
	rel := strings.Trim(path, "/")
	rel = strings.TrimPrefix(rel, s.basePath)
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *depthSelector) Match(file *FileInfo) bool {
	return s.depth(file.Path) <= s.maxDepth
}

func (s *depthSelector) TraverseDescendants(file *FileInfo) bool {
	return s.depth(file.Path) < s.maxDepth
}

type andSelector struct {
	selectors []FileSelector
}

// And matches only if all selectors match.
func And(selectors ...FileSelector) FileSelector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.TraverseDescendants(file) {
			return false
		}
	}
	return true
}

type orSelector struct {
	selectors []FileSelector
}

// Or matches if any selector matches.
func Or(selectors ...FileSelector) FileSelector {
	return &orSelector{selectors: selectors}
}

func (s *orSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.Match(file) {
			return true
		}
	}
	return false
}

func (s *orSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(file) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector FileSelector
}

// Not inverts a selector's match result.
func Not(selector FileSelector) FileSelector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(file *FileInfo) bool {
	return !s.selector.Match(file)
}

func (s *notSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

type funcSelector struct {
	matchFn func(*FileInfo) bool
}

// FuncSelector creates a selector from a custom match function.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return &funcSelector{matchFn: fn}
}

func (s *funcSelector) Match(file *FileInfo) bool               { return s.matchFn(file) }
func (s *funcSelector) TraverseDescendants(file *FileInfo) bool { return true }
