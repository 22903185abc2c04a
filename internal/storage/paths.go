package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/botforge/forge3d/internal/apperr"
	"github.com/botforge/forge3d/pkg/types"
)

// URLPrefix is the public URL prefix generated files are served under
const URLPrefix = "/parts/generated/"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Paths manages all storage locations for forge3d
type Paths struct {
	baseDir     string
	projectRoot string
	outputDir   string
	daemonDir   string
}

// NewPaths creates a new Paths instance
func NewPaths(baseDir, projectRoot, outputDir string) *Paths {
	if outputDir == "" {
		outputDir = filepath.Join(projectRoot, "public", "parts", "generated")
	}
	return &Paths{
		baseDir:     baseDir,
		projectRoot: projectRoot,
		outputDir:   outputDir,
		daemonDir:   filepath.Join(baseDir, "daemon"),
	}
}

// Initialize creates all necessary directories
func (p *Paths) Initialize() error {
	dirs := []string{
		p.baseDir,
		p.daemonDir,
		p.outputDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// BaseDir returns the base directory
func (p *Paths) BaseDir() string {
	return p.baseDir
}

// ProjectRoot returns the directory caller part references are relative to
func (p *Paths) ProjectRoot() string {
	return p.projectRoot
}

// OutputDir returns the generated parts directory
func (p *Paths) OutputDir() string {
	return p.outputDir
}

// PartPath returns the path for a file in the output directory
func (p *Paths) PartPath(filename string) string {
	return filepath.Join(p.outputDir, filename)
}

// RigDir returns the work directory of a rigging run
func (p *Paths) RigDir(name string) string {
	return filepath.Join(p.outputDir, "rig_"+name)
}

// StatePath returns the asset catalog file path
func (p *Paths) StatePath() string {
	return filepath.Join(p.daemonDir, "state.json")
}

// URLPath returns the public URL of a path inside the output directory
func (p *Paths) URLPath(absPath string) string {
	rel, err := filepath.Rel(p.outputDir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return URLPrefix + filepath.ToSlash(rel)
}

// Resolve maps a caller supplied part reference onto the filesystem.
// References under the public URL prefix map into the output directory;
// anything else is relative to the project root.
func (p *Paths) Resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", apperr.New(apperr.ErrInvalid, "empty path")
	}

	root, rel := p.projectRoot, strings.TrimLeft(ref, "/")
	if trimmed := strings.TrimPrefix("/"+rel, URLPrefix); trimmed != "/"+rel {
		root, rel = p.outputDir, trimmed
	}

	full, err := SafeJoin(root, rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.New(apperr.ErrNotFound, "Part not found: %s", ref)
		}
		return "", fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return "", apperr.New(apperr.ErrNotFound, "Part not found: %s is a directory", ref)
	}

	return full, nil
}

// SafeJoin joins a slash separated relative path onto root, rejecting
// anything that would escape it
func SafeJoin(root, rel string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if cleaned == "/" {
		return "", apperr.New(apperr.ErrInvalid, "path %q has no file component", rel)
	}
	full := filepath.Join(root, filepath.FromSlash(cleaned))

	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.ErrInvalid, "path %q escapes its root", rel)
	}
	return full, nil
}

// ValidName reports whether a caller supplied output name is usable as a
// file name
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// NewToken returns a random identifier of the form <prefix>_<8 hex chars>
func NewToken(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + id[:8]
}

// CountMeshes returns the number of mesh files in the output directory
func (p *Paths) CountMeshes() int {
	matches, err := filepath.Glob(filepath.Join(p.outputDir, "*.glb"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// GetDiskUsage returns the bytes taken by generated files and service state
func (p *Paths) GetDiskUsage() types.DiskUsage {
	usage := types.DiskUsage{
		Output: getDirSize(p.outputDir),
		State:  getDirSize(p.daemonDir),
	}
	usage.Total = usage.Output + usage.State

	return usage
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) int64 {
	var size int64

	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
