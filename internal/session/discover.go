package session

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File is a discovered session file with the stat data used for ordering.
type File struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// RunName is the name of the run directory holding the file.
func (f File) RunName() string {
	return filepath.Base(filepath.Dir(f.Path))
}

// DiscoverFiles lists session files directly under each run directory in
// root, newest first. A missing root yields an empty list.
func DiscoverFiles(root string) ([]File, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(root, entry.Name(), SessionFileName)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, File{Path: path, ModTime: info.ModTime(), Size: info.Size()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Path > files[j].Path
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Discover returns just the paths from DiscoverFiles.
func Discover(root string) ([]string, error) {
	files, err := DiscoverFiles(root)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// Resolve maps a user supplied session reference to a session file path.
// ref may be a session file, a run directory, or a run name under root.
func Resolve(root, ref string) (string, bool) {
	candidates := []string{
		ref,
		filepath.Join(ref, SessionFileName),
		filepath.Join(root, ref, SessionFileName),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
