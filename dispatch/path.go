package dispatch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quietport/rft/types"
)

// ResolveServingPath resolves name against root, rejecting any name that
// contains a ".." segment or is an absolute path. It does not check
// existence; callers open the result and map os.IsNotExist to
// types.ErrUnknownFile themselves.
func ResolveServingPath(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.Contains(name, "\x00") {
		return "", types.ErrForbiddenPath
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", types.ErrForbiddenPath
		}
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", types.ErrForbiddenPath
	}

	full := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", types.ErrForbiddenPath
	}
	return full, nil
}

// statFile opens path and stats it, translating a missing file into
// types.ErrUnknownFile.
func statFile(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, types.ErrUnknownFile
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, types.ErrUnknownFile
	}
	return f, info, nil
}
