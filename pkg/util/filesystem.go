package util

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Exists checks whether the file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// CreateDirectoryIfNotExists creates directory if it doesn't yet exist
func CreateDirectoryIfNotExists(path string, mode os.FileMode) error {
	if !Exists(path) {
		if err := os.MkdirAll(path, mode); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", path)
		}
	}

	return nil
}

// ExpandPath trims the path and expands a leading tilde
// into the current user's home directory
func ExpandPath(path string) (string, error) {
	path, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand path %s", path)
	}

	return path, nil
}
