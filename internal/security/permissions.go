// internal/security/permissions.go
package security

import (
	"fmt"
	"io/fs"
	"os"
)

// ValidateConfigFile checks that the config file is a regular file that is
// not world-writable. Handler commands are read from it.
func ValidateConfigFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking config permissions: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return checkWritable(path, "file", info.Mode().Perm())
}

// ValidateDataDir checks the directory holding the history database
func ValidateDataDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	mode := info.Mode().Perm()
	if err := checkWritable(path, "directory", mode); err != nil {
		return err
	}
	if mode&0020 != 0 {
		return fmt.Errorf("directory %s is group-writable (mode %04o), expected 0700 or 0750", path, mode)
	}
	return nil
}

func checkWritable(path, kind string, mode fs.FileMode) error {
	if mode&0002 != 0 {
		return fmt.Errorf("%s %s is world-writable (mode %04o)", kind, path, mode)
	}
	return nil
}
