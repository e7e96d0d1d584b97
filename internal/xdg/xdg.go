package xdg

import (
	"os"
	"path/filepath"
)

// XDGDirs provides the XDG Base Directory paths the judge writes to
type XDGDirs struct {
	cacheHome string
}

// NewXDGDirs reads XDG_CACHE_HOME, falling back to ~/.cache
func NewXDGDirs() *XDGDirs {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = os.TempDir()
		}
	}

	xdg := &XDGDirs{}

	xdg.cacheHome = os.Getenv("XDG_CACHE_HOME")
	if xdg.cacheHome == "" {
		xdg.cacheHome = filepath.Join(homeDir, ".cache")
	}

	return xdg
}

// AppCacheDir returns the application-specific cache directory
func (x *XDGDirs) AppCacheDir(appName string) string {
	return filepath.Join(x.cacheHome, appName)
}
