package cache

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// Filesystem returns the medium for dir: the OS directory when set, memory otherwise.
func Filesystem(dir string) billy.Filesystem {
	if dir == "" {
		return memfs.New()
	}
	return osfs.New(dir)
}
