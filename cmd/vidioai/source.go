package main

import (
	"strings"

	"github.com/chicogong/vidioai/pkg/storage"
)

// sourceURI accepts a URI or a local path
func sourceURI(arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	return storage.FileURI(arg)
}
