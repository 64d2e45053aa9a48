// Package os holds the filesystem and process helpers of the CLI.
package os

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

type logger interface {
	Info(msg string, keyvals ...interface{})
}

// TrapSignal runs cb on the first SIGTERM or SIGINT and exits with code 0.
func TrapSignal(logger logger, cb func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		logger.Info("signal trapped", "msg", fmt.Sprintf("captured %v, exiting...", sig))
		if cb != nil {
			cb()
		}
		os.Exit(0)
	}()
}

// EnsureDir ensures the given directory exists, creating it if necessary.
func EnsureDir(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("could not create directory %q: %w", dir, err)
	}
	return nil
}

// FileExists checks if a file exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// WriteFile writes contents to filePath, creating the parent directory.
// An existing file is only replaced when overwrite is set.
func WriteFile(filePath string, contents []byte, mode os.FileMode, overwrite bool) error {
	if !overwrite && FileExists(filePath) {
		return fmt.Errorf("file %s already exists", filePath)
	}
	if err := EnsureDir(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(filePath, contents, mode)
}
