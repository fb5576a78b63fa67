// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetSpindleDataDir returns the spindle data directory.
//
// Priority:
// 1. SPINDLE_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.spindle (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the user's
// home directory; relative paths are converted to absolute paths.
//
// This function is called during bootstrap (before the config file is loaded)
// to locate the config file itself. After config is loaded, use config.DataDir
// for consistency.
//
// Note: reads directly from os.Getenv(), not from viper, to avoid a circular
// dependency during config initialization.
func GetSpindleDataDir() string {
	if dataDir := os.Getenv("SPINDLE_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".spindle"
	}
	return filepath.Join(homeDir, ".spindle")
}

// GetSpindleSubDir returns a subdirectory within the spindle data directory.
// Example: GetSpindleSubDir("tests") returns ~/.spindle/tests
func GetSpindleSubDir(subdir string) string {
	return filepath.Join(GetSpindleDataDir(), subdir)
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, path[2:])
	}

	// Make path absolute
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path // Return as-is if we can't make it absolute
	}
	return absPath
}
