package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied to anything read from disk or the environment.
const (
	maxConfigSize = 10 << 20
	maxJSONDepth  = 100
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

var allowedExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// checkLayerPath rejects empty, oversized or non-config paths, and relative
// paths that climb out of the working directory.
func checkLayerPath(path string) error {
	switch {
	case path == "":
		return errors.New("empty config path")
	case len(path) > maxPathLen:
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	case !allowedExtensions[strings.ToLower(filepath.Ext(path))]:
		return fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}

	if filepath.IsAbs(path) {
		return nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot get working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, filepath.Join(cwd, path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
	}
	return nil
}

// safeReadFile reads one layer, refusing anything that is not a regular
// file under maxConfigSize.
func safeReadFile(path string) ([]byte, error) {
	if err := checkLayerPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	return io.ReadAll(io.LimitReader(f, maxConfigSize))
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.IndexByte(value, 0) >= 0 {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth walks the token stream and fails once objects or arrays
// nest deeper than maxJSONDepth.
func validateJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed JSON: %w", err)
		}
		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch d {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxJSONDepth)
			}
		default:
			depth--
		}
	}
}
