package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file lodtool looks for and writes.
const FileName = "lodtool.yaml"

const fileHeader = "# lodtool configuration. Command-line flags override these values.\n"

// DefaultPath returns the config file location in the user's config directory.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), FileName)
}

// Marshal renders the config as YAML with two-space indentation.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the config to DefaultPath and returns the path written.
func (c *Config) Save(overwrite bool) (string, error) {
	path := DefaultPath()
	return path, c.SaveTo(path, overwrite)
}

// SaveTo validates the config and writes it to path, creating parent
// directories. An existing file is only replaced when overwrite is set;
// otherwise the error matches fs.ErrExist.
func (c *Config) SaveTo(path string, overwrite bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists: %w", path, fs.ErrExist)
		}
		return err
	}
	if _, err := f.WriteString(fileHeader); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
