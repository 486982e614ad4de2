package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Load builds the configuration: defaults, then the file at path, then the
// environment. An empty path looks for FileName in the root given by the
// defaults or SNIPPETIDE_ROOT. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		root := cfg.App.Root
		if v, ok := os.LookupEnv(EnvRoot); ok && v != "" {
			root = v
		}
		expanded, err := expandHome(root)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(expanded, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// File doesn't exist, not an error
	case err != nil:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes TOML from r over the defaults without consulting
// the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := decode("<reader>", data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// decode parses data into cfg, rejecting unknown settings.
func decode(source string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}

		var decodeErr *toml.DecodeError
		var strictErr *toml.StrictMissingError
		switch {
		case errors.As(err, &decodeErr):
			pe.Line, pe.Column = decodeErr.Position()
		case errors.As(err, &strictErr) && len(strictErr.Errors) > 0:
			pe.Line, pe.Column = strictErr.Errors[0].Position()
			pe.Message = "unknown setting " + fmt.Sprint(strictErr.Errors[0].Key())
		}
		return pe
	}
	return nil
}

// Write encodes cfg as TOML to w.
func Write(w io.Writer, cfg *Config) error {
	enc := toml.NewEncoder(w)
	return enc.Encode(cfg)
}
