// Package config implements the gcfg-based .conf loader shared by the Edge
// and Forge binaries: an INI file with a [Global] section plus named
// subsections, loaded into a typed struct and overridable by environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var (
	ErrConfigFileTooLarge = errors.New("config file is too large")
	ErrNotFound           = errors.New("not found")
)

// LoadFile reads path (capped at maxConfigSize) and decodes it with gcfg
// into v, which must be a pointer to a struct tagged the way gcfg expects
// (exported fields, map[string]*T subsections for repeated blocks).
func LoadFile(v interface{}, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return gcfg.ReadStringInto(v, string(b))
}

// EnvString overrides dst with the named environment variable when it is
// set and dst is currently empty.
func EnvString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" && *dst == "" {
		*dst = v
	}
}

func EnvInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func EnvBool(dst *bool, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = b
	return nil
}
