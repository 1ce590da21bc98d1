package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"pagemap/kernel/hal"
	"pagemap/kernel/hal/multiboot"
	"pagemap/kernel/mm"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

const (
	// envConfigPath names the environment variable that supplies the
	// config file when --config is not set.
	envConfigPath = "PAGEMAP_CONFIG"

	// envLogLevel names the environment variable that overrides the
	// configured log level when --log-level is not set.
	envLogLevel = "PAGEMAP_LOG_LEVEL"

	defaultMemorySize = 64 * mm.Mb
	defaultLogLevel   = "info"
)

// regionConfig describes a [[memory_map]] entry. Start accepts decimal or
// 0x-prefixed addresses; Length also accepts sizes such as "2MiB".
type regionConfig struct {
	Start  string `toml:"start"`
	Length string `toml:"length"`
	Type   string `toml:"type"`
}

type fileConfig struct {
	MemorySize string         `toml:"memory_size"`
	LogLevel   string         `toml:"log_level"`
	MemoryMap  []regionConfig `toml:"memory_map"`
}

type config struct {
	Machine  hal.Config
	LogLevel string
}

// loadEnv reads environment overrides from the supplied .env files. Missing
// files are ignored.
func loadEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			continue
		}

		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}

	return nil
}

// loadConfig builds the machine configuration. An empty path selects the
// file named by PAGEMAP_CONFIG or the defaults if that is not set either.
func loadConfig(path string) (*config, error) {
	cfg := &config{
		Machine:  hal.Config{MemorySize: defaultMemorySize},
		LogLevel: defaultLogLevel,
	}

	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}

		if err := fc.apply(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if level := os.Getenv(envLogLevel); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

func (fc *fileConfig) apply(cfg *config) error {
	if fc.MemorySize != "" {
		size, err := units.RAMInBytes(fc.MemorySize)
		if err != nil {
			return fmt.Errorf("memory_size: %w", err)
		}
		if size <= 0 {
			return errors.New("memory_size: must be positive")
		}

		cfg.Machine.MemorySize = mm.Size(size).PageAligned()
	}

	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}

	for i, region := range fc.MemoryMap {
		entry, err := region.entry()
		if err != nil {
			return fmt.Errorf("memory_map[%d]: %w", i, err)
		}

		cfg.Machine.MemoryMap = append(cfg.Machine.MemoryMap, entry)
	}

	return nil
}

func (r regionConfig) entry() (multiboot.MemoryMapEntry, error) {
	start, err := strconv.ParseUint(r.Start, 0, 64)
	if err != nil {
		return multiboot.MemoryMapEntry{}, fmt.Errorf("invalid start %q", r.Start)
	}

	length, err := parseSize(r.Length)
	if err != nil {
		return multiboot.MemoryMapEntry{}, fmt.Errorf("invalid length %q", r.Length)
	}

	entryType := multiboot.MemAvailable
	if r.Type != "" {
		if entryType, err = parseEntryType(r.Type); err != nil {
			return multiboot.MemoryMapEntry{}, err
		}
	}

	return multiboot.MemoryMapEntry{PhysAddress: start, Length: length, Type: entryType}, nil
}

func parseEntryType(name string) (multiboot.MemoryEntryType, error) {
	entryType, err := multiboot.MemoryEntryTypeFromString(name)
	if err != nil {
		return 0, fmt.Errorf("%s: %q", err.Message, name)
	}

	return entryType, nil
}

// parseSize accepts plain integers (including 0x-prefixed ones) and human
// readable binary sizes.
func parseSize(value string) (uint64, error) {
	if n, err := strconv.ParseUint(value, 0, 64); err == nil {
		return n, nil
	}

	n, err := units.RAMInBytes(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", value)
	}

	return uint64(n), nil
}
