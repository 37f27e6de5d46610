package lilac

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config holds the parsed lilac.ini. Keys are section-qualified, e.g.
// "lilac.name" or "repository.destdir". The special "enviroment variables"
// section (sic, the historical spelling) is kept apart in Env and exported
// into the process environment verbatim at startup.
type Config struct {
	Values map[string]string
	Env    map[string]string
	Path   string
}

// configSearchPath lists the locations probed for lilac.ini, first hit wins.
func configSearchPath() []string {
	paths := []string{"lilac.ini"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".lilac", "lilac.ini"))
	}
	paths = append(paths, ConfigFile)
	return paths
}

// FindConfig locates and parses the first config file on the search path.
func FindConfig() (*Config, error) {
	for _, p := range configSearchPath() {
		if _, err := os.Stat(p); err == nil {
			return LoadConfig(p)
		}
	}
	return nil, fmt.Errorf("no lilac.ini found in %v", configSearchPath())
}

// LoadConfig parses an INI-shaped config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Values: make(map[string]string),
		Env:    make(map[string]string),
		Path:   path,
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer file.Close()

	section := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		if section == "enviroment variables" {
			cfg.Env[key] = val
			continue
		}
		if section != "" {
			key = section + "." + key
		}
		cfg.Values[key] = val
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	applyConfigDefaults(cfg)
	return cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Values["lilac.name"] == "" {
		cfg.Values["lilac.name"] = "lilac"
	}
	if cfg.Values["repository.name"] == "" {
		cfg.Values["repository.name"] = "lilac"
	}
	if cfg.Values["lilac.branch"] == "" {
		cfg.Values["lilac.branch"] = "master"
	}
	if cfg.Values["repository.pkg_suffixes"] == "" {
		cfg.Values["repository.pkg_suffixes"] = ".pkg.tar.zst .pkg.tar.xz .pkg.tar.gz"
	}
}

// Get returns the value of a section-qualified key, or "" if unset.
func (c *Config) Get(key string) string {
	return c.Values[key]
}

// Bool interprets a config value as a boolean. Unset means false.
func (c *Config) Bool(key string) bool {
	switch strings.ToLower(c.Values[key]) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// List splits a whitespace-separated config value.
func (c *Config) List(key string) []string {
	return strings.Fields(c.Values[key])
}

// RepoDir returns the absolute path of the recipe repository working tree.
// Defaults to the directory holding the config file.
func (c *Config) RepoDir() string {
	if dir := c.Values["repository.repodir"]; dir != "" {
		abs, err := filepath.Abs(dir)
		if err == nil {
			return abs
		}
		return dir
	}
	abs, err := filepath.Abs(filepath.Dir(c.Path))
	if err != nil {
		return filepath.Dir(c.Path)
	}
	return abs
}

// ExportEnv applies the environment contract: the free-form env section
// verbatim, MAKEFLAGS defaulted to -j<ncpu>, and the proxy for the
// version checker if configured.
func (c *Config) ExportEnv() {
	for k, v := range c.Env {
		os.Setenv(k, v)
	}
	if os.Getenv("MAKEFLAGS") == "" {
		os.Setenv("MAKEFLAGS", fmt.Sprintf("-j%d", runtime.NumCPU()))
	}
	if proxy := c.Values["nvchecker.proxy"]; proxy != "" && os.Getenv("http_proxy") == "" {
		os.Setenv("http_proxy", proxy)
		os.Setenv("https_proxy", proxy)
	}
}
