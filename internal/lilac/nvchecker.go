package lilac

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CheckResult is everything one checker run produced.
type CheckResult struct {
	NV      map[string]NvResult
	Unknown map[string]struct{} // no verdict this cycle
	Rebuild map[string]struct{} // rebuild requested regardless of version equality
}

// VersionChecker detects upstream versions and durably advances the
// recorded ones. The production implementation drives the external
// nvchecker/nvtake tools; tests substitute a fake.
type VersionChecker interface {
	Check(ctx context.Context, recipes map[string]*Recipe) (*CheckResult, error)
	Take(ctx context.Context, pkgs []string) error
}

// NvChecker shells out to nvchecker with the repository's nvchecker.toml
// and reads the oldver/newver record files it maintains.
type NvChecker struct {
	RepoDir string
	Proxy   string
	Exec    *Executor
}

func (n *NvChecker) configFile() string {
	return filepath.Join(n.RepoDir, "nvchecker.toml")
}

func (n *NvChecker) Check(ctx context.Context, recipes map[string]*Recipe) (*CheckResult, error) {
	args := []string{"-c", n.configFile(), "--logger", "json"}
	cmd := exec.Command("nvchecker", args...)
	cmd.Dir = n.RepoDir
	if n.Proxy != "" {
		cmd.Env = append(os.Environ(), "http_proxy="+n.Proxy, "https_proxy="+n.Proxy)
	}
	out, err := n.Exec.RunOutput(cmd)
	if err != nil {
		return nil, fmt.Errorf("nvchecker failed: %w", err)
	}

	res := &CheckResult{
		NV:      make(map[string]NvResult),
		Unknown: make(map[string]struct{}),
		Rebuild: make(map[string]struct{}),
	}

	// one JSON object per line; errors mean no verdict for that package
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var ev struct {
			Name    string `json:"name"`
			Level   string `json:"level"`
			Event   string `json:"event"`
			Version string `json:"version"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Name == "" {
			continue
		}
		if _, ok := recipes[ev.Name]; !ok {
			continue
		}
		if ev.Level == "error" {
			res.Unknown[ev.Name] = struct{}{}
			continue
		}
		if ev.Event == "rebuild" {
			res.Rebuild[ev.Name] = struct{}{}
		}
	}

	oldver, err := readVerFile(filepath.Join(n.RepoDir, "oldver.json"))
	if err != nil {
		return nil, err
	}
	newver, err := readVerFile(filepath.Join(n.RepoDir, "newver.json"))
	if err != nil {
		return nil, err
	}

	for pkg := range recipes {
		if _, bad := res.Unknown[pkg]; bad {
			continue
		}
		nv, ok := newver[pkg]
		if !ok {
			res.Unknown[pkg] = struct{}{}
			continue
		}
		res.NV[pkg] = NvResult{OldVer: oldver[pkg], NewVer: nv}
	}
	return res, nil
}

// Take advances the recorded upstream versions for the given packages via
// nvtake. This is the only place oldver records move.
func (n *NvChecker) Take(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	args := append([]string{"-c", n.configFile(), "--"}, pkgs...)
	cmd := exec.Command("nvtake", args...)
	cmd.Dir = n.RepoDir
	if err := n.Exec.Run(cmd); err != nil {
		return fmt.Errorf("nvtake failed: %w", err)
	}
	return nil
}

// readVerFile parses an nvchecker record file. The modern format nests
// versions under "data"; the old flat format is still accepted.
func readVerFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	var nested struct {
		Version int `json:"version"`
		Data    map[string]struct {
			Version string `json:"version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.Data != nil {
		out := make(map[string]string, len(nested.Data))
		for k, v := range nested.Data {
			out[k] = v.Version
		}
		return out, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	delete(flat, "version")
	return flat, nil
}
