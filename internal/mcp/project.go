package mcp

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DetectProject identifies the project at rootPath from its manifest
// files. Detection order: go.mod, package.json, pyproject.toml,
// Cargo.toml, then the directory name.
func DetectProject(rootPath string) ProjectInfo {
	info := ProjectInfo{
		RootPath: rootPath,
		Name:     filepath.Base(rootPath),
		Type:     "unknown",
	}

	if name := goModuleName(filepath.Join(rootPath, "go.mod")); name != "" {
		info.Name = name
		info.Type = "go"
		return info
	}
	if name := packageJSONName(filepath.Join(rootPath, "package.json")); name != "" {
		info.Name = name
		info.Type = "node"
		return info
	}
	if name := tomlName(filepath.Join(rootPath, "pyproject.toml"), "[project]"); name != "" {
		info.Name = name
		info.Type = "python"
		return info
	}
	if name := tomlName(filepath.Join(rootPath, "Cargo.toml"), "[package]"); name != "" {
		info.Name = name
		info.Type = "rust"
		return info
	}

	return info
}

// goModuleName returns the last segment of the module path in go.mod.
func goModuleName(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if module, ok := strings.CutPrefix(line, "module "); ok {
			return filepath.Base(strings.TrimSpace(module))
		}
	}
	return ""
}

// packageJSONName returns the name field from package.json, with the
// scope stripped from scoped packages (@org/name becomes name).
func packageJSONName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}

	name := pkg.Name
	if strings.HasPrefix(name, "@") {
		if _, stripped, ok := strings.Cut(name, "/"); ok {
			name = stripped
		}
	}
	return name
}

var tomlNameRegex = regexp.MustCompile(`^\s*name\s*=\s*["']([^"']+)["']`)

// tomlName scans a TOML file for the name key under the given section
// header. Good enough for pyproject.toml and Cargo.toml; a manifest odd
// enough to defeat it just falls back to the directory name.
func tomlName(path, section string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = file.Close() }()

	inSection := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inSection = line == section
			continue
		}
		if !inSection {
			continue
		}
		if matches := tomlNameRegex.FindStringSubmatch(line); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}
