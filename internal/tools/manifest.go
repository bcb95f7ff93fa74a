package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest 是一份 YAML 工具清单，描述若干工具定义。
type Manifest struct {
	Tools []ToolDefinition `yaml:"tools"`
}

// LoadManifest 从单个 YAML 文件加载工具清单并校验每个定义。
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(manifest.Tools))
	for _, def := range manifest.Tools {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		if _, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("manifest %s: duplicate tool %s", path, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return &manifest, nil
}

// LoadManifestDir 加载目录下所有 .yaml/.yml 清单并合并，
// 文件按名称排序保证结果稳定。跨文件重名视为错误。
func LoadManifestDir(dir string) (*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	merged := &Manifest{}
	seen := make(map[string]string)
	for _, path := range paths {
		manifest, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		for _, def := range manifest.Tools {
			if prev, ok := seen[def.Name]; ok {
				return nil, fmt.Errorf("tool %s defined in both %s and %s", def.Name, prev, path)
			}
			seen[def.Name] = path
			merged.Tools = append(merged.Tools, def)
		}
	}
	return merged, nil
}
