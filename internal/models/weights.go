package models

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const (
	HFConfigFile        = "config.json"
	DiffusersConfigFile = "model_index.json"
)

// WeightsInfo describes a pretrained weights directory on disk
type WeightsInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	Present      bool   `json:"present"`
	ModelType    string `json:"model_type,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Files        int    `json:"files"`
	TotalSize    int64  `json:"total_size"`
}

type hfConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
	ClassName     string   `json:"_class_name"`
}

// InspectWeights scans a weights directory. A directory counts as present
// when it holds a HuggingFace or diffusers config file. Missing weights are
// not an error: the inference worker downloads them on first load.
func InspectWeights(name, dir string) WeightsInfo {
	info := WeightsInfo{Name: name, Path: dir}

	for _, cfgName := range []string{DiffusersConfigFile, HFConfigFile} {
		data, err := os.ReadFile(filepath.Join(dir, cfgName))
		if err != nil {
			continue
		}
		info.Present = true

		var cfg hfConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			info.ModelType = cfg.ModelType
			if cfg.ClassName != "" {
				info.Architecture = cfg.ClassName
			} else if len(cfg.Architectures) > 0 {
				info.Architecture = cfg.Architectures[0]
			}
		}
		break
	}

	filepath.Walk(dir, func(_ string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		info.Files++
		info.TotalSize += fi.Size()
		return nil
	})

	return info
}
