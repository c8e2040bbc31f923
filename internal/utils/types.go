package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DownloadEntry is one row of a YAML batch list.
type DownloadEntry struct {
	URL        string `yaml:"link"`
	OutputPath string `yaml:"op"`
	Quality    string `yaml:"quality,omitempty"`
	Itag       string `yaml:"itag,omitempty"`
}

func ReadDownloadList(path string) ([]DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading URL list file: %v", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing URL list file: %v", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("entry %d is missing a link", i+1)
		}
	}
	return entries, nil
}
