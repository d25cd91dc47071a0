package preset

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Presets []Preset `yaml:"presets"`
}

// LoadFile 从 YAML 文件读取预设列表并校验
func LoadFile(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML preset document.
func Parse(data []byte) ([]Preset, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse presets yaml: %w", err)
	}
	if len(doc.Presets) == 0 {
		return nil, fmt.Errorf("presets file defines no presets")
	}

	seen := make(map[string]struct{}, len(doc.Presets))
	for i := range doc.Presets {
		p := &doc.Presets[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("preset #%d: id is required", i+1)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("preset %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.HasFixedBank() {
			p.QuestionCount = len(p.Questions)
		}
		if p.QuestionCount <= 0 {
			return nil, fmt.Errorf("preset %q: question_count must be positive", p.ID)
		}
	}
	return doc.Presets, nil
}
