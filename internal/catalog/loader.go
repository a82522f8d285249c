package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"counsel/internal/logging"

	"gopkg.in/yaml.v3"
)

// Built-in definitions baked into the binary. External catalogs layer on
// top of (or replace) these at load time.
//
//go:embed defs
var embeddedDefs embed.FS

// catalogFile is the YAML document shape. Trigger and behavior files share
// it; a file may carry either or both sections.
type catalogFile struct {
	Triggers          []*TriggerDef     `yaml:"triggers"`
	Behaviors         []*BehaviorDef    `yaml:"behaviors"`
	Incompatibilities []Incompatibility `yaml:"incompatibilities"`
}

// Load builds the catalog from the embedded defaults, validates it, and
// fails loudly on any integrity violation.
func Load() (*Catalog, error) {
	return load(nil)
}

// LoadDir builds the catalog from the embedded defaults plus every YAML
// file under dir. External definitions with an id already present replace
// the built-in one.
func LoadDir(dir string) (*Catalog, error) {
	var external []catalogFile
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read catalog file %s: %w", path, err)
		}
		var cf catalogFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}
		external = append(external, cf)
		return nil
	})
	if err != nil {
		return nil, &ValidationError{Violations: []string{err.Error()}}
	}
	return load(external)
}

func load(external []catalogFile) (*Catalog, error) {
	log := logging.Get(logging.CategoryCatalog)

	cat := &Catalog{
		Triggers:  make(map[string]*TriggerDef),
		Behaviors: make(map[string]*BehaviorDef),
	}

	var files []catalogFile
	err := fs.WalkDir(embeddedDefs, "defs", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		data, err := embeddedDefs.ReadFile(path)
		if err != nil {
			return err
		}
		var cf catalogFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return fmt.Errorf("embedded catalog %s: %w", path, err)
		}
		files = append(files, cf)
		return nil
	})
	if err != nil {
		return nil, &ValidationError{Violations: []string{err.Error()}}
	}
	files = append(files, external...)

	for _, cf := range files {
		for _, t := range cf.Triggers {
			if prev, ok := cat.Triggers[t.ID]; ok && prev != t {
				log.Debugw("trigger overridden", "id", t.ID)
			}
			cat.Triggers[t.ID] = t
		}
		for _, b := range cf.Behaviors {
			if prev, ok := cat.Behaviors[b.ID]; ok && prev != b {
				log.Debugw("behavior overridden", "id", b.ID)
			}
			cat.Behaviors[b.ID] = b
		}
		cat.Incompatibilities = append(cat.Incompatibilities, cf.Incompatibilities...)
	}

	if err := cat.validate(); err != nil {
		return nil, err
	}

	log.Infow("catalog loaded",
		"triggers", len(cat.Triggers),
		"behaviors", len(cat.Behaviors),
		"incompatibilities", len(cat.Incompatibilities),
		"fallback", cat.FallbackID)
	return cat, nil
}
