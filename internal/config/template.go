// Package config loads template definitions and application settings.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"docalign/internal/supervision"
	"docalign/pkg/geometry"
)

// Region is a named rectangle in template coordinates.
type Region struct {
	ID     string  `yaml:"id"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Width  float64 `yaml:"w"`
	Height float64 `yaml:"h"`
}

// Rect returns the region as a geometry.Rect.
func (r Region) Rect() geometry.Rect {
	return geometry.NewRect(r.X, r.Y, r.Width, r.Height)
}

// Feature is a region extracted from analyzed images.
type Feature struct {
	Region         `yaml:",inline"`
	Mutators       []string `yaml:"mutators"`
	Interpretation string   `yaml:"interpretation"`
}

// Supervision selects the engine and its per-engine options.
type Supervision struct {
	Engine string                    `yaml:"engine"`
	Config map[string]map[string]any `yaml:"config"`
}

// EngineOptions returns the options of the selected engine, possibly nil.
func (s Supervision) EngineOptions() map[string]any {
	return s.Config[s.Engine]
}

// Template describes a document type.
type Template struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Source      string      `yaml:"source"`
	Width       int         `yaml:"width"`
	Height      int         `yaml:"height"`
	Keypoints   []Region    `yaml:"keypoints"`
	Features    []Feature   `yaml:"features"`
	Supervision Supervision `yaml:"supervision"`

	path string
}

// Path returns the file the template was loaded from, if any.
func (t *Template) Path() string { return t.path }

// Feature looks up a feature by id.
func (t *Template) Feature(id string) (Feature, bool) {
	for _, f := range t.Features {
		if f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

// LoadTemplate reads and validates a template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, supervision.NewError(supervision.ErrInvalidPath, "while loading a template", "cannot read "+path, err)
	}
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s", path)
	}
	t.path = path
	return t, nil
}

// ParseTemplate decodes and validates a template document.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "decode template")
	}
	if t.Supervision.Engine == "" {
		t.Supervision.Engine = supervision.CombinatorialEngineID
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks ids, region sizes and the engine selection.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.New("template id is empty")
	}
	while := fmt.Sprintf("while loading template %q", t.ID)

	if _, ok := supervision.EngineOptions(t.Supervision.Engine); !ok {
		return supervision.NewError(supervision.ErrTemplateInvalidEngine, while,
			fmt.Sprintf("unknown supervision engine %q", t.Supervision.Engine), nil)
	}

	seen := make(map[string]bool)
	check := func(sentinel *supervision.Error, kind string, r Region) error {
		if r.ID == "" {
			return supervision.NewError(sentinel, while, kind+" without id", nil)
		}
		if seen[r.ID] {
			return supervision.NewError(supervision.ErrTemplateIDNotUnique, while,
				fmt.Sprintf("region id %q is used more than once", r.ID), nil)
		}
		seen[r.ID] = true
		if r.Width <= 0 || r.Height <= 0 {
			return supervision.NewError(sentinel, while,
				fmt.Sprintf("%s %q has non-positive size %gx%g", kind, r.ID, r.Width, r.Height), nil)
		}
		return nil
	}
	for _, k := range t.Keypoints {
		if err := check(supervision.ErrTemplateInvalidKeypoint, "keypoint", k); err != nil {
			return err
		}
	}
	for _, f := range t.Features {
		if err := check(supervision.ErrTemplateInvalidFeature, "feature", f.Region); err != nil {
			return err
		}
	}
	return nil
}
