package match

import (
	"os"

	"docalign/pkg/geometry"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a matching result, as written by an external matcher.
//
//	template: passport
//	keypoints:
//	  - id: corner_tl
//	    matches:
//	      - template: [12, 40]
//	        target: [210.5, 388.0]
type File struct {
	Template  string         `yaml:"template"`
	Keypoints []KeypointFile `yaml:"keypoints"`
}

// KeypointFile lists the matches of one keypoint.
type KeypointFile struct {
	ID      string      `yaml:"id"`
	Matches []PointPair `yaml:"matches"`
}

// PointPair is one template/target correspondence.
type PointPair struct {
	Template []float64 `yaml:"template"`
	Target   []float64 `yaml:"target"`
}

// LoadFile reads a match file from disk.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read match file")
	}
	return Parse(data)
}

// Parse decodes a match file.
func Parse(data []byte) (*Result, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode match file")
	}
	return f.Result()
}

// Result converts the file form into an immutable Result.
func (f *File) Result() (*Result, error) {
	b := NewBuilder(f.Template)
	for _, kp := range f.Keypoints {
		if kp.ID == "" {
			return nil, errors.New("keypoint without id")
		}
		b.AddKeypoint(kp.ID)
		for i, pair := range kp.Matches {
			tp, err := toPoint(pair.Template)
			if err != nil {
				return nil, errors.Wrapf(err, "keypoint %s match %d template point", kp.ID, i)
			}
			dp, err := toPoint(pair.Target)
			if err != nil {
				return nil, errors.Wrapf(err, "keypoint %s match %d target point", kp.ID, i)
			}
			b.Add(kp.ID, tp, dp)
		}
	}
	return b.Build(), nil
}

func toPoint(v []float64) (geometry.Point2D, error) {
	if len(v) != 2 {
		return geometry.Point2D{}, errors.Errorf("expected 2 coordinates, got %d", len(v))
	}
	p := geometry.NewPoint2D(v[0], v[1])
	if !p.IsFinite() {
		return geometry.Point2D{}, errors.Errorf("non-finite coordinates %s", p)
	}
	return p, nil
}
