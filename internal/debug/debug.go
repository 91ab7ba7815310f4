// Package debug collects diagnostic images produced while analyzing a document.
// A nil *Container is valid and discards everything.
package debug

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"docalign/internal/supervision"
	"docalign/pkg/colorutil"
	"docalign/pkg/geometry"
)

type entry struct {
	name string
	img  gocv.Mat
}

// Container holds named images until they are exported.
type Container struct {
	mu      sync.Mutex
	entries []entry
}

// New returns an empty container.
func New() *Container {
	return &Container{}
}

// Add stores a copy of img under name.
func (c *Container) Add(name string, img gocv.Mat) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{name: name, img: img.Clone()})
}

// Names returns the stored image names in insertion order.
func (c *Container) Names() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Export writes every image to dir as <index>_<name>.png and returns the paths.
func (c *Container) Export(dir string) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create debug directory")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.entries))
	for i, e := range c.entries {
		path := filepath.Join(dir, fmt.Sprintf("%02d_%s.png", i, unsafeName.ReplaceAllString(e.name, "_")))
		if !gocv.IMWrite(path, e.img) {
			return paths, errors.Errorf("failed to write %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Close releases the stored images.
func (c *Container) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.img.Close()
	}
	c.entries = nil
}

// DrawMatches draws every match of res onto a copy of target: a line from the
// predicted to the observed position, and a dot colored by the match weight.
func DrawMatches(target gocv.Mat, res *supervision.Result) (gocv.Mat, error) {
	out := colorCopy(target)
	for _, m := range res.Matches().Matches() {
		pred, err := res.Translate(m.TemplatePoint())
		if err != nil {
			out.Close()
			return gocv.NewMat(), err
		}
		obs := toImagePoint(m.TargetPoint())
		gocv.Line(&out, toImagePoint(pred), obs, colorutil.Yellow, 1)
		gocv.Circle(&out, obs, 4, colorutil.ForWeight(res.MatchWeight(m)), -1)
	}
	return out, nil
}

// DrawQuads outlines where named template regions land on a copy of target.
func DrawQuads(target gocv.Mat, res *supervision.Result, regions map[string]geometry.Rect) (gocv.Mat, error) {
	out := colorCopy(target)
	for name, r := range regions {
		quad, err := res.FeatureQuad(r)
		if err != nil {
			out.Close()
			return gocv.NewMat(), err
		}
		for i := range quad {
			gocv.Line(&out, toImagePoint(quad[i]), toImagePoint(quad[(i+1)%4]), colorutil.Green, 2)
		}
		bb := geometry.BoundingBox(quad[:])
		gocv.PutText(&out, name, toImagePoint(bb.TopLeft()).Add(image.Pt(2, -4)), gocv.FontHersheyPlain, 1.0, colorutil.Green, 1)
	}
	return out, nil
}

func colorCopy(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if img.Channels() == 1 {
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	} else {
		img.CopyTo(&out)
	}
	return out
}

func toImagePoint(p geometry.Point2D) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}
