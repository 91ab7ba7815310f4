// Package match holds keypoint correspondences produced by the matching stage.
package match

import (
	"fmt"

	"docalign/pkg/geometry"
)

// Match is one correspondence between a template point and a target point.
// A Match is immutable; its identity is its pointer.
type Match struct {
	keypointID    string
	templatePoint geometry.Point2D
	targetPoint   geometry.Point2D
	debugID       string
}

// KeypointID returns the keypoint this match was found for.
func (m *Match) KeypointID() string { return m.keypointID }

// TemplatePoint returns the point in template coordinates.
func (m *Match) TemplatePoint() geometry.Point2D { return m.templatePoint }

// TargetPoint returns the point in target image coordinates.
func (m *Match) TargetPoint() geometry.Point2D { return m.targetPoint }

// DebugID returns a stable identifier of the form <keypoint>_<index>.
func (m *Match) DebugID() string { return m.debugID }

func (m *Match) String() string {
	return fmt.Sprintf("%s %v -> %v", m.debugID, m.templatePoint, m.targetPoint)
}

// Result is the set of matches found for a template, grouped by keypoint.
type Result struct {
	templateID string
	order      []string
	buckets    map[string][]*Match
	all        []*Match
}

// TemplateID returns the template the matches were computed against.
func (r *Result) TemplateID() string { return r.templateID }

// KeypointIDs returns the known keypoints in insertion order.
func (r *Result) KeypointIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// MatchesForKeypoint returns the matches of one keypoint. Unknown keypoints yield nil.
func (r *Result) MatchesForKeypoint(keypointID string) []*Match {
	bucket := r.buckets[keypointID]
	out := make([]*Match, len(bucket))
	copy(out, bucket)
	return out
}

// Matches returns every match, ordered by keypoint then by insertion.
func (r *Result) Matches() []*Match {
	out := make([]*Match, len(r.all))
	copy(out, r.all)
	return out
}

// TotalMatchCount returns the number of matches over all keypoints.
func (r *Result) TotalMatchCount() int { return len(r.all) }

// MatchCount returns the number of matches for one keypoint.
func (r *Result) MatchCount(keypointID string) int { return len(r.buckets[keypointID]) }

// HasKeypoint reports whether the keypoint is known, matched or not.
func (r *Result) HasKeypoint(keypointID string) bool {
	_, ok := r.buckets[keypointID]
	return ok
}

// Builder assembles a Result. It is not safe for concurrent use.
type Builder struct {
	templateID string
	order      []string
	buckets    map[string][]*Match
	built      bool
}

// NewBuilder starts a result for the given template.
func NewBuilder(templateID string) *Builder {
	return &Builder{
		templateID: templateID,
		buckets:    make(map[string][]*Match),
	}
}

// AddKeypoint registers a keypoint even if it ends up without matches.
func (b *Builder) AddKeypoint(keypointID string) *Builder {
	if b.built {
		panic("match: AddKeypoint called after Build")
	}
	if _, ok := b.buckets[keypointID]; !ok {
		b.order = append(b.order, keypointID)
		b.buckets[keypointID] = nil
	}
	return b
}

// Add records a correspondence for the keypoint and returns it.
func (b *Builder) Add(keypointID string, templatePoint, targetPoint geometry.Point2D) *Match {
	if b.built {
		panic("match: Add called after Build")
	}
	b.AddKeypoint(keypointID)
	m := &Match{
		keypointID:    keypointID,
		templatePoint: templatePoint,
		targetPoint:   targetPoint,
		debugID:       fmt.Sprintf("%s_%d", keypointID, len(b.buckets[keypointID])),
	}
	b.buckets[keypointID] = append(b.buckets[keypointID], m)
	return m
}

// Build freezes the builder into a Result.
func (b *Builder) Build() *Result {
	b.built = true
	r := &Result{
		templateID: b.templateID,
		order:      append([]string(nil), b.order...),
		buckets:    make(map[string][]*Match, len(b.buckets)),
	}
	for _, id := range b.order {
		ms := append([]*Match(nil), b.buckets[id]...)
		r.buckets[id] = ms
		r.all = append(r.all, ms...)
	}
	return r
}
