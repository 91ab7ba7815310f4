package match

import (
	"testing"

	"docalign/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Buckets(t *testing.T) {
	b := NewBuilder("tpl")
	b.AddKeypoint("empty")
	m1 := b.Add("kp1", geometry.NewPoint2D(1, 2), geometry.NewPoint2D(3, 4))
	m2 := b.Add("kp1", geometry.NewPoint2D(5, 6), geometry.NewPoint2D(7, 8))
	m3 := b.Add("kp2", geometry.NewPoint2D(0, 0), geometry.NewPoint2D(1, 1))
	r := b.Build()

	assert.Equal(t, "tpl", r.TemplateID())
	assert.Equal(t, []string{"empty", "kp1", "kp2"}, r.KeypointIDs())
	assert.Equal(t, 3, r.TotalMatchCount())
	assert.Equal(t, 0, r.MatchCount("empty"))
	assert.True(t, r.HasKeypoint("empty"))
	assert.False(t, r.HasKeypoint("missing"))
	assert.Equal(t, []*Match{m1, m2}, r.MatchesForKeypoint("kp1"))
	assert.Equal(t, []*Match{m1, m2, m3}, r.Matches())

	assert.Equal(t, "kp1_0", m1.DebugID())
	assert.Equal(t, "kp1_1", m2.DebugID())
	assert.Equal(t, "kp2_0", m3.DebugID())
	assert.Equal(t, "kp1", m2.KeypointID())
	assert.Equal(t, geometry.NewPoint2D(5, 6), m2.TemplatePoint())
	assert.Equal(t, geometry.NewPoint2D(7, 8), m2.TargetPoint())
}

func TestResult_ReturnsCopies(t *testing.T) {
	b := NewBuilder("tpl")
	b.Add("kp", geometry.NewPoint2D(0, 0), geometry.NewPoint2D(0, 0))
	r := b.Build()

	all := r.Matches()
	all[0] = nil
	assert.NotNil(t, r.Matches()[0])

	ids := r.KeypointIDs()
	ids[0] = "changed"
	assert.Equal(t, "kp", r.KeypointIDs()[0])
}

func TestBuilder_AddAfterBuildPanics(t *testing.T) {
	b := NewBuilder("tpl")
	b.Build()
	assert.Panics(t, func() {
		b.Add("kp", geometry.Point2D{}, geometry.Point2D{})
	})
}

func TestBuilder_AddKeypointAfterBuildPanics(t *testing.T) {
	b := NewBuilder("tpl")
	b.Add("kp", geometry.NewPoint2D(0, 0), geometry.NewPoint2D(1, 1))
	r := b.Build()
	assert.Panics(t, func() {
		b.AddKeypoint("late")
	})
	assert.False(t, r.HasKeypoint("late"))
	assert.Equal(t, []string{"kp"}, r.KeypointIDs())
	assert.Equal(t, 1, r.TotalMatchCount())
}

func TestParse(t *testing.T) {
	data := []byte(`
template: passport
keypoints:
  - id: a
    matches:
      - template: [0, 0]
        target: [10, 20]
      - template: [1, 0]
        target: [12, 20]
  - id: b
    matches: []
`)
	r, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "passport", r.TemplateID())
	assert.Equal(t, 2, r.TotalMatchCount())
	assert.True(t, r.HasKeypoint("b"))
	assert.Equal(t, geometry.NewPoint2D(12, 20), r.MatchesForKeypoint("a")[1].TargetPoint())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "keypoints: [\n"},
		{"missing id", "keypoints:\n  - matches: []\n"},
		{"short point", "keypoints:\n  - id: a\n    matches:\n      - template: [1]\n        target: [1, 2]\n"},
		{"infinite coordinate", "keypoints:\n  - id: a\n    matches:\n      - template: [.inf, 0]\n        target: [1, 2]\n"},
		{"nan coordinate", "keypoints:\n  - id: a\n    matches:\n      - template: [1, 0]\n        target: [.nan, 2]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}
