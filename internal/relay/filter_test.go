package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quirze62/nodus/internal/types"
)

func TestBuildWireFilterOmitsUnsetFields(t *testing.T) {
	wire := BuildWireFilter(types.Filter{})
	assert.Empty(t, wire)
}

func TestBuildWireFilterFullMapping(t *testing.T) {
	since := int64(1000)
	until := int64(2000)

	wire := BuildWireFilter(types.Filter{
		IDs:     []string{"id1"},
		Authors: []string{"pk1", "pk2"},
		Kinds:   []int{1, 7},
		Limit:   50,
		Since:   &since,
		Until:   &until,
		ETags:   []string{"e1"},
		PTags:   []string{"p1"},
	})

	assert.Equal(t, []string{"id1"}, wire["ids"])
	assert.Equal(t, []string{"pk1", "pk2"}, wire["authors"])
	assert.Equal(t, []int{1, 7}, wire["kinds"])
	assert.Equal(t, 50, wire["limit"])
	assert.Equal(t, int64(1000), wire["since"])
	assert.Equal(t, int64(2000), wire["until"])
	assert.Equal(t, []string{"e1"}, wire["#e"])
	assert.Equal(t, []string{"p1"}, wire["#p"])
}
