package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline/elements"
)

func TestPipeline_Empty(t *testing.T) {
	p := pipeline.New(nil)

	status := p.Status()
	assert.Equal(t, 0, status.ChildCount)
	assert.Equal(t, 0, status.ActiveConnections)
	assert.Empty(t, status.Groups)

	p.Stop()
}

func TestPipeline_LinearSourceToSink(t *testing.T) {
	p := pipeline.New(nil)

	source := elements.NewTestDataSource[int]("source", 10*time.Millisecond, 100*time.Millisecond, func(n int) int { return n })
	sink := elements.NewCollectorSink[int]("sink")

	err := p.BuildLinear("g1", []pipeline.Child{
		pipeline.Owned(source, pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(sink, pipeline.ChildSink, pipeline.DefaultInput()),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, p.Status().ActiveConnections)

	p.WaitForCompletion()
	p.Stop()

	collected := sink.Collected()
	assert.GreaterOrEqual(t, len(collected), 1)
	assert.LessOrEqual(t, len(collected), 12)
}

func TestPipeline_RebuildReplacesSchema(t *testing.T) {
	p := pipeline.New(nil)

	source := elements.NewTestDataSource[int]("source", 5*time.Millisecond, time.Second, func(n int) int { return n })
	sink := elements.NewCollectorSink[int]("sink")

	err := p.BuildLinear("g1", []pipeline.Child{
		pipeline.Owned(source, pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(sink, pipeline.ChildSink, pipeline.DefaultInput()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Status().ActiveConnections)

	filter := elements.NewPassthroughFilter[int]("filter")
	sink2 := elements.NewCollectorSink[int]("sink2")

	err = p.BuildLinear("g2", []pipeline.Child{
		pipeline.Ref("source", pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(filter, pipeline.ChildFilter, pipeline.DefaultOutput()),
		pipeline.Owned(sink2, pipeline.ChildSink, pipeline.DefaultInput()),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, p.Status().ActiveConnections)

	p.Stop()
}

func TestPipeline_DuplicateOwningIDRejected(t *testing.T) {
	p := pipeline.New(nil)

	a := elements.NewCollectorSink[int]("dup")
	b := elements.NewCollectorSink[int]("dup")

	err := p.Spec(
		pipeline.GroupItem{ID: "g1", Children: []pipeline.Child{pipeline.Owned(a, pipeline.ChildSink, pipeline.DefaultInput())}},
		pipeline.GroupItem{ID: "g2", Children: []pipeline.Child{pipeline.Owned(b, pipeline.ChildSink, pipeline.DefaultInput())}},
	)

	assert.ErrorIs(t, err, pipeline.ErrDuplicateID)
}

func TestPipeline_PadTypeMismatchRejected(t *testing.T) {
	p := pipeline.New(nil)

	source := elements.NewTestDataSource[int]("source", time.Millisecond, 10*time.Millisecond, func(n int) int { return n })
	sink := elements.NewCollectorSink[string]("sink")

	err := p.BuildLinear("g1", []pipeline.Child{
		pipeline.Owned(source, pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(sink, pipeline.ChildSink, pipeline.DefaultInput()),
	})

	assert.ErrorIs(t, err, pipeline.ErrPadTypeMismatch)
}

func TestPipeline_RemoveChildDropsEdges(t *testing.T) {
	p := pipeline.New(nil)

	source := elements.NewTestDataSource[int]("source", 5*time.Millisecond, time.Second, func(n int) int { return n })
	sink := elements.NewCollectorSink[int]("sink")

	err := p.BuildLinear("g1", []pipeline.Child{
		pipeline.Owned(source, pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(sink, pipeline.ChildSink, pipeline.DefaultInput()),
	})
	require.NoError(t, err)
	require.Equal(t, 1, p.Status().ActiveConnections)

	p.RemoveChild("source")

	assert.Equal(t, 0, p.Status().ActiveConnections)
}
