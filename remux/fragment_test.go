package remux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isomp4"
)

func sampleAt(offset uint64, size uint32, start uint64, sync bool) isomp4.SampleOffset {
	return isomp4.SampleOffset{
		FileOffset: offset,
		Size:       size,
		Duration:   1000,
		StartTime:  start,
		IsSync:     sync,
	}
}

func TestGenerateFragmentBreaksAtNextSyncAfterMinDuration(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 100, 0, true),
		sampleAt(100, 100, 1000, false),
		sampleAt(200, 100, 2000, true), // 2s elapsed, min duration is 1s: break here
		sampleAt(300, 100, 3000, false),
	}}

	entries, ranges, mdatSize, next := generateFragment(track, 0, 0, nil, nil)

	require.Len(t, entries, 2)
	assert.Equal(t, 2, next)
	assert.Equal(t, int64(200), mdatSize)
	require.Len(t, ranges, 1)
	assert.Equal(t, byteRange{Start: 0, End: 200}, ranges[0])
}

func TestGenerateFragmentIgnoresSyncBeforeMinDuration(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 100, 0, true),
		sampleAt(100, 100, 500, true), // sync but only 0.5s in, must not break here
		sampleAt(200, 100, 1500, true), // 1.5s in, breaks here
	}}

	entries, _, _, next := generateFragment(track, 0, 0, nil, nil)

	require.Len(t, entries, 2)
	assert.Equal(t, 2, next)
}

func TestGenerateFragmentHardEndTimeCut(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 100, 0, true),
		sampleAt(100, 100, 1000, false),
		sampleAt(200, 100, 2000, false),
	}}

	// endTimeScaled cuts after the first sample regardless of sync/duration rules.
	entries, _, _, next := generateFragment(track, 0, 1000, nil, nil)

	require.Len(t, entries, 1)
	assert.Equal(t, 1, next)
}

func TestGenerateFragmentCoalescesContiguousByteRanges(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(1000, 100, 0, true),
		sampleAt(1100, 100, 100, false), // contiguous with previous, same range
		sampleAt(5000, 100, 200, false), // gap: new range
	}}

	_, ranges, mdatSize, next := generateFragment(track, 0, 0, nil, nil)

	assert.Equal(t, 3, next)
	assert.Equal(t, int64(300), mdatSize)
	require.Len(t, ranges, 2)
	assert.Equal(t, byteRange{Start: 1000, End: 1200}, ranges[0])
	assert.Equal(t, byteRange{Start: 5000, End: 5100}, ranges[1])
}

func TestGenerateFragmentFlagsSyncVsNonSync(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 100, 0, true),
		sampleAt(100, 100, 100, false),
	}}

	entries, _, _, _ := generateFragment(track, 0, 150, nil, nil)

	require.Len(t, entries, 2)
	assert.EqualValues(t, syncSampleFlags, entries[0].Flags)
	assert.EqualValues(t, nonSyncSampleFlags, entries[1].Flags)
}

func TestGenerateFragmentAtEndOfTrackReturnsEmpty(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 100, 0, true),
	}}

	entries, ranges, mdatSize, next := generateFragment(track, 1, 0, nil, nil)

	assert.Empty(t, entries)
	assert.Empty(t, ranges)
	assert.Equal(t, int64(0), mdatSize)
	assert.Equal(t, 1, next)
}
