package isomp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpliceFragmentUsesTrunPerSampleFlags(t *testing.T) {
	track := &Mp4Track{TrackID: 1}
	frag := TrafFragment{
		HasTrun:                true,
		TrunSampleFlagsPresent: true,
		DefaultSampleFlags:     sampleFlagIsNonSync, // would mark non-sync if consulted
		Entries: []TrunEntry{
			{Size: 10, Duration: 100, Flags: 0},                   // sync
			{Size: 10, Duration: 100, Flags: sampleFlagIsNonSync}, // non-sync
		},
	}

	SpliceFragment(track, frag)

	require.Len(t, track.Samples, 2)
	assert.True(t, track.Samples[0].IsSync)
	assert.False(t, track.Samples[1].IsSync)
}

func TestSpliceFragmentAppliesFirstSampleFlagsOverride(t *testing.T) {
	track := &Mp4Track{TrackID: 1}
	frag := TrafFragment{
		HasTrun:             true,
		HasFirstSampleFlags: true,
		FirstSampleFlags:    sampleFlagIsNonSync,
		DefaultSampleFlags:  0,
		Entries: []TrunEntry{
			{Size: 10, Duration: 100},
			{Size: 10, Duration: 100},
		},
	}

	SpliceFragment(track, frag)

	require.Len(t, track.Samples, 2)
	assert.False(t, track.Samples[0].IsSync, "first sample takes the override")
	assert.True(t, track.Samples[1].IsSync, "later samples fall back to the default")
}

func TestSpliceFragmentFallsBackToDefaultSampleFlags(t *testing.T) {
	track := &Mp4Track{TrackID: 1}
	frag := TrafFragment{
		HasTrun:            true,
		DefaultSampleFlags: sampleFlagIsNonSync,
		Entries: []TrunEntry{
			{Size: 10, Duration: 100},
			{Size: 10, Duration: 100},
		},
	}

	SpliceFragment(track, frag)

	require.Len(t, track.Samples, 2)
	assert.False(t, track.Samples[0].IsSync)
	assert.False(t, track.Samples[1].IsSync)
}

func TestSpliceFragmentNoTrunIsNoop(t *testing.T) {
	track := &Mp4Track{TrackID: 1}
	SpliceFragment(track, TrafFragment{HasTrun: false})
	assert.Empty(t, track.Samples)
}

func TestSpliceFragmentChainsStartTimeFromPriorSamples(t *testing.T) {
	track := &Mp4Track{TrackID: 1, Samples: []SampleOffset{{StartTime: 1000, Duration: 500}}}
	frag := TrafFragment{
		HasTrun: true,
		Entries: []TrunEntry{{Size: 10, Duration: 250}},
	}

	SpliceFragment(track, frag)

	require.Len(t, track.Samples, 2)
	assert.EqualValues(t, 1500, track.Samples[1].StartTime)
	assert.EqualValues(t, 1750, track.Duration)
}
