package remux

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isomp4"
)

// rawBox builds a minimal, empty-payload box with the given type, standing
// in for a real avc1/mp4a sample entry: buildInitSegment only ever replays
// these bytes, it never interprets them.
func rawBox(t isomp4.BoxType) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[:4], 8)
	copy(buf[4:8], t[:])
	return buf
}

func TestBuildInitSegmentRoundTrips(t *testing.T) {
	mvhd := isomp4.MvhdInfo{Timescale: 90000, Duration: 900000, NextTrackID: 2}
	mt := &isomp4.Mp4Track{
		TrackID:        1,
		Timescale:      90000,
		HandlerType:    videoHandler,
		Codec:          isomp4.TypeAvc1,
		SampleEntryRaw: rawBox(isomp4.TypeAvc1),
	}
	track := &Track{TrackID: 1, TimeScale: 90000, defaultSampleDescriptionIndex: 1}

	out, err := buildInitSegment(mvhd, mt, track)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	sc := isomp4.NewScanner(bytes.NewReader(out))
	var sawFtyp, sawMoov bool
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case isomp4.TypeFtyp:
			sawFtyp = true
		case isomp4.TypeMoov:
			sawMoov = true
			buf := make([]byte, e.DataSize())
			require.NoError(t, sc.ReadBody(buf))
			assertMoovHasTrakAndMvex(t, buf)
		}
	}
	require.NoError(t, sc.Err())
	assert.True(t, sawFtyp, "expected a ftyp box")
	assert.True(t, sawMoov, "expected a moov box")
}

func assertMoovHasTrakAndMvex(t *testing.T, moov []byte) {
	t.Helper()
	r := isomp4.NewReader(moov)
	var sawTrak, sawMvex bool
	for r.Next() {
		switch r.Type() {
		case isomp4.TypeTrak:
			sawTrak = true
		case isomp4.TypeMvex:
			sawMvex = true
		}
	}
	assert.True(t, sawTrak, "moov should contain trak")
	assert.True(t, sawMvex, "moov should contain mvex")
}

func TestBuildInitSegmentRejectsMissingSampleEntry(t *testing.T) {
	mvhd := isomp4.MvhdInfo{Timescale: 90000}
	mt := &isomp4.Mp4Track{TrackID: 1, Timescale: 90000, HandlerType: videoHandler}
	track := &Track{TrackID: 1, TimeScale: 90000}

	_, err := buildInitSegment(mvhd, mt, track)
	assert.Error(t, err)
}

func TestTrackDuration(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 10, 0, true),
		sampleAt(10, 10, 1000, false),
	}}
	assert.Equal(t, 2.0, track.Duration())
}

func TestTrackDurationEmpty(t *testing.T) {
	track := &Track{TimeScale: 1000}
	assert.Equal(t, 0.0, track.Duration())
}

func TestFindSampleAfter(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 10, 0, true),
		sampleAt(10, 10, 1000, true),
		sampleAt(20, 10, 2000, true),
	}}
	assert.Equal(t, 1, track.FindSampleAfter(1.0))
	assert.Equal(t, 0, track.FindSampleAfter(0.0))
	assert.Equal(t, 3, track.FindSampleAfter(10.0))
}

func TestFindSampleBeforeWalksBackToSync(t *testing.T) {
	track := &Track{TimeScale: 1000, Samples: []isomp4.SampleOffset{
		sampleAt(0, 10, 0, true),
		sampleAt(10, 10, 1000, false),
		sampleAt(20, 10, 2000, false),
	}}
	assert.Equal(t, 0, track.FindSampleBefore(2.0))
}

func TestErrTrackNotFound(t *testing.T) {
	err := errTrackNotFound(7)
	assert.Contains(t, err.Error(), "7")
}
