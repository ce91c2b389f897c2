package remux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/isomp4"
)

func TestWriteToEmptyTrackDoesNotPanic(t *testing.T) {
	track := &Track{
		TrackID:   1,
		TimeScale: 90000,
		initBuf:   rawBox(isomp4.TypeMoov),
	}

	var out bytes.Buffer
	assert.NotPanics(t, func() {
		err := NewWriter().WriteTo(&out, bytes.NewReader(nil), track, 0, 0)
		require.NoError(t, err)
	})
	assert.Equal(t, track.InitSegment(), out.Bytes())
}

func TestResolveRangeEmptyTrack(t *testing.T) {
	track := &Track{TrackID: 1, TimeScale: 1000}

	firstSample, dtsOffset, endTimeScaled := (&Writer{}).resolveRange(track, 2.5, 5)
	assert.Equal(t, 0, firstSample)
	assert.EqualValues(t, 0, dtsOffset)
	assert.EqualValues(t, 5000, endTimeScaled)
}
