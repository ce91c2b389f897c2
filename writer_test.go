package isomp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFtypRoundTrips(t *testing.T) {
	w := NewWriter(make([]byte, 0, 64))
	w.WriteFtyp([4]byte{'i', 's', 'o', '5'}, 1, [][4]byte{{'m', 'p', '4', '1'}, {'i', 's', 'o', '5'}})

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, TypeFtyp, r.Type())

	f := ReadFtyp(r.Data())
	assert.Equal(t, [4]byte{'i', 's', 'o', '5'}, f.MajorBrand)
	assert.EqualValues(t, 1, f.MinorVersion)
	require.Len(t, f.Compatible, 2)
	assert.Equal(t, [4]byte{'m', 'p', '4', '1'}, f.Compatible[0])
}

func TestWriterMvhdRoundTrips(t *testing.T) {
	w := NewWriter(make([]byte, 0, 128))
	w.WriteMvhd(90000, 900000, 7)

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, TypeMvhd, r.Type())

	ts, dur, next := r.ReadMvhd()
	assert.EqualValues(t, 90000, ts)
	assert.EqualValues(t, 900000, dur)
	assert.EqualValues(t, 7, next)
}

func TestWriterNestedBoxesBalanceSizes(t *testing.T) {
	w := NewWriter(make([]byte, 0, 256))
	w.StartBox(TypeMoov)
	w.WriteMvhd(1000, 2000, 2)
	w.StartBox(TypeTrak)
	w.WriteTkhd(0x7, 1, 2000, 640<<16, 480<<16)
	w.EndBox() // trak
	w.EndBox() // moov

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, TypeMoov, r.Type())
	assert.EqualValues(t, len(w.Bytes()), r.Size())

	r.Enter()
	require.True(t, r.Next())
	assert.Equal(t, TypeMvhd, r.Type())
	require.True(t, r.Next())
	assert.Equal(t, TypeTrak, r.Type())

	r.Enter()
	require.True(t, r.Next())
	assert.Equal(t, TypeTkhd, r.Type())
	tid, dur, width, height := r.ReadTkhd()
	assert.EqualValues(t, 1, tid)
	assert.EqualValues(t, 2000, dur)
	assert.EqualValues(t, 640, width>>16)
	assert.EqualValues(t, 480, height>>16)
	assert.False(t, r.Next())
	r.Exit()

	assert.False(t, r.Next()) // no more children of moov after trak
	r.Exit()
}

func TestWriterTrunRoundTrips(t *testing.T) {
	entries := []TrunEntry{
		{Duration: 1000, Size: 512, Flags: 0x02000000, CompositionTimeOffset: 0},
		{Duration: 1000, Size: 256, Flags: 0x01010000, CompositionTimeOffset: -40},
	}
	flags := uint32(TrunDataOffsetPresent | TrunSampleDurationPresent |
		TrunSampleSizePresent | TrunSampleFlagsPresent | TrunSampleCompositionTimeOffsetPresent)

	w := NewWriter(make([]byte, 0, 128))
	w.WriteTrun(flags, 64, entries)

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	assert.Equal(t, TypeTrun, r.Type())

	it := NewTrunIter(r.Data(), r.Flags())
	assert.EqualValues(t, 2, it.Count())
	assert.EqualValues(t, 64, it.DataOffset())
}
