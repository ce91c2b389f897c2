// Package remux builds standalone fragmented MP4 streams (an init segment
// plus one or more moof/mdat pairs) from a parsed progressive MP4 source.
// It is a thin consumer of the isomp4 package: all box parsing and sample
// indexing is done by isomp4.File, and remux only concerns itself with
// slicing that sample index into CMAF-style fragments.
package remux

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/tetsuo/isomp4"
)

// minFragmentDuration is the minimum fragment duration in seconds; a
// fragment boundary is only placed at a sync sample once this much media
// time has elapsed since the fragment started.
const minFragmentDuration = 1

// Track holds everything needed to remux one track: its decoded sample
// index (reused verbatim from isomp4.Mp4Track) plus a pre-built init
// segment (ftyp+moov) describing it with zero samples.
type Track struct {
	TrackID   uint32
	TimeScale uint32
	Codec     string
	Mime      string

	Samples []isomp4.SampleOffset

	initBuf                       []byte
	defaultSampleDescriptionIndex uint32
}

// InitSegment returns the pre-built init segment (ftyp+moov) for the track.
func (t *Track) InitSegment() []byte {
	return t.initBuf
}

// Duration returns the track's total duration in seconds.
func (t *Track) Duration() float64 {
	if t.TimeScale == 0 || len(t.Samples) == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return float64(last.StartTime+uint64(last.Duration)) / float64(t.TimeScale)
}

// FindSampleAfter returns the index of the first sample whose decode time
// is at or after timeSeconds.
func (t *Track) FindSampleAfter(timeSeconds float64) int {
	target := int64(timeSeconds * float64(t.TimeScale))
	return sort.Search(len(t.Samples), func(i int) bool {
		return int64(t.Samples[i].StartTime) >= target
	})
}

// FindSampleBefore returns the nearest preceding sync sample to the sample
// at or after timeSeconds.
func (t *Track) FindSampleBefore(timeSeconds float64) int {
	idx := t.FindSampleAfter(timeSeconds)
	if idx >= len(t.Samples) {
		idx = len(t.Samples) - 1
	}
	for idx > 0 && !t.Samples[idx].IsSync {
		idx--
	}
	return idx
}

// Remuxer holds parsed track metadata ready for fragment generation.
type Remuxer struct {
	Tracks []*Track
}

type errTrackNotFound uint32

func (e errTrackNotFound) Error() string {
	return fmt.Sprintf("remux: track %d not found", uint32(e))
}

// NewRemuxer parses an MP4 source (ftyp/moov only; mdat regions are left
// Deferred) and prepares track metadata for remuxing.
func NewRemuxer(ctx context.Context, rs io.ReadSeeker) (*Remuxer, error) {
	f := isomp4.NewFile(rs, isomp4.WithInlineThreshold(0))
	sawMoov, err := f.ReadHeader(ctx)
	if err != nil {
		return nil, err
	}
	if !sawMoov {
		return nil, fmt.Errorf("remux: moov box not found")
	}
	return newRemuxer(f)
}

// NewRemuxerFromBytes parses an in-memory MP4 file.
func NewRemuxerFromBytes(ctx context.Context, data []byte) (*Remuxer, error) {
	return NewRemuxer(ctx, bytes.NewReader(data))
}

var (
	videoHandler = [4]byte{'v', 'i', 'd', 'e'}
	soundHandler = [4]byte{'s', 'o', 'u', 'n'}
)

// newRemuxer selects one video and one audio track from f and builds their
// init segments. Only the first track of each media kind is kept, matching
// a single-video/single-audio output stream.
func newRemuxer(f *isomp4.File) (*Remuxer, error) {
	mvhd, ok := f.Mvhd()
	if !ok {
		return nil, fmt.Errorf("remux: missing mvhd")
	}

	r := &Remuxer{}
	hasVideo := false
	hasAudio := false

	// Tracks() is a map; iterate in track-ID order so output is
	// deterministic across runs.
	ids := make([]uint32, 0, len(f.Tracks()))
	for id := range f.Tracks() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		mt := f.Tracks()[id]

		var codec, mime string
		switch {
		case mt.HandlerType == videoHandler && mt.Codec == isomp4.TypeAvc1:
			if hasVideo {
				continue
			}
			hasVideo = true
			codec = "avc1"
			if mt.CodecMime != "" {
				codec += "." + mt.CodecMime
			}
			mime = fmt.Sprintf(`video/mp4; codecs="%s"`, codec)
		case mt.HandlerType == soundHandler && mt.Codec == isomp4.TypeMp4a:
			if hasAudio {
				continue
			}
			hasAudio = true
			codec = "mp4a"
			if mt.CodecMime != "" {
				codec += "." + mt.CodecMime
			}
			mime = fmt.Sprintf(`audio/mp4; codecs="%s"`, codec)
		default:
			continue
		}

		track := &Track{
			TrackID:                       mt.TrackID,
			TimeScale:                     mt.Timescale,
			Codec:                         codec,
			Mime:                          mime,
			Samples:                       mt.Samples,
			defaultSampleDescriptionIndex: mt.SampleDescriptionIndex,
		}

		initBuf, err := buildInitSegment(mvhd, mt, track)
		if err != nil {
			return nil, fmt.Errorf("remux: track %d init: %w", track.TrackID, err)
		}
		track.initBuf = initBuf

		r.Tracks = append(r.Tracks, track)
	}

	if len(r.Tracks) == 0 {
		return nil, fmt.Errorf("remux: no playable tracks")
	}
	return r, nil
}

// buildInitSegment writes a standalone ftyp+moov describing track with zero
// samples: the original sample entry (avc1/mp4a, with its avcC/esds child)
// is carried over verbatim via Mp4Track.SampleEntryRaw, but every sample
// table is emptied since the fragments themselves carry the sample data.
func buildInitSegment(mvhd isomp4.MvhdInfo, mt *isomp4.Mp4Track, track *Track) ([]byte, error) {
	if len(mt.SampleEntryRaw) == 0 {
		return nil, fmt.Errorf("no sample entry captured for track %d", mt.TrackID)
	}

	buf := make([]byte, 0, 1024+len(mt.SampleEntryRaw))
	w := isomp4.NewWriter(buf)

	w.WriteFtyp([4]byte{'i', 's', 'o', '5'}, 0, [][4]byte{{'i', 's', 'o', '5'}})

	w.StartBox(isomp4.TypeMoov)
	w.WriteMvhd(mvhd.Timescale, 0, mvhd.NextTrackID)

	w.StartBox(isomp4.TypeTrak)
	w.WriteTkhd(0x7, mt.TrackID, 0, 0, 0)

	w.StartBox(isomp4.TypeMdia)
	w.WriteMdhd(mt.Timescale, 0, 0)
	w.WriteHdlr(mt.HandlerType, "")

	w.StartBox(isomp4.TypeMinf)
	switch mt.HandlerType {
	case videoHandler:
		w.WriteVmhd()
	case soundHandler:
		w.WriteSmhd()
	}
	w.StartBox(isomp4.TypeDinf)
	w.WriteDref()
	w.EndBox() // dinf

	w.StartBox(isomp4.TypeStbl)
	w.StartFullBox(isomp4.TypeStsd, 0, 0)
	var entryCount [4]byte
	binary.BigEndian.PutUint32(entryCount[:], 1)
	w.Write(entryCount[:])
	w.Write(mt.SampleEntryRaw)
	w.EndBox() // stsd
	w.WriteStts(nil)
	w.WriteStsc(nil)
	w.WriteStsz(0, nil)
	w.WriteStco(nil)
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak

	w.StartBox(isomp4.TypeMvex)
	w.WriteMehd(mvhd.Duration)
	w.WriteTrex(mt.TrackID, track.defaultSampleDescriptionIndex, 0, 0, 0)
	w.EndBox() // mvex

	w.EndBox() // moov

	return w.Bytes(), nil
}
