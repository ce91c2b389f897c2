package remux

import (
	"encoding/binary"
	"io"

	"github.com/tetsuo/isomp4"
)

// Writer holds reusable buffers for writing fragmented MP4 streams.
//
// A Writer is NOT safe for concurrent use. Use one Writer per goroutine,
// or protect with a mutex.
type Writer struct {
	trunEntries []isomp4.TrunEntry
	ranges      []byteRange
	copyBuf     []byte
	moofBuf     []byte
	mdatHdr     [8]byte
}

// NewWriter creates a Writer with pre-allocated buffers.
func NewWriter() *Writer {
	return &Writer{
		trunEntries: make([]isomp4.TrunEntry, 0, 512),
		ranges:      make([]byteRange, 0, 64),
		copyBuf:     make([]byte, 32768),
		moofBuf:     make([]byte, 0, 8192),
	}
}

// WriteTo writes a complete fragmented MP4 stream for a single track to w.
// rs must support Seek+Read (e.g. *[os.File]).
// For concurrent use with a shared file, use [Writer.WriteToFrom] with [io.ReaderAt] instead.
func (wr *Writer) WriteTo(w io.Writer, rs io.ReadSeeker, track *Track, startTime float64, endTime float64) error {
	firstSample, dtsOffset, endTimeScaled := wr.resolveRange(track, startTime, endTime)

	if _, err := w.Write(track.InitSegment()); err != nil {
		return err
	}

	var seqNum uint32 = 1
	sample := firstSample

	for sample < len(track.Samples) {
		if endTimeScaled > 0 {
			pts := int64(track.Samples[sample].StartTime) + int64(track.Samples[sample].RenderingOffset)
			if pts >= endTimeScaled {
				break
			}
		}

		var mdatSize int64
		var nextSample int
		wr.trunEntries, wr.ranges, mdatSize, nextSample = generateFragment(track, sample, endTimeScaled, wr.trunEntries, wr.ranges)
		if len(wr.trunEntries) == 0 {
			break
		}

		baseMediaDecodeTime := uint32(int64(track.Samples[sample].StartTime) - dtsOffset)
		var err error
		wr.moofBuf, err = writeMoof(w, seqNum, track.TrackID, baseMediaDecodeTime, wr.trunEntries, wr.moofBuf)
		if err != nil {
			return err
		}

		binary.BigEndian.PutUint32(wr.mdatHdr[:4], uint32(8+mdatSize))
		copy(wr.mdatHdr[4:8], "mdat")
		if _, err := w.Write(wr.mdatHdr[:]); err != nil {
			return err
		}

		for _, r := range wr.ranges {
			if _, err := rs.Seek(r.Start, io.SeekStart); err != nil {
				return err
			}
			remaining := r.End - r.Start
			for remaining > 0 {
				n := min(int64(len(wr.copyBuf)), remaining)
				nr, err := rs.Read(wr.copyBuf[:n])
				if nr > 0 {
					if _, werr := w.Write(wr.copyBuf[:nr]); werr != nil {
						return werr
					}
					remaining -= int64(nr)
				}
				if err != nil {
					if err == io.EOF && remaining == 0 {
						break
					}
					return err
				}
			}
		}

		seqNum++
		sample = nextSample
	}

	return nil
}

// WriteToFrom writes a complete fragmented MP4 stream using an [io.ReaderAt].
// Unlike [Writer.WriteTo], this is safe to use with a single shared *[os.File] from multiple
// goroutines (each with their own Writer), because [io.ReaderAt.ReadAt] does not mutate file position.
func (wr *Writer) WriteToFrom(w io.Writer, ra io.ReaderAt, track *Track, startTime float64, endTime float64) error {
	firstSample, dtsOffset, endTimeScaled := wr.resolveRange(track, startTime, endTime)

	if _, err := w.Write(track.InitSegment()); err != nil {
		return err
	}

	var seqNum uint32 = 1
	sample := firstSample

	for sample < len(track.Samples) {
		if endTimeScaled > 0 {
			pts := int64(track.Samples[sample].StartTime) + int64(track.Samples[sample].RenderingOffset)
			if pts >= endTimeScaled {
				break
			}
		}

		var mdatSize int64
		var nextSample int
		wr.trunEntries, wr.ranges, mdatSize, nextSample = generateFragment(track, sample, endTimeScaled, wr.trunEntries, wr.ranges)
		if len(wr.trunEntries) == 0 {
			break
		}

		baseMediaDecodeTime := uint32(int64(track.Samples[sample].StartTime) - dtsOffset)
		var err error
		wr.moofBuf, err = writeMoof(w, seqNum, track.TrackID, baseMediaDecodeTime, wr.trunEntries, wr.moofBuf)
		if err != nil {
			return err
		}

		binary.BigEndian.PutUint32(wr.mdatHdr[:4], uint32(8+mdatSize))
		copy(wr.mdatHdr[4:8], "mdat")
		if _, err := w.Write(wr.mdatHdr[:]); err != nil {
			return err
		}

		for _, r := range wr.ranges {
			off := r.Start
			remaining := r.End - r.Start
			for remaining > 0 {
				n := min(int64(len(wr.copyBuf)), remaining)
				nr, err := ra.ReadAt(wr.copyBuf[:n], off)
				if nr > 0 {
					if _, werr := w.Write(wr.copyBuf[:nr]); werr != nil {
						return werr
					}
					off += int64(nr)
					remaining -= int64(nr)
				}
				if err != nil {
					if err == io.EOF && remaining == 0 {
						break
					}
					return err
				}
			}
		}

		seqNum++
		sample = nextSample
	}

	return nil
}

// WriteTo writes a fragmented MP4 stream for the named track of r to w,
// using a throwaway Writer. Callers issuing many requests should keep
// their own Writer via [NewWriter] instead, to reuse its buffers.
func WriteTo(w io.Writer, rs io.ReadSeeker, r *Remuxer, trackID uint32, startTime, endTime float64) error {
	for _, t := range r.Tracks {
		if t.TrackID == trackID {
			return NewWriter().WriteTo(w, rs, t, startTime, endTime)
		}
	}
	return errTrackNotFound(trackID)
}

func (wr *Writer) resolveRange(track *Track, startTime float64, endTime float64) (firstSample int, dtsOffset int64, endTimeScaled int64) {
	if endTime > 0 {
		endTimeScaled = int64(endTime * float64(track.TimeScale))
	}

	if len(track.Samples) == 0 {
		return 0, 0, endTimeScaled
	}

	firstSample = track.FindSampleAfter(startTime)

	if endTime > 0 && firstSample < len(track.Samples) {
		pts := int64(track.Samples[firstSample].StartTime) + int64(track.Samples[firstSample].RenderingOffset)
		if pts >= endTimeScaled {
			firstSample = track.FindSampleBefore(startTime)
		}
	}

	if firstSample >= len(track.Samples) {
		firstSample = len(track.Samples) - 1
	}
	dtsOffset = int64(track.Samples[firstSample].StartTime)

	return
}
