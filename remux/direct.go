package remux

import (
	"io"

	"github.com/tetsuo/isomp4"
)

// tfhd flags: default-base-is-moof, no other optional field present.
const directTfhdFlags = isomp4.TfhdDefaultBaseIsMoof

// trun flags: data-offset, sample duration/size/flags, and composition
// time offset all present, for every entry.
const directTrunFlags = isomp4.TrunDataOffsetPresent |
	isomp4.TrunSampleDurationPresent |
	isomp4.TrunSampleSizePresent |
	isomp4.TrunSampleFlagsPresent |
	isomp4.TrunSampleCompositionTimeOffsetPresent

// writeMoof writes a complete moof box to w, reusing buf across calls when
// it is large enough. The trun data_offset field is computed from the
// fixed sizes of mfhd/tfhd/tfdt plus the trun itself, since every box
// written here has a statically known size (16 bytes each) independent of
// its contents.
func writeMoof(w io.Writer, seqNum uint32, trackID uint32, baseMediaDecodeTime uint32, entries []isomp4.TrunEntry, buf []byte) ([]byte, error) {
	const (
		moofHeaderSize = 8
		mfhdSize       = 16
		trafHeaderSize = 8
		tfhdSize       = 16
		tfdtSize       = 16
		trunHeaderSize = 20 // full-box header(12) + sample_count(4) + data_offset(4)
		trunEntrySize  = 16 // duration+size+flags+compositionTimeOffset
	)

	n := len(entries)
	trunSize := trunHeaderSize + n*trunEntrySize
	trafSize := trafHeaderSize + tfhdSize + tfdtSize + trunSize
	moofSize := moofHeaderSize + mfhdSize + trafSize
	dataOffset := moofSize + 8 // +8 for the mdat header that follows

	if cap(buf) < moofSize {
		buf = make([]byte, 0, moofSize)
	}
	bw := isomp4.NewWriter(buf[:0])

	bw.StartBox(isomp4.TypeMoof)
	bw.WriteMfhd(seqNum)

	bw.StartBox(isomp4.TypeTraf)
	bw.WriteTfhd(directTfhdFlags, isomp4.TfhdFields{TrackID: trackID})
	bw.WriteTfdt(uint64(baseMediaDecodeTime))
	bw.WriteTrun(directTrunFlags, int32(dataOffset), entries)
	bw.EndBox() // traf

	bw.EndBox() // moof

	out := bw.Bytes()
	_, err := w.Write(out)
	return out, err
}
