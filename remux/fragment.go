package remux

import "github.com/tetsuo/isomp4"

// byteRange is a contiguous span of the source file to copy verbatim into
// an mdat. Adjacent sample ranges are coalesced into one byteRange so the
// writer issues as few Seek+Read calls as possible.
type byteRange struct {
	Start, End int64
}

// sampleFlags for a trun entry: sync samples depend on no other sample;
// non-sync samples depend on another and set the is-non-sync-sample bit.
const (
	syncSampleFlags    = 0x02000000
	nonSyncSampleFlags = 0x01010000
)

// generateFragment builds one moof/mdat worth of samples starting at
// firstSample, stopping either at endTimeScaled (a hard cut requested by
// the caller) or at the first sync sample reached after at least
// minFragmentDuration of media time has elapsed. trunEntries and ranges
// are reused across calls to avoid reallocating per fragment.
func generateFragment(track *Track, firstSample int, endTimeScaled int64, trunEntries []isomp4.TrunEntry, ranges []byteRange) ([]isomp4.TrunEntry, []byteRange, int64, int) {
	trunEntries = trunEntries[:0]
	ranges = ranges[:0]

	if firstSample >= len(track.Samples) {
		return trunEntries, ranges, 0, firstSample
	}

	minDuration := int64(minFragmentDuration) * int64(track.TimeScale)
	fragmentStart := int64(track.Samples[firstSample].StartTime)

	var mdatSize int64
	sample := firstSample

	for sample < len(track.Samples) {
		s := track.Samples[sample]

		if endTimeScaled > 0 {
			pts := int64(s.StartTime) + int64(s.RenderingOffset)
			if pts >= endTimeScaled {
				break
			}
		}

		// Stop at a sync sample once the fragment has run long enough,
		// but never emit an empty fragment.
		if sample > firstSample && s.IsSync && int64(s.StartTime)-fragmentStart >= minDuration {
			break
		}

		flags := uint32(nonSyncSampleFlags)
		if s.IsSync {
			flags = syncSampleFlags
		}

		trunEntries = append(trunEntries, isomp4.TrunEntry{
			Duration:              s.Duration,
			Size:                  s.Size,
			Flags:                 flags,
			CompositionTimeOffset: s.RenderingOffset,
		})

		start := int64(s.FileOffset)
		end := start + int64(s.Size)
		if n := len(ranges); n > 0 && ranges[n-1].End == start {
			ranges[n-1].End = end
		} else {
			ranges = append(ranges, byteRange{Start: start, End: end})
		}
		mdatSize += int64(s.Size)

		sample++
	}

	return trunEntries, ranges, mdatSize, sample
}
