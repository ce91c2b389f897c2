package isomp4

// SampleOffset describes one sample's position, timing, and sync status
// within the media. Offsets are absolute into the original source.
type SampleOffset struct {
	FileOffset      uint64
	Size            uint32
	Duration        uint32
	StartTime       uint64
	RenderingOffset int32
	IsSync          bool
	ChunkID         uint32
}

// Mp4Track is a decoded track: the header fields carried over from tkhd/mdhd
// plus the flattened sample index built from stbl (and extended by any
// subsequent traf merges).
type Mp4Track struct {
	TrackID     uint32
	Duration    uint64 // in Timescale ticks
	Timescale   uint32
	HandlerType [4]byte
	Codec       BoxType // avc1, hev1, hvc1, vp09, mp4a, tx3g, or the zero value if unknown
	CodecMime   string  // codec parameter suffix, e.g. "640028" or "40.2"
	Samples     []SampleOffset

	// SampleDescriptionIndex is the stsd entry index (1-based) that this
	// track's samples were built against, taken from the last stsc entry.
	SampleDescriptionIndex uint32

	// SampleEntryRaw is the verbatim bytes (including box header) of the
	// chosen stsd sample entry, kept so downstream muxers (see remux) can
	// reuse the original codec configuration without re-encoding it.
	SampleEntryRaw []byte

	avcSPS, avcPPS [][]byte
	hevcParamSets  [][]byte
}

// SampleIndexInput carries the parsed stbl tables needed to build a flat
// sample index for a single track. ChunkOffsets is the already-resolved
// concatenation of stco or co64 entries.
type SampleIndexInput struct {
	Stts                  []SttsEntry
	DefaultSampleDuration uint32

	Ctts []CttsEntry

	Stsc         []StscEntry
	ChunkOffsets []uint64

	SampleCount uint32
	SampleSize  uint32 // constant size; 0 means use SampleSizes
	SampleSizes []uint32

	HasSyncTable bool
	SyncSamples  []uint32 // 1-based, ascending
}

// sttsCursor walks stts run-length entries left to right, yielding
// (start_time, duration) for each sample. Once exhausted it falls back to
// a sentinel run using DefaultSampleDuration, per spec §4.4.
type sttsCursor struct {
	entries   []SttsEntry
	entryIdx  int
	remaining uint32
	delta     uint32
	t         uint64
	fallback  uint32
}

func newSttsCursor(entries []SttsEntry, fallback uint32) *sttsCursor {
	c := &sttsCursor{entries: entries, fallback: fallback}
	c.loadNext()
	return c
}

func (c *sttsCursor) loadNext() {
	for c.entryIdx < len(c.entries) && c.entries[c.entryIdx].Count == 0 {
		c.entryIdx++
	}
	if c.entryIdx < len(c.entries) {
		c.remaining = c.entries[c.entryIdx].Count
		c.delta = c.entries[c.entryIdx].Duration
		c.entryIdx++
	} else {
		c.remaining = 0
		c.delta = c.fallback
	}
}

func (c *sttsCursor) next() (startTime uint64, duration uint32) {
	if c.remaining == 0 {
		c.loadNext()
	}
	startTime = c.t
	duration = c.delta
	c.t += uint64(duration)
	if c.remaining > 0 {
		c.remaining--
	}
	return
}

// cttsCursor walks ctts run-length entries; exhaustion yields 0 forever,
// per the spec's explicit "no padding beyond the last entry" semantics.
type cttsCursor struct {
	entries   []CttsEntry
	entryIdx  int
	remaining uint32
	offset    int32
}

func newCttsCursor(entries []CttsEntry) *cttsCursor {
	return &cttsCursor{entries: entries}
}

func (c *cttsCursor) next() int32 {
	for c.remaining == 0 {
		if c.entryIdx >= len(c.entries) {
			return 0
		}
		c.remaining = c.entries[c.entryIdx].Count
		c.offset = c.entries[c.entryIdx].Offset
		c.entryIdx++
		if c.remaining == 0 {
			continue
		}
	}
	c.remaining--
	return c.offset
}

// syncCursor reports whether the next 1-based sample index is a sync
// sample. Absence of an stss table means every sample is sync.
type syncCursor struct {
	present bool
	entries []uint32
	idx     int
}

func newSyncCursor(present bool, entries []uint32) *syncCursor {
	return &syncCursor{present: present, entries: entries}
}

func (c *syncCursor) next(sampleNumber uint32) bool {
	if !c.present {
		return true
	}
	if c.idx < len(c.entries) && c.entries[c.idx] == sampleNumber {
		c.idx++
		return true
	}
	return false
}

// stscResolver answers, for an ascending sequence of 1-based chunk numbers,
// which stsc entry governs that chunk's sample count.
type stscResolver struct {
	entries []StscEntry
	idx     int
}

func newStscResolver(entries []StscEntry) *stscResolver {
	return &stscResolver{entries: entries}
}

func (r *stscResolver) samplesPerChunk(chunkNumber uint32) uint32 {
	if len(r.entries) == 0 {
		return 0
	}
	for r.idx+1 < len(r.entries) && r.entries[r.idx+1].FirstChunk <= chunkNumber {
		r.idx++
	}
	return r.entries[r.idx].SamplesPerChunk
}

// BuildSampleIndex joins stts/ctts/stsc/stsz/stco-or-co64/stss into one
// flat sample index, following the algorithm in the spec's Sample Index
// Builder component: a timing cursor, a chunk-to-sample join driven by
// the chunk-offset table, a composition-offset cursor, and a sync cursor.
//
// It does not materialize any of the run-length tables; each cursor
// advances lazily as samples are emitted.
func BuildSampleIndex(in SampleIndexInput) ([]SampleOffset, uint64, error) {
	samples := make([]SampleOffset, 0, in.SampleCount)

	timing := newSttsCursor(in.Stts, in.DefaultSampleDuration)
	comp := newCttsCursor(in.Ctts)
	sync := newSyncCursor(in.HasSyncTable, in.SyncSamples)
	stsc := newStscResolver(in.Stsc)

	var duration uint64
	var sampleIdx uint32
	var chunkIdx uint32 // 0-based index into ChunkOffsets
	var samplesLeftInChunk uint32
	var offsetInChunk uint64

	for sampleIdx < in.SampleCount {
		if samplesLeftInChunk == 0 {
			if int(chunkIdx) >= len(in.ChunkOffsets) {
				return nil, 0, &EntryInStblNotFoundError{Box: TypeStco, Index: chunkIdx}
			}
			samplesLeftInChunk = stsc.samplesPerChunk(chunkIdx + 1)
			if samplesLeftInChunk == 0 {
				// Malformed table: a chunk with no samples would loop forever.
				return nil, 0, &InvalidDataError{Reason: "stsc entry yields zero samples per chunk"}
			}
			offsetInChunk = 0
			chunkIdx++
		}

		var size uint32
		if in.SampleSize != 0 {
			size = in.SampleSize
		} else {
			if int(sampleIdx) >= len(in.SampleSizes) {
				return nil, 0, &EntryInStblNotFoundError{Box: TypeStsz, Index: sampleIdx}
			}
			size = in.SampleSizes[sampleIdx]
		}

		startTime, sampleDuration := timing.next()
		sampleNumber := sampleIdx + 1 // 1-based for cross-table addressing

		samples = append(samples, SampleOffset{
			ChunkID:         chunkIdx,
			FileOffset:      in.ChunkOffsets[chunkIdx-1] + offsetInChunk,
			Size:            size,
			Duration:        sampleDuration,
			StartTime:       startTime,
			RenderingOffset: comp.next(),
			IsSync:          sync.next(sampleNumber),
		})

		duration = startTime + uint64(sampleDuration)
		offsetInChunk += uint64(size)
		samplesLeftInChunk--
		sampleIdx++
	}

	return samples, duration, nil
}

// TrafFragment holds the fields of one already-decoded traf that
// SpliceFragment (§4.5 Fragment Splicing) merges onto the end of an
// existing track's sample index.
type TrafFragment struct {
	SequenceNumber      uint32
	BaseDataOffset      uint64
	HasBaseDataOffset   bool
	MoofOffset          uint64
	DefaultSampleSize   uint32
	DefaultSampleDur    uint32
	BaseMediaDecodeTime uint64
	HasBaseMediaDecode  bool
	TrunDataOffset      int32
	HasTrunDataOffset   bool
	Entries             []TrunEntry
	HasTrun             bool

	// DefaultSampleFlags is the tfhd/trex fallback used for any entry that
	// doesn't carry its own sample_flags (TrunSampleFlagsPresent absent).
	DefaultSampleFlags uint32
	// TrunSampleFlagsPresent mirrors the trun box's own
	// TrunSampleFlagsPresent flag: when set, every Entries[i].Flags is
	// authoritative and the defaults below don't apply.
	TrunSampleFlagsPresent bool
	// FirstSampleFlags/HasFirstSampleFlags carry trun's
	// TrunFirstSampleFlagsPresent override, which applies only to
	// Entries[0] and takes precedence over DefaultSampleFlags.
	FirstSampleFlags    uint32
	HasFirstSampleFlags bool
}

// sampleFlagIsNonSync is the is_non_sync_sample bit within a sample_flags
// word (ISO/IEC 14496-12 §8.8.3.1); its absence marks a sync sample.
const sampleFlagIsNonSync = 0x00010000

// sampleFlagsIsSync reports whether flags (as found in tfhd/trun
// sample_flags) marks a sync sample.
func sampleFlagsIsSync(flags uint32) bool {
	return flags&sampleFlagIsNonSync == 0
}

// SpliceFragment appends the samples described by frag to track, per the
// spec's base_data_offset / base_media_decode_time resolution rules.
func SpliceFragment(track *Mp4Track, frag TrafFragment) {
	if !frag.HasTrun {
		return
	}

	baseDataOffset := frag.MoofOffset
	if frag.HasBaseDataOffset {
		baseDataOffset = frag.BaseDataOffset
	}

	var baseStartTime uint64
	if frag.HasBaseMediaDecode {
		baseStartTime = frag.BaseMediaDecodeTime
	} else if n := len(track.Samples); n > 0 {
		last := track.Samples[n-1]
		baseStartTime = last.StartTime + uint64(last.Duration)
	}

	dataOff := int64(frag.TrunDataOffset)
	if !frag.HasTrunDataOffset {
		dataOff = 0
	}

	var sampleOff int64
	var timeOff uint64

	for i, e := range frag.Entries {
		size := e.Size
		if size == 0 {
			size = frag.DefaultSampleSize
		}
		dur := e.Duration
		if dur == 0 {
			dur = frag.DefaultSampleDur
		}

		flags := e.Flags
		if !frag.TrunSampleFlagsPresent {
			if i == 0 && frag.HasFirstSampleFlags {
				flags = frag.FirstSampleFlags
			} else {
				flags = frag.DefaultSampleFlags
			}
		}

		track.Samples = append(track.Samples, SampleOffset{
			ChunkID:         frag.SequenceNumber,
			FileOffset:      uint64(int64(baseDataOffset) + dataOff + sampleOff),
			Size:            size,
			Duration:        dur,
			StartTime:       baseStartTime + timeOff,
			RenderingOffset: e.CompositionTimeOffset,
			IsSync:          sampleFlagsIsSync(flags),
		})

		sampleOff += int64(size)
		timeOff += uint64(dur)
	}

	if n := len(track.Samples); n > 0 {
		last := track.Samples[n-1]
		track.Duration = last.StartTime + uint64(last.Duration)
	}
}
