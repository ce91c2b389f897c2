package isomp4

import (
	"bytes"
	"context"
	"io"
	"sort"
)

// FileState is the orchestrator's lifecycle stage.
type FileState int

const (
	StateInit FileState = iota
	StateReading
	StateHeaderComplete
)

// defaultInlineThreshold is the mdat size below which a block is always
// read fully into memory, per §4.7.
const defaultInlineThreshold = 128 << 20 // 128 MiB

// trexDefaults holds the mvex/trex fallback values for one track,
// used by the Sample Index Builder's stts sentinel and by fragment
// splicing when a tfhd/trun omits a field.
type trexDefaults struct {
	sampleDescIdx  uint32
	sampleDuration uint32
	sampleSize     uint32
	sampleFlags    uint32
}

// File is the top-level streaming MP4 reader: it walks the box tree,
// builds and extends per-track sample indexes, and admits mdat regions
// into the Data Block store. See §4.6.
type File struct {
	state FileState

	source io.ReadSeeker

	ftyp  *FtypInfo
	mvhd  *MvhdInfo
	emsgs []EmsgInfo

	tracks map[uint32]*Mp4Track
	trex   map[uint32]trexDefaults

	dataBlocks []*DataBlock

	storage         DataStorage
	inlineThreshold int64
	transform       SampleTransform
}

// Option configures a File at construction time.
type Option func(*File)

// WithStorage installs a DataStorage backend for mdat regions at or above
// the inline threshold. Without one, oversized regions are admitted as
// Deferred (seek-on-demand) when the source supports seeking.
func WithStorage(s DataStorage) Option {
	return func(f *File) { f.storage = s }
}

// WithInlineThreshold overrides the default 128 MiB inline-buffering cutoff.
func WithInlineThreshold(n int64) Option {
	return func(f *File) { f.inlineThreshold = n }
}

// WithSampleTransform installs the Sample-Format Transform applied to
// every sample returned by ReadSampleData. The default is IdentityTransform.
func WithSampleTransform(t SampleTransform) Option {
	return func(f *File) { f.transform = t }
}

// NewFile creates a File that reads from source.
func NewFile(source io.ReadSeeker, opts ...Option) *File {
	f := &File{
		source:          source,
		tracks:          make(map[uint32]*Mp4Track),
		trex:            make(map[uint32]trexDefaults),
		inlineThreshold: defaultInlineThreshold,
		transform:       IdentityTransform{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ftyp returns the last-seen ftyp box, if any.
func (f *File) Ftyp() (FtypInfo, bool) {
	if f.ftyp == nil {
		return FtypInfo{}, false
	}
	return *f.ftyp, true
}

// MvhdInfo holds the movie-level header fields read from mvhd.
type MvhdInfo struct {
	Timescale   uint32
	Duration    uint64
	NextTrackID uint32
}

// Mvhd returns the movie header parsed from moov, if one has been seen.
func (f *File) Mvhd() (MvhdInfo, bool) {
	if f.mvhd == nil {
		return MvhdInfo{}, false
	}
	return *f.mvhd, true
}

// Tracks returns the tracks discovered so far, keyed by track ID.
func (f *File) Tracks() map[uint32]*Mp4Track {
	return f.tracks
}

// Emsgs returns every emsg box observed so far.
func (f *File) Emsgs() []EmsgInfo {
	return f.emsgs
}

// ReadHeader walks the source from its current position until exhausted,
// routing each top-level box per §4.6. It returns true iff a moov box was
// observed. ctx is checked between top-level boxes so a long read can be
// cancelled; a cancelled read leaves the File partially populated and
// that state must be discarded by the caller.
func (f *File) ReadHeader(ctx context.Context) (bool, error) {
	f.state = StateReading
	sc := NewScanner(f.source)
	sawMoov := false

	for sc.Next() {
		if err := ctx.Err(); err != nil {
			return sawMoov, err
		}

		entry := sc.Entry()
		switch entry.Type {
		case TypeFtyp:
			buf := make([]byte, entry.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				return sawMoov, err
			}
			info := ReadFtyp(buf)
			f.ftyp = &info

		case TypeMoov:
			buf := make([]byte, entry.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				return sawMoov, err
			}
			if err := f.readMoov(buf); err != nil {
				return sawMoov, err
			}
			sawMoov = true

		case TypeMoof:
			buf := make([]byte, entry.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				return sawMoov, err
			}
			if err := f.readMoof(buf, entry.Offset); err != nil {
				return sawMoov, err
			}

		case TypeEmsg:
			buf := make([]byte, entry.DataSize())
			if err := sc.ReadBody(buf); err != nil {
				return sawMoov, err
			}
			// Scanner hands us the raw payload without stripping the
			// FullBox version/flags word (unlike Reader, which only runs
			// inside an already-entered container), so peel it off here.
			version, emsgBody := peekFullBoxVersion(buf)
			e, err := ReadEmsg(emsgBody, version)
			if err != nil {
				return sawMoov, err
			}
			f.emsgs = append(f.emsgs, e)

		case TypeMdat:
			if err := f.admitMdat(&sc, entry); err != nil {
				return sawMoov, err
			}

		default:
			// Unknown or uninteresting top-level box: Scanner has already
			// skipped past it.
		}
	}
	if err := sc.Err(); err != nil {
		return sawMoov, err
	}

	if sawMoov {
		f.state = StateHeaderComplete
	}
	return sawMoov, nil
}

// peekFullBoxVersion reads the leading version/flags word of a FullBox
// payload (as captured by Scanner, which does not strip it) and returns
// the version plus the remaining payload.
func peekFullBoxVersion(data []byte) (uint8, []byte) {
	if len(data) < 4 {
		return 0, data
	}
	return data[0], data[4:]
}

// readMoov parses a moov payload: trex defaults from mvex are collected
// first (box order inside moov is not guaranteed), then every trak is
// built against those defaults.
func (f *File) readMoov(data []byte) error {
	r := NewReader(data)
	var trakBufs [][]byte

	for r.Next() {
		switch r.Type() {
		case TypeMvhd:
			timescale, duration, nextTrackID := r.ReadMvhd()
			f.mvhd = &MvhdInfo{Timescale: timescale, Duration: duration, NextTrackID: nextTrackID}
		case TypeMvex:
			mr := NewReader(r.Data())
			for mr.Next() {
				if mr.Type() == TypeTrex {
					tid, descIdx, defDur, defSize, defFlags := mr.ReadTrex()
					f.trex[tid] = trexDefaults{
						sampleDescIdx:  descIdx,
						sampleDuration: defDur,
						sampleSize:     defSize,
						sampleFlags:    defFlags,
					}
				}
			}
		case TypeTrak:
			trakBufs = append(trakBufs, r.Data())
		}
	}

	for _, buf := range trakBufs {
		track, err := f.parseTrak(buf)
		if err != nil {
			return err
		}
		f.tracks[track.TrackID] = track
	}
	return nil
}

// parseTrak builds an Mp4Track from one trak payload: tkhd for the track
// ID, mdia/mdhd/hdlr for timescale and handler type, and stbl for the
// sample index.
func (f *File) parseTrak(data []byte) (*Mp4Track, error) {
	r := NewReader(data)
	var trackID uint32
	var mdiaData []byte

	for r.Next() {
		switch r.Type() {
		case TypeTkhd:
			trackID, _, _, _ = r.ReadTkhd()
		case TypeMdia:
			mdiaData = r.Data()
		}
	}
	if mdiaData == nil {
		return nil, &BoxNotFoundError{Box: TypeMdia}
	}

	track := &Mp4Track{TrackID: trackID}

	mr := NewReader(mdiaData)
	var minfData []byte
	for mr.Next() {
		switch mr.Type() {
		case TypeMdhd:
			timescale, duration, _ := mr.ReadMdhd()
			track.Timescale = timescale
			track.Duration = duration
		case TypeHdlr:
			track.HandlerType = mr.ReadHdlr()
		case TypeMinf:
			minfData = mr.Data()
		}
	}
	if minfData == nil {
		return nil, &BoxNotFoundError{Box: TypeMinf}
	}

	mnr := NewReader(minfData)
	var stblData []byte
	for mnr.Next() {
		if mnr.Type() == TypeStbl {
			stblData = mnr.Data()
		}
	}
	if stblData == nil {
		return nil, &BoxNotFoundError{Box: TypeStbl}
	}

	defaults := f.trex[trackID]
	if err := f.buildSampleIndex(track, stblData, defaults.sampleDuration); err != nil {
		return nil, err
	}
	return track, nil
}

// buildSampleIndex parses stbl's sample tables and the stsd codec entry,
// then runs the Sample Index Builder.
func (f *File) buildSampleIndex(track *Mp4Track, stblData []byte, defaultDuration uint32) error {
	sr := NewReader(stblData)

	var sttsData, cttsData, stscData, stszData, stz2Data, stcoData, co64Data, stssData []byte
	var cttsVersion uint8

	for sr.Next() {
		switch sr.Type() {
		case TypeStsd:
			sr.Enter()
			sr.Skip(4) // entry count
			for sr.Next() {
				f.parseSampleEntry(track, sr.Type(), sr.Data())
				if track.SampleEntryRaw == nil {
					track.SampleEntryRaw = bytes.Clone(sr.RawBox())
				}
			}
			sr.Exit()
		case TypeStts:
			sttsData = sr.Data()
		case TypeCtts:
			cttsData = sr.Data()
			cttsVersion = sr.Version()
		case TypeStsc:
			stscData = sr.Data()
		case TypeStsz:
			stszData = sr.Data()
		case TypeStz2:
			stz2Data = sr.Data()
		case TypeStco:
			stcoData = sr.Data()
		case TypeCo64:
			co64Data = sr.Data()
		case TypeStss:
			stssData = sr.Data()
		}
	}

	if stscData == nil {
		return &BoxInStblNotFoundError{TrackID: track.TrackID, Box: TypeStsc}
	}
	if stszData == nil && stz2Data == nil {
		return &BoxInStblNotFoundError{TrackID: track.TrackID, Box: TypeStsz}
	}
	if stcoData == nil && co64Data == nil {
		return &Box2NotFoundError{Box1: TypeStco, Box2: TypeCo64}
	}
	if stcoData != nil && co64Data != nil {
		return &InvalidDataError{Reason: "stbl holds both stco and co64"}
	}

	var chunkOffsets []uint64
	if stcoData != nil {
		it := NewUint32Iter(stcoData)
		chunkOffsets = make([]uint64, 0, it.Count())
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			chunkOffsets = append(chunkOffsets, uint64(v))
		}
	} else {
		it := NewCo64Iter(co64Data)
		chunkOffsets = make([]uint64, 0, it.Count())
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			chunkOffsets = append(chunkOffsets, v)
		}
	}

	var sampleSize uint32
	var sampleSizes []uint32
	var sampleCount uint32
	if stszData != nil {
		it := NewStszIter(stszData)
		sampleCount = it.Count()
		sampleSize = be.Uint32(stszData[0:4])
		if sampleSize == 0 {
			sampleSizes = make([]uint32, 0, sampleCount)
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				sampleSizes = append(sampleSizes, v)
			}
		}
	} else {
		_, sizes := ReadStz2(stz2Data)
		sampleSizes = sizes
		sampleCount = uint32(len(sizes))
	}

	stscIt := NewStscIter(stscData)
	stscEntries := make([]StscEntry, 0, stscIt.Count())
	for {
		e, ok := stscIt.Next()
		if !ok {
			break
		}
		stscEntries = append(stscEntries, e)
	}
	SynthesizeStscFirstSamples(stscEntries)
	if n := len(stscEntries); n > 0 {
		track.SampleDescriptionIndex = stscEntries[n-1].SampleDescriptionId
	} else {
		track.SampleDescriptionIndex = 1
	}

	sttsIt := NewSttsIter(sttsData)
	sttsEntries := make([]SttsEntry, 0, sttsIt.Count())
	for {
		e, ok := sttsIt.Next()
		if !ok {
			break
		}
		sttsEntries = append(sttsEntries, e)
	}

	var cttsEntries []CttsEntry
	if cttsData != nil {
		cttsIt := NewCttsIter(cttsData, cttsVersion)
		cttsEntries = make([]CttsEntry, 0, cttsIt.Count())
		for {
			e, ok := cttsIt.Next()
			if !ok {
				break
			}
			cttsEntries = append(cttsEntries, e)
		}
	}

	hasSync := stssData != nil
	var syncSamples []uint32
	if hasSync {
		it := NewUint32Iter(stssData)
		syncSamples = make([]uint32, 0, it.Count())
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			syncSamples = append(syncSamples, v)
		}
	}

	samples, duration, err := BuildSampleIndex(SampleIndexInput{
		Stts:                  sttsEntries,
		DefaultSampleDuration: defaultDuration,
		Ctts:                  cttsEntries,
		Stsc:                  stscEntries,
		ChunkOffsets:          chunkOffsets,
		SampleCount:           sampleCount,
		SampleSize:            sampleSize,
		SampleSizes:           sampleSizes,
		HasSyncTable:          hasSync,
		SyncSamples:           syncSamples,
	})
	if err != nil {
		return err
	}
	track.Samples = samples
	track.Duration = duration
	return nil
}

// parseSampleEntry records the codec FourCC and, for AVC/HEVC, the
// decoder parameter NALs found in the entry's child boxes.
func (f *File) parseSampleEntry(track *Mp4Track, kind BoxType, data []byte) {
	switch kind {
	case TypeAvc1:
		track.Codec = kind
		vse := ReadVisualSampleEntry(data)
		cr := NewReader(data[vse.ChildOffset:])
		for cr.Next() {
			if cr.Type() == TypeAvcC {
				track.avcSPS, track.avcPPS = ReadAvcCParams(cr.Data())
				track.CodecMime = ReadAvcC(cr.Data())
			}
		}
	case TypeHev1, TypeHvc1:
		track.Codec = kind
		vse := ReadVisualSampleEntry(data)
		cr := NewReader(data[vse.ChildOffset:])
		for cr.Next() {
			if cr.Type() == TypeHvcC {
				info := ReadHvcC(cr.Data())
				for _, set := range info.ParamSets {
					track.hevcParamSets = append(track.hevcParamSets, set.NalUnits...)
				}
			}
		}
	case TypeVp09:
		track.Codec = kind
	case TypeMp4a:
		track.Codec = kind
		ase := ReadAudioSampleEntry(data)
		cr := NewReader(data[ase.ChildOffset:])
		for cr.Next() {
			if cr.Type() == TypeEsds {
				track.CodecMime = ReadEsdsCodec(cr.Data())
			}
		}
	case TypeTx3g:
		track.Codec = kind
	}
}

// readMoof parses a moof payload: for each traf, locates the track named
// by tfhd and splices its samples onto the end of that track's index.
func (f *File) readMoof(data []byte, moofOffset int64) error {
	r := NewReader(data)
	var seqNum uint32

	for r.Next() {
		switch r.Type() {
		case TypeMfhd:
			seqNum = r.ReadMfhd()
		case TypeTraf:
			if err := f.readTraf(r.Data(), seqNum, uint64(moofOffset)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *File) readTraf(data []byte, seqNum uint32, moofOffset uint64) error {
	r := NewReader(data)

	var tfhd TfhdFields
	var haveTfhd bool
	var frag TrafFragment
	frag.SequenceNumber = seqNum
	frag.MoofOffset = moofOffset

	for r.Next() {
		switch r.Type() {
		case TypeTfhd:
			tfhd = r.ReadTfhd()
			haveTfhd = true
			frag.HasBaseDataOffset = tfhd.HasBaseDataOffset
			frag.BaseDataOffset = tfhd.BaseDataOffset
			if tfhd.HasDefaultSize {
				frag.DefaultSampleSize = tfhd.DefaultSampleSize
			}
			if tfhd.HasDefaultDuration {
				frag.DefaultSampleDur = tfhd.DefaultSampleDuration
			}
			if tfhd.HasDefaultFlags {
				frag.DefaultSampleFlags = tfhd.DefaultSampleFlags
			}
		case TypeTfdt:
			frag.BaseMediaDecodeTime = r.ReadTfdt()
			frag.HasBaseMediaDecode = true
		case TypeTrun:
			it := NewTrunIter(r.Data(), r.Flags())
			frag.HasTrun = true
			frag.HasTrunDataOffset = r.Flags()&TrunDataOffsetPresent != 0
			frag.TrunDataOffset = it.DataOffset()
			frag.TrunSampleFlagsPresent = r.Flags()&TrunSampleFlagsPresent != 0
			frag.HasFirstSampleFlags = r.Flags()&TrunFirstSampleFlagsPresent != 0
			frag.FirstSampleFlags = it.FirstSampleFlags()
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				frag.Entries = append(frag.Entries, e)
			}
		}
	}
	if !haveTfhd {
		return &BoxNotFoundError{Box: TypeTfhd}
	}

	// Fill any trex defaults the tfhd/trun didn't override.
	if def, ok := f.trex[tfhd.TrackID]; ok {
		if !tfhd.HasDefaultSize {
			frag.DefaultSampleSize = def.sampleSize
		}
		if !tfhd.HasDefaultDuration {
			frag.DefaultSampleDur = def.sampleDuration
		}
		if !tfhd.HasDefaultFlags {
			frag.DefaultSampleFlags = def.sampleFlags
		}
	}

	track, ok := f.tracks[tfhd.TrackID]
	if !ok {
		return &TrakNotFoundError{TrackID: tfhd.TrackID}
	}
	SpliceFragment(track, frag)
	return nil
}

// admitMdat implements §4.7: small regions are buffered in memory,
// oversized ones go to the configured DataStorage backend or are left
// Deferred for a later seek-and-read.
func (f *File) admitMdat(sc *Scanner, entry ScanEntry) error {
	block := &DataBlock{
		Kind:   entry.Type,
		Offset: uint64(entry.Offset) + uint64(entry.HeaderSize),
		Size:   uint64(entry.DataSize()),
	}

	if entry.DataSize() < f.inlineThreshold {
		buf := make([]byte, entry.DataSize())
		if err := sc.ReadBody(buf); err != nil {
			return err
		}
		block.blockKind = dataBlockMemory
		block.memory = buf
	} else if f.storage != nil {
		dataOffset := entry.Offset + int64(entry.HeaderSize)
		if _, err := f.source.Seek(dataOffset, io.SeekStart); err != nil {
			return err
		}
		id, err := f.storage.Save(io.LimitReader(f.source, entry.DataSize()))
		if err != nil {
			return &DataStorageError{Op: "save", Err: err}
		}
		if _, err := f.source.Seek(entry.Offset+entry.Size, io.SeekStart); err != nil {
			return err
		}
		block.blockKind = dataBlockStorage
		block.storageID = id
	} else {
		block.blockKind = dataBlockDeferred
	}

	f.dataBlocks = append(f.dataBlocks, block)
	return nil
}

// blockFor returns the DataBlock containing the absolute offset off.
func (f *File) blockFor(off uint64) *DataBlock {
	i := sort.Search(len(f.dataBlocks), func(i int) bool {
		return f.dataBlocks[i].Offset+f.dataBlocks[i].Size > off
	})
	if i < len(f.dataBlocks) && f.dataBlocks[i].Contains(off) {
		return f.dataBlocks[i]
	}
	return nil
}

// ReadSampleData returns the transformed bytes for one sample, per the
// resolution steps in §4.6.
func (f *File) ReadSampleData(trackID uint32, sampleIdx int) ([]byte, error) {
	track, ok := f.tracks[trackID]
	if !ok {
		return nil, &TrakNotFoundError{TrackID: trackID}
	}
	if sampleIdx < 0 || sampleIdx >= len(track.Samples) {
		return nil, &EntryInStblNotFoundError{TrackID: trackID, Box: TypeStsz, Index: uint32(sampleIdx)}
	}
	sample := track.Samples[sampleIdx]

	block := f.blockFor(sample.FileOffset)
	if block == nil {
		return nil, &InvalidDataError{Reason: "sample offset falls outside any data block"}
	}
	local := sample.FileOffset - block.Offset

	var raw []byte
	switch block.blockKind {
	case dataBlockMemory:
		raw = bytes.Clone(block.memory[local : local+uint64(sample.Size)])
	case dataBlockStorage:
		b, err := f.storage.Read(block.storageID, int64(local), int64(local)+int64(sample.Size))
		if err != nil {
			return nil, &DataStorageError{Op: "read", Err: err}
		}
		raw = b
	case dataBlockDeferred:
		if _, err := f.source.Seek(int64(sample.FileOffset), io.SeekStart); err != nil {
			return nil, err
		}
		raw = make([]byte, sample.Size)
		if _, err := io.ReadFull(f.source, raw); err != nil {
			return nil, err
		}
	}

	return f.transform.Transform(raw)
}
