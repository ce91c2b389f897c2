package isomp4

// HvcCParamSet is one parameter-set array grouped by NAL unit type inside
// an hvcC box, e.g. all VPS, all SPS, or all PPS NAL units.
type HvcCParamSet struct {
	NalUnitType  uint8
	Complete     bool
	NalUnits     [][]byte
}

// HvcCInfo holds the fields of an hvcC (HEVC decoder configuration) box
// that matter for parameter-set extraction and codec-string formatting.
type HvcCInfo struct {
	GeneralProfileSpace     uint8
	GeneralTierFlag         bool
	GeneralProfileIdc       uint8
	GeneralProfileCompat    uint32
	GeneralConstraintFlags  uint64 // 48 bits
	GeneralLevelIdc         uint8
	LengthSizeMinusOne      uint8
	ParamSets               []HvcCParamSet
}

// ReadHvcC parses an hvcC box payload. Layout follows ISO/IEC 14496-15:
// a fixed 22-byte header, then a 1-byte array count, then that many
// NAL unit arrays of (1-byte type/completeness, 2-byte count, entries).
func ReadHvcC(data []byte) HvcCInfo {
	var info HvcCInfo
	if len(data) < 23 {
		return info
	}
	info.GeneralProfileSpace = data[1] >> 6
	info.GeneralTierFlag = data[1]&0x20 != 0
	info.GeneralProfileIdc = data[1] & 0x1f
	info.GeneralProfileCompat = be.Uint32(data[2:6])
	info.GeneralConstraintFlags = uint64(be.Uint32(data[6:10]))<<16 | uint64(be.Uint16(data[10:12]))
	info.GeneralLevelIdc = data[12]
	info.LengthSizeMinusOne = data[21] & 0x03

	numArrays := int(data[22])
	ptr := 23
	for i := 0; i < numArrays && ptr < len(data); i++ {
		if ptr+3 > len(data) {
			break
		}
		set := HvcCParamSet{
			Complete:    data[ptr]&0x80 != 0,
			NalUnitType: data[ptr] & 0x3f,
		}
		ptr++
		count := int(be.Uint16(data[ptr:]))
		ptr += 2
		for j := 0; j < count && ptr+2 <= len(data); j++ {
			nalLen := int(be.Uint16(data[ptr:]))
			ptr += 2
			if ptr+nalLen > len(data) {
				break
			}
			set.NalUnits = append(set.NalUnits, data[ptr:ptr+nalLen])
			ptr += nalLen
		}
		info.ParamSets = append(info.ParamSets, set)
	}
	return info
}

// VpcCInfo holds the fields of a vpcC (VP9 codec configuration) box.
type VpcCInfo struct {
	Profile           uint8
	Level             uint8
	BitDepth          uint8
	ChromaSubsampling  uint8
	VideoFullRangeFlag bool
}

// ReadVpcC parses a vpcC box payload (full box: 4-byte profile/level/bitdepth/chroma header).
func ReadVpcC(data []byte) VpcCInfo {
	var info VpcCInfo
	if len(data) < 4 {
		return info
	}
	info.Profile = data[0]
	info.Level = data[1]
	info.BitDepth = data[2] >> 4
	info.ChromaSubsampling = (data[2] >> 1) & 0x07
	info.VideoFullRangeFlag = data[2]&0x01 != 0
	return info
}

// Tx3gInfo holds the fields of a tx3g (3GPP timed text) sample entry that
// matter for rendering: the default style and layout boxes.
type Tx3gInfo struct {
	DisplayFlags     uint32
	HorizontalJustification int8
	VerticalJustification   int8
	BackgroundColor  [4]byte
	DefaultTextBox   [8]byte // top, left, bottom, right (int16 each)
}

// ReadTx3g parses a tx3g sample entry payload, skipping the common sample
// entry prefix (handled by the caller via ChildOffset-style framing, here
// data already starts at the tx3g-specific fields).
func ReadTx3g(data []byte) Tx3gInfo {
	var info Tx3gInfo
	if len(data) < 18 {
		return info
	}
	info.DisplayFlags = be.Uint32(data[0:4])
	info.HorizontalJustification = int8(data[4])
	info.VerticalJustification = int8(data[5])
	copy(info.BackgroundColor[:], data[6:10])
	copy(info.DefaultTextBox[:], data[10:18])
	return info
}

// MetaHeaderSize returns the number of bytes the meta box's optional
// FullBox version/flags header occupies: 4 if the next 32 bits are zero
// (the ISO-style meta, whose version/flags are always 0 in practice), 0
// if a non-zero word is seen, which means there is no version/flags
// header at all and the peeked word is already the size of the first
// child box (the QuickTime-style meta per §4.3/§9).
func MetaHeaderSize(peeked uint32) int {
	if peeked == 0 {
		return 4
	}
	return 0
}

// EnterMeta descends into a meta box's children, applying the
// peek-32-bits-consume-if-zero rule from MetaHeaderSize. meta is not a
// FullBox in the generic Reader (see IsFullBox), so Data() here always
// returns the box's raw, unconsumed contents.
func (r *Reader) EnterMeta() {
	var peeked uint32
	if data := r.Data(); len(data) >= 4 {
		peeked = be.Uint32(data[0:4])
	}
	r.Enter()
	if n := MetaHeaderSize(peeked); n > 0 {
		r.Skip(n)
	}
}

// IlstEntry is one decoded iTunes-style metadata item (ilst child box,
// itself wrapping a single data box).
type IlstEntry struct {
	Key       BoxType
	TypeIndicator uint32 // well-known data type (1=UTF8, 21=integer, ...)
	Value     []byte
}

// ReadIlstData parses the payload of a data box nested inside an ilst
// entry: an 8-bit version + 24-bit type indicator, a 4-byte locale/reserved
// field, then the raw value bytes.
func ReadIlstData(data []byte) (typeIndicator uint32, value []byte) {
	if len(data) < 8 {
		return 0, nil
	}
	typeIndicator = be.Uint32(data[0:4]) & 0x00ffffff
	value = data[8:]
	return
}
