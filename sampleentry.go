package isomp4

// ReadAvcCParams extracts the SPS and PPS NAL unit lists from an avcC box.
// Layout: 1-byte configuration version, profile, compatibility, level,
// 1 byte (6 reserved bits | 2-bit length_size_minus_one), 1 byte
// (3 reserved bits | 5-bit SPS count), then that many 16-bit-length-
// prefixed SPS NALs, a 1-byte PPS count, then that many length-prefixed
// PPS NALs.
func ReadAvcCParams(data []byte) (sps, pps [][]byte) {
	if len(data) < 6 {
		return nil, nil
	}
	ptr := 5
	numSPS := int(data[ptr] & 0x1f)
	ptr++
	for i := 0; i < numSPS && ptr+2 <= len(data); i++ {
		n := int(be.Uint16(data[ptr:]))
		ptr += 2
		if ptr+n > len(data) {
			break
		}
		sps = append(sps, data[ptr:ptr+n])
		ptr += n
	}
	if ptr >= len(data) {
		return sps, nil
	}
	numPPS := int(data[ptr])
	ptr++
	for i := 0; i < numPPS && ptr+2 <= len(data); i++ {
		n := int(be.Uint16(data[ptr:]))
		ptr += 2
		if ptr+n > len(data) {
			break
		}
		pps = append(pps, data[ptr:ptr+n])
		ptr += n
	}
	return sps, pps
}

// framedParam wraps a parameter-set NAL for track.decode_params(): a
// 4-byte length field carrying len(p)+4, the Annex-B start code, then the
// raw NAL bytes.
func framedParam(p []byte) []byte {
	out := make([]byte, 8+len(p))
	be.PutUint32(out[0:4], uint32(len(p)+4))
	copy(out[4:8], startCode[:])
	copy(out[8:], p)
	return out
}

// DecodeParams returns the concatenated, Annex-B-framed parameter set
// bytes for AVC and HEVC tracks, per §6. Other codecs return (nil, false).
func (t *Mp4Track) DecodeParams() ([]byte, bool) {
	switch t.Codec {
	case TypeAvc1:
		if len(t.avcSPS) == 0 && len(t.avcPPS) == 0 {
			return nil, false
		}
		var buf []byte
		for _, sps := range t.avcSPS {
			buf = append(buf, framedParam(sps)...)
		}
		for _, pps := range t.avcPPS {
			buf = append(buf, framedParam(pps)...)
		}
		return buf, true
	case TypeHvc1, TypeHev1:
		if len(t.hevcParamSets) == 0 {
			return nil, false
		}
		var buf []byte
		for _, ps := range t.hevcParamSets {
			buf = append(buf, framedParam(ps)...)
		}
		return buf, true
	default:
		return nil, false
	}
}

// SequenceParameterSet returns the first SPS NAL for an AVC track.
func (t *Mp4Track) SequenceParameterSet() ([]byte, error) {
	if t.Codec != TypeAvc1 || len(t.avcSPS) == 0 {
		return nil, ErrUnsupportedMediaType
	}
	return t.avcSPS[0], nil
}

// PictureParameterSet returns the first PPS NAL for an AVC track.
func (t *Mp4Track) PictureParameterSet() ([]byte, error) {
	if t.Codec != TypeAvc1 || len(t.avcPPS) == 0 {
		return nil, ErrUnsupportedMediaType
	}
	return t.avcPPS[0], nil
}
