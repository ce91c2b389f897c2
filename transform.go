package isomp4

// SampleTransform reshapes extracted sample bytes for downstream decoders.
// It is pluggable at orchestrator construction time.
type SampleTransform interface {
	Transform(sample []byte) ([]byte, error)
}

// IdentityTransform leaves sample bytes untouched (LengthDelimited framing).
type IdentityTransform struct{}

// Transform returns sample unchanged.
func (IdentityTransform) Transform(sample []byte) ([]byte, error) {
	return sample, nil
}

// AnnexBTransform rewrites 4-byte length-prefixed NAL units into Annex-B
// start-code framing, in place, per §4.8.
type AnnexBTransform struct{}

var startCode = [4]byte{0x00, 0x00, 0x00, 0x01}

// Transform replaces every 4-byte big-endian NAL length prefix in sample
// with the Annex-B start code 00 00 00 01, leaving payload bytes
// untouched. It fails with ErrNaluLengthDelimitedReadFail if a length
// prefix or its declared payload would overrun the buffer, or if the
// final NAL does not land exactly on the buffer end.
func (AnnexBTransform) Transform(sample []byte) ([]byte, error) {
	cursor := 0
	n := len(sample)
	for cursor < n {
		if cursor+4 > n {
			return nil, ErrNaluLengthDelimitedReadFail
		}
		length := uint32(sample[cursor])<<24 | uint32(sample[cursor+1])<<16 |
			uint32(sample[cursor+2])<<8 | uint32(sample[cursor+3])
		if cursor+4+int(length) > n {
			return nil, ErrNaluLengthDelimitedReadFail
		}
		copy(sample[cursor:cursor+4], startCode[:])
		cursor += 4 + int(length)
	}
	if cursor != n {
		return nil, ErrNaluLengthDelimitedReadFail
	}
	return sample, nil
}
