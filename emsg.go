package isomp4

// EmsgInfo holds the decoded fields of an emsg (event message) box. Only
// one of PresentationTime (version 1) or PresentationTimeDelta (version 0)
// is meaningful, selected by Version.
type EmsgInfo struct {
	Version               uint8
	SchemeIdURI           string
	Value                 string
	Timescale             uint32
	PresentationTime      uint64
	PresentationTimeDelta uint32
	EventDuration         uint32
	ID                    uint32
	MessageData           []byte
}

// ReadEmsg parses an emsg box payload. Version 0 places the two
// null-terminated strings before the timing fields; version 1 places them
// after, and widens presentation_time to 64 bits.
func ReadEmsg(data []byte, version uint8) (EmsgInfo, error) {
	var e EmsgInfo
	e.Version = version

	if version == 0 {
		uri, n1, ok := readCString(data, 0)
		if !ok {
			return e, &InvalidDataError{Reason: "emsg scheme_id_uri not terminated"}
		}
		val, n2, ok := readCString(data, n1)
		if !ok {
			return e, &InvalidDataError{Reason: "emsg value not terminated"}
		}
		if n2+16 > len(data) {
			return e, &InvalidDataError{Reason: "emsg truncated"}
		}
		e.SchemeIdURI = uri
		e.Value = val
		e.Timescale = be.Uint32(data[n2:])
		e.PresentationTimeDelta = be.Uint32(data[n2+4:])
		e.EventDuration = be.Uint32(data[n2+8:])
		e.ID = be.Uint32(data[n2+12:])
		e.MessageData = data[n2+16:]
		return e, nil
	}

	if len(data) < 20 {
		return e, &InvalidDataError{Reason: "emsg truncated"}
	}
	e.Timescale = be.Uint32(data[0:4])
	e.PresentationTime = be.Uint64(data[4:12])
	e.EventDuration = be.Uint32(data[12:16])
	e.ID = be.Uint32(data[16:20])
	uri, n1, ok := readCString(data, 20)
	if !ok {
		return e, &InvalidDataError{Reason: "emsg scheme_id_uri not terminated"}
	}
	val, n2, ok := readCString(data, n1)
	if !ok {
		return e, &InvalidDataError{Reason: "emsg value not terminated"}
	}
	e.SchemeIdURI = uri
	e.Value = val
	e.MessageData = data[n2:]
	return e, nil
}

// readCString scans data starting at start for a NUL terminator, returning
// the decoded string and the index just past the terminator.
func readCString(data []byte, start int) (string, int, bool) {
	end := start
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end >= len(data) {
		return "", 0, false
	}
	return string(data[start:end]), end + 1, true
}
