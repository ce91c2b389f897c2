// Command mp4dump reads an MP4 file and prints its box structure.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tetsuo/isomp4"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		slog.Error("reading file", "path", os.Args[1], "error", err)
		os.Exit(1)
	}

	r := isomp4.NewReader(data)
	for r.Next() {
		printBox(&r, 0)
	}
}

// sampleEntryTypes are stsd entries whose payload starts with a fixed-size
// header (visual or audio sample entry) before any child boxes.
var sampleEntryTypes = map[isomp4.BoxType]bool{
	isomp4.TypeAvc1: true,
	isomp4.TypeHev1: true,
	isomp4.TypeHvc1: true,
	isomp4.TypeVp09: true,
	isomp4.TypeMp4a: true,
}

func printBox(r *isomp4.Reader, depth int) {
	indent := strings.Repeat("  ", depth)
	vf := ""
	if isomp4.IsFullBox(r.Type()) {
		vf = fmt.Sprintf(" v=%d flags=0x%06x", r.Version(), r.Flags())
	}
	fmt.Printf("%s[%s] size=%d%s%s\n", indent, r.Type(), r.Size(), vf, boxInfo(r))

	switch {
	case r.Type() == isomp4.TypeStsd:
		r.Enter()
		r.Skip(4) // entry count
		for r.Next() {
			printBox(r, depth+1)
		}
		r.Exit()
	case sampleEntryTypes[r.Type()]:
		data := r.Data()
		offset := 78
		if r.Type() == isomp4.TypeMp4a {
			offset = isomp4.ReadAudioSampleEntry(data).ChildOffset
		} else {
			offset = isomp4.ReadVisualSampleEntry(data).ChildOffset
		}
		cr := isomp4.NewReader(data[offset:])
		for cr.Next() {
			printBox(&cr, depth+1)
		}
	case r.Type() == isomp4.TypeMeta:
		r.EnterMeta()
		for r.Next() {
			printBox(r, depth+1)
		}
		r.Exit()
	case isomp4.IsContainerBox(r.Type()):
		r.Enter()
		for r.Next() {
			printBox(r, depth+1)
		}
		r.Exit()
	}
}

func boxInfo(r *isomp4.Reader) string {
	switch r.Type() {
	case isomp4.TypeFtyp, isomp4.TypeStyp:
		f := isomp4.ReadFtyp(r.Data())
		brands := make([]string, len(f.Compatible))
		for i, b := range f.Compatible {
			brands[i] = string(b[:])
		}
		return fmt.Sprintf(" brand=%s ver=%d compat=[%s]", string(f.MajorBrand[:]), f.MinorVersion, strings.Join(brands, ","))
	case isomp4.TypeMvhd:
		ts, dur, next := r.ReadMvhd()
		return fmt.Sprintf(" timescale=%d duration=%d nextTrackId=%d", ts, dur, next)
	case isomp4.TypeTkhd:
		id, dur, w, h := r.ReadTkhd()
		return fmt.Sprintf(" trackId=%d duration=%d size=%dx%d", id, dur, w>>16, h>>16)
	case isomp4.TypeMdhd:
		ts, dur, lang := r.ReadMdhd()
		return fmt.Sprintf(" timescale=%d duration=%d lang=%d", ts, dur, lang)
	case isomp4.TypeHdlr:
		ht := r.ReadHdlr()
		return fmt.Sprintf(" type=%s name=%q", string(ht[:]), r.ReadHdlrName())
	case isomp4.TypeMfhd:
		return fmt.Sprintf(" seq=%d", r.ReadMfhd())
	case isomp4.TypeTfhd:
		f := r.ReadTfhd()
		return fmt.Sprintf(" trackId=%d", f.TrackID)
	case isomp4.TypeTfdt:
		return fmt.Sprintf(" baseMediaDecodeTime=%d", r.ReadTfdt())
	case isomp4.TypeMdat:
		return fmt.Sprintf(" dataLen=%d", len(r.Data()))
	}
	return ""
}
