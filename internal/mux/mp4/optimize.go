package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// rename is swapped by tests.
var rename = os.Rename

// Optimize rewrites path so that moov precedes mdat. The new layout is
// written to a temporary file in the same directory, synced and renamed over
// path; on any failure the temporary file is removed and path is untouched.
// Files whose moov already precedes mdat are left alone.
func Optimize(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for optimize: %w", err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat for optimize: %w", err)
	}

	var boxes []boxHeader
	for off := int64(0); off < info.Size(); {
		h, err := readBoxHeader(src, off, info.Size())
		if err != nil {
			return err
		}
		boxes = append(boxes, h)
		off += h.Size
	}
	ftypBox, moovBox, mdatBox, err := locate(boxes)
	if err != nil {
		return err
	}
	if moovBox.Offset < mdatBox.Offset {
		return nil
	}

	moov := make([]byte, moovBox.Size)
	if _, err := src.ReadAt(moov, moovBox.Offset); err != nil {
		return fmt.Errorf("read moov: %w", err)
	}

	rest := make([]boxHeader, 0, len(boxes))
	newMdat := ftypBox.Size + moovBox.Size
	seenMdat := false
	for _, h := range boxes {
		switch h.Type {
		case "ftyp", "moov", "free", "skip":
			continue
		}
		rest = append(rest, h)
		if h.Type == "mdat" {
			seenMdat = true
		} else if !seenMdat {
			newMdat += h.Size
		}
	}
	if err := shiftOffsets(moov, newMdat-mdatBox.Offset); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create optimize temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = copyBox(tmp, src, ftypBox); err != nil {
		return err
	}
	if _, err = tmp.Write(moov); err != nil {
		return fmt.Errorf("write moov: %w", err)
	}
	for _, h := range rest {
		if err = copyBox(tmp, src, h); err != nil {
			return err
		}
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync optimize temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close optimize temp file: %w", err)
	}
	if err = rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func locate(boxes []boxHeader) (ftyp, moov, mdat boxHeader, err error) {
	counts := map[string]int{}
	for _, h := range boxes {
		counts[h.Type]++
		switch h.Type {
		case "ftyp":
			ftyp = h
		case "moov":
			moov = h
		case "mdat":
			mdat = h
		}
	}
	for _, typ := range []string{"ftyp", "moov", "mdat"} {
		if counts[typ] != 1 {
			return ftyp, moov, mdat, fmt.Errorf("optimize needs exactly one %s box, found %d", typ, counts[typ])
		}
	}
	return ftyp, moov, mdat, nil
}

func copyBox(dst io.Writer, src io.ReaderAt, h boxHeader) error {
	n, err := io.Copy(dst, io.NewSectionReader(src, h.Offset, h.Size))
	if err != nil {
		return fmt.Errorf("copy %s box: %w", h.Type, err)
	}
	if n != h.Size {
		return fmt.Errorf("copy %s box: %w", h.Type, io.ErrUnexpectedEOF)
	}
	return nil
}

var errOffsetOverflow = errors.New("chunk offset out of range after shift")

// shiftOffsets adds delta to every stco/co64 entry inside data in place.
func shiftOffsets(data []byte, delta int64) error {
	boxes, err := walkBoxes(data)
	if err != nil {
		return err
	}
	for _, h := range boxes {
		body := data[h.Offset+h.HeaderLen : h.Offset+h.Size]
		switch h.Type {
		case "moov", "trak", "mdia", "minf", "stbl":
			if err := shiftOffsets(body, delta); err != nil {
				return err
			}
		case "stco":
			if err := shiftTable(body, 4, delta); err != nil {
				return err
			}
		case "co64":
			if err := shiftTable(body, 8, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

func shiftTable(body []byte, width int, delta int64) error {
	if len(body) < 8 {
		return errTruncated
	}
	count := int(binary.BigEndian.Uint32(body[4:8]))
	entries := body[8:]
	if len(entries) < count*width {
		return errTruncated
	}
	for i := 0; i < count; i++ {
		e := entries[i*width:]
		if width == 4 {
			v := int64(binary.BigEndian.Uint32(e)) + delta
			if v < 0 || v > math.MaxUint32 {
				return errOffsetOverflow
			}
			binary.BigEndian.PutUint32(e, uint32(v))
			continue
		}
		v := int64(binary.BigEndian.Uint64(e)) + delta
		if v < 0 {
			return errOffsetOverflow
		}
		binary.BigEndian.PutUint64(e, uint64(v))
	}
	return nil
}
