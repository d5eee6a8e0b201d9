/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package journal

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// compressSegmentLZ4 reads segment in full, writes an lz4-compressed
// copy under segment+".lz4", and removes the uncompressed original.
// lz4 favors rotation-time speed over ratio: rotation happens on the
// writer's hot path (Append holds j.mu across it), so a slow codec
// here would show up as submission latency.
func compressSegmentLZ4(storage Storage, segment string) error {
	r, err := storage.OpenRead(segment)
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	w, err := storage.OpenAppend(segment + ".lz4")
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return storage.Remove(segment)
}

// ArchiveColdSegment recompresses an already lz4-compressed segment
// with xz for long-term storage, once it is old enough that it is no
// longer a replay-latency concern — xz trades recompression time for a
// materially better ratio than lz4, which only matters for segments
// that sit around rather than ones replay must read on every restart.
func ArchiveColdSegment(storage Storage, lz4Segment string) error {
	if !strings.HasSuffix(lz4Segment, ".lz4") {
		return fmt.Errorf("journal: %s is not an lz4 segment", lz4Segment)
	}
	r, err := storage.OpenRead(lz4Segment)
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(lz4.NewReader(r))
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(lz4Segment, ".lz4")
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		return err
	}
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	w, err := storage.OpenAppend(base + ".xz")
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return storage.Remove(lz4Segment)
}

// decompressingReader wraps r with the codec implied by segment's
// suffix, or returns it unwrapped for a plain segment.
func decompressingReader(segment string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(segment, ".lz4"):
		return lz4.NewReader(r), nil
	case strings.HasSuffix(segment, ".xz"):
		return xz.NewReader(r)
	default:
		return r, nil
	}
}
