// bamShrink: a tool for shrinking and de-identifying SAM/BAM files.
// Copyright (c) 2017-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/bamshrink/blob/master/LICENSE.txt>.

package utils

import (
	"bufio"
	"compress/gzip"
	"io"

	"github.com/biogo/hts/bgzf"
)

// IsGzip reports whether the given reader starts with the gzip magic
// number, and whether the first gzip member carries the BGZF block
// size extra field. It only peeks at the buffered bytes.
func IsGzip(buf *bufio.Reader) (gz, bgz bool, err error) {
	header, err := buf.Peek(14)
	if err == io.EOF || err == bufio.ErrBufferFull {
		err = nil
	}
	if err != nil {
		return false, false, err
	}
	if len(header) < 2 || header[0] != 0x1f || header[1] != 0x8b {
		return false, false, nil
	}
	bgz = len(header) == 14 && header[3]&0x04 != 0 && header[12] == 'B' && header[13] == 'C'
	return true, bgz, nil
}

// HandleBGZF checks if the given reader produces a gzip file by
// looking at the initial bytes. It then either returns a bgzf.Reader
// for BGZF input, a gzip.Reader for other gzip input, or returns the
// given reader unchanged.
func HandleBGZF(buf *bufio.Reader) (io.Reader, error) {
	gz, bgz, err := IsGzip(buf)
	switch {
	case err != nil:
		return nil, err
	case bgz:
		return bgzf.NewReader(buf, 1)
	case gz:
		return gzip.NewReader(buf)
	default:
		return buf, nil
	}
}
