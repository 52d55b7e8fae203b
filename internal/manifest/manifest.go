// Package manifest parses the newline-delimited tensor-name list that seeds
// an incremental split load's expected-tensor set.
package manifest

import (
	"bufio"
	"bytes"
	"errors"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
)

// ErrManifestUnavailable is returned when the manifest's backing bytes could
// not be obtained at all (future extraction failed, or the source errored).
var ErrManifestUnavailable = errors.New("manifest: unavailable")

// Set is the closed set of tensor names a load expects across all splits.
type Set map[string]struct{}

// Contains reports whether name is a member of the set.
func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Parse splits data on newlines; each non-empty line becomes a tensor name.
// Duplicate lines collapse into a single set member.
func Parse(data []byte) Set {
	set := make(Set)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		set[string(line)] = struct{}{}
	}
	return set
}

// Load reads the full content of bs (its Size() must be known up front, as
// all ByteSource implementations guarantee) and parses it as a manifest.
func Load(bs bytesource.ByteSource) (Set, error) {
	if bs == nil {
		return nil, ErrManifestUnavailable
	}
	size := bs.Size()
	if size < 0 {
		return nil, ErrManifestUnavailable
	}
	if _, err := bs.Seek(0, 0); err != nil {
		return nil, ErrManifestUnavailable
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := bs.Read(buf); err != nil {
			return nil, ErrManifestUnavailable
		}
	}
	return Parse(buf), nil
}
