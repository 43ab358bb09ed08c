// Package image detects and loads optical-disc image files into a
// populated disc.Disc, trying each registered format parser in turn.
package image

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"cdemu/disc"
)

// ErrCannotHandle is returned by a Parser when the file it was given does
// not match its format; Load tries the next registered parser.
var ErrCannotHandle = errors.New("image: parser cannot handle this file")

// ErrDataFileMissing is returned when an index references a payload file
// that cannot be found relative to the index.
var ErrDataFileMissing = errors.New("image: referenced data file missing")

// ErrParse marks a structurally invalid image recognized by its format but
// malformed past that point.
var ErrParse = errors.New("image: parse error")

// Parser is satisfied by each format-specific loader. Load is handed the
// main index filename (the .toc/.cue/.nrg file) plus any additional
// filenames the caller supplied (multi-session cue images list one file
// per session); a Parser that doesn't recognize the file returns
// ErrCannotHandle so Load can try the next one.
type Parser interface {
	// Name identifies the parser for error messages and CLI selection.
	Name() string
	// Load parses filenames into a fresh disc.Disc.
	Load(filenames []string) (*disc.Disc, error)
}

var registered []Parser

// Register adds a parser to the set Load tries, in registration order.
func Register(p Parser) {
	registered = append(registered, p)
}

// Load tries every registered parser against filenames[0] in order,
// returning the first successful result. A parser's ErrCannotHandle is
// swallowed and the next parser tried; any other error aborts immediately
// and propagates to the caller (e.g. the device's load RPC).
func Load(filenames []string) (*disc.Disc, error) {
	if len(filenames) == 0 {
		return nil, errors.New("image: no filenames given")
	}
	var lastErr error
	for _, p := range registered {
		d, err := p.Load(filenames)
		if err == nil {
			return d, nil
		}
		if errors.Cause(err) == ErrCannotHandle {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr == nil {
		lastErr = ErrCannotHandle
	}
	return nil, errors.Wrap(lastErr, "image: no parser recognized the file")
}

// FileStream is a fragment.Stream backed by an *os.File, opened once and
// shared by every fragment that references it — Go's GC keeps the
// underlying file descriptor alive exactly as long as some fragment holds
// a pointer to the FileStream, so no manual refcounting is needed.
type FileStream struct {
	mu   sync.Mutex
	f    *os.File
	size int64
}

// OpenFileStream opens path once; multiple fragments may share the result.
func OpenFileStream(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDataFileMissing, "image: open %s: %v", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrDataFileMissing, "image: stat %s: %v", path, err)
	}
	return &FileStream{f: f, size: info.Size()}, nil
}

func (s *FileStream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.ReadAt(p, off)
}

func (s *FileStream) Size() (int64, error) {
	return s.size, nil
}

// ModeCodeEntry is one row of the shared MDS/NRG mode-code table both image
// parsers convert into a disc.TrackMode plus main/sub sector sizes. A main
// size of 2352 means the image stores raw sectors; smaller sizes are cooked
// user data the sector model reframes on read.
type ModeCodeEntry struct {
	Mode disc.TrackMode
	Main int
	Sub  int
}

// ModeCodeTable is keyed by the raw mode byte as stored by either format.
var ModeCodeTable = map[byte]ModeCodeEntry{
	0x00: {disc.TrackModeMode2Formless, 2336, 0},
	0x01: {disc.TrackModeAudio, 2352, 0},
	0xA9: {disc.TrackModeAudio, 2352, 0},
	0x02: {disc.TrackModeMode1, 2048, 0},
	0xAA: {disc.TrackModeMode1, 2352, 0},
	0x03: {disc.TrackModeMode2Formless, 2336, 0},
	0x04: {disc.TrackModeMode2Form1, 2048, 0},
	0xAC: {disc.TrackModeMode2Form1, 2048, 0},
	0x05: {disc.TrackModeMode2Form2, 2324, 0},
	0xAD: {disc.TrackModeMode2Form2, 2324, 0},
	0x06: {disc.TrackModeMode2Mixed, 2352, 0},
	0x07: {disc.TrackModeAudio, 2352, 0},
	0x0F: {disc.TrackModeMode1, 2352, 96},
	0x10: {disc.TrackModeAudio, 2352, 96},
	0x11: {disc.TrackModeMode2Mixed, 2352, 96},
}
