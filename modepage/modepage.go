// Package modepage implements the triplicate (current/default/changeable
// mask) MODE SENSE/SELECT page database.
package modepage

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
)

// Selector picks which of the three buffers a caller wants.
type Selector int

const (
	Current Selector = iota
	Default
	ChangeableMask
)

// ErrInvalidField mirrors InvalidFieldInParameterList at the MMC boundary;
// callers map it to sense there.
var ErrInvalidField = errors.New("modepage: invalid field in parameter list")

// Validator is invoked on a successful byte-level modify, before it is
// committed, so a page can reject semantically (not just bytewise) or
// record a side effect (e.g. page 0x05's write_type hook).
type Validator func(newBytes []byte) error

// Page is one mode page's triplicate record.
type Page struct {
	Code      byte
	Current   []byte
	Default   []byte
	Mask      []byte
	Validator Validator
}

func (p *Page) bytesFor(sel Selector) []byte {
	switch sel {
	case Current:
		return p.Current
	case Default:
		return p.Default
	case ChangeableMask:
		return p.Mask
	}
	return nil
}

// Modify applies newBytes to Current if every byte beyond byte 1 either
// matches Current or falls under the changeable mask, and the declared
// length (byte 1 + 2) matches the page's length.
func (p *Page) Modify(newBytes []byte) error {
	if len(newBytes) != len(p.Current) {
		return errors.Wrapf(ErrInvalidField, "page 0x%02X: length mismatch (got %d, want %d)", p.Code, len(newBytes), len(p.Current))
	}
	if int(newBytes[1])+2 != len(newBytes) {
		return errors.Wrapf(ErrInvalidField, "page 0x%02X: declared length byte mismatch", p.Code)
	}
	for i := 2; i < len(newBytes); i++ {
		diff := p.Current[i] ^ newBytes[i]
		if diff&^p.Mask[i] != 0 {
			return errors.Wrapf(ErrInvalidField, "page 0x%02X: byte %d not changeable", p.Code, i)
		}
	}
	if p.Validator != nil {
		if err := p.Validator(newBytes); err != nil {
			return err
		}
	}
	copy(p.Current, newBytes)
	return nil
}

// DB is the ordered-by-code collection of mode pages owned by a Device for
// its entire lifecycle.
type DB struct {
	pages map[byte]*Page
}

// NewDB builds an empty database; use RegisterDefaults to populate the
// mandatory pages.
func NewDB() *DB {
	return &DB{pages: make(map[byte]*Page)}
}

// Register adds a page, keyed by code.
func (d *DB) Register(p *Page) {
	d.pages[p.Code] = p
}

// Get returns the requested buffer for page code, or nil if the page is
// not registered.
func (d *DB) Get(code byte, sel Selector) []byte {
	p, ok := d.pages[code]
	if !ok {
		return nil
	}
	return p.bytesFor(sel)
}

// Modify looks up code and applies newBytes via Page.Modify. Modifying a
// non-existent page fails InvalidFieldInParameterList.
func (d *DB) Modify(code byte, newBytes []byte) error {
	p, ok := d.pages[code]
	if !ok {
		return errors.Wrapf(ErrInvalidField, "page 0x%02X: not present", code)
	}
	return p.Modify(newBytes)
}

// Codes returns every registered page code in ascending order.
func (d *DB) Codes() []byte {
	out := make([]byte, 0, len(d.pages))
	for c := range d.pages {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllBytes concatenates every page's buffer for sel in ascending code
// order, the form MODE SENSE page_code=0x3F returns.
func (d *DB) AllBytes(sel Selector) []byte {
	var buf bytes.Buffer
	for _, c := range d.Codes() {
		buf.Write(d.Get(c, sel))
	}
	return buf.Bytes()
}
