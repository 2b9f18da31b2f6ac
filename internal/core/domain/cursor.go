package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPerPage is the page size assumed for legacy bare-integer cursors.
const DefaultPerPage = 20

// CursorKind tags which shape a Cursor holds.
type CursorKind int

const (
	// CursorNone is the zero cursor: start from the beginning.
	CursorNone CursorKind = iota

	// CursorPage is the structured {perPage, pageNo} cursor.
	CursorPage

	// CursorLegacy is a bare page number written before the structured
	// format existed. It always carries DefaultPerPage.
	CursorLegacy

	// CursorProvider is an opaque provider-native cursor string. It is
	// stored tagged as {"token": ...} so any token survives a round trip.
	CursorProvider
)

// Cursor is a resumable pagination position. Build one with
// NewPageCursor, LegacyCursor, ProviderCursor or ParseCursor; the
// fields are exported for structural comparison only.
type Cursor struct {
	Kind    CursorKind
	PerPage int
	PageNo  int
	Token   string
}

type pageCursorJSON struct {
	PerPage int `json:"perPage"`
	PageNo  int `json:"pageNo"`
}

type providerCursorJSON struct {
	Token string `json:"token"`
}

// storedCursorJSON accepts either tagged form.
type storedCursorJSON struct {
	PerPage int    `json:"perPage"`
	PageNo  int    `json:"pageNo"`
	Token   string `json:"token"`
}

// NewPageCursor returns a structured cursor.
func NewPageCursor(perPage, pageNo int) Cursor {
	return Cursor{Kind: CursorPage, PerPage: perPage, PageNo: pageNo}
}

// LegacyCursor returns a bare page number cursor.
func LegacyCursor(pageNo int) Cursor {
	return Cursor{Kind: CursorLegacy, PerPage: DefaultPerPage, PageNo: pageNo}
}

// ProviderCursor wraps a provider-native cursor string.
func ProviderCursor(token string) Cursor {
	if token == "" {
		return Cursor{}
	}
	return Cursor{Kind: CursorProvider, Token: token}
}

// ParseCursor is the single normalizing constructor for stored cursors.
//
//	""               -> zero cursor
//	"12"             -> legacy page 12, DefaultPerPage
//	`{"perPage":..}` -> structured page cursor
//	`{"token":..}`   -> provider-native cursor
//	anything else    -> untagged provider cursor from older rows
func ParseCursor(s string) (Cursor, error) {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return Cursor{}, nil
	case strings.HasPrefix(trimmed, "{"):
		return parseTaggedCursor(trimmed)
	case isDigits(trimmed):
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		return LegacyCursor(n), nil
	case strings.HasPrefix(trimmed, "-"):
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	default:
		return ProviderCursor(s), nil
	}
}

func parseTaggedCursor(s string) (Cursor, error) {
	var raw storedCursorJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if raw.Token != "" {
		if raw.PerPage != 0 || raw.PageNo != 0 {
			return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
		}
		return ProviderCursor(raw.Token), nil
	}
	if raw.PerPage <= 0 || raw.PageNo < 1 {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	return NewPageCursor(raw.PerPage, raw.PageNo), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String serializes the cursor. ParseCursor(c.String()) == c.
func (c Cursor) String() string {
	switch c.Kind {
	case CursorPage:
		b, _ := json.Marshal(pageCursorJSON{PerPage: c.PerPage, PageNo: c.PageNo})
		return string(b)
	case CursorLegacy:
		return strconv.Itoa(c.PageNo)
	case CursorProvider:
		b, _ := json.Marshal(providerCursorJSON{Token: c.Token})
		return string(b)
	default:
		return ""
	}
}

// IsZero reports whether the cursor points at the start.
func (c Cursor) IsZero() bool {
	return c.Kind == CursorNone
}

// IsPaged reports whether Next can compute the following position
// without asking the provider.
func (c Cursor) IsPaged() bool {
	return c.Kind == CursorPage || c.Kind == CursorLegacy
}

// Next returns the following page with the same page size. Legacy
// cursors normalize to the structured form. Provider cursors cannot
// be advanced locally and are returned unchanged.
func (c Cursor) Next() Cursor {
	if !c.IsPaged() {
		return c
	}
	return NewPageCursor(c.PerPage, c.PageNo+1)
}

// WithPerPage resizes a page cursor, keeping the page number.
func (c Cursor) WithPerPage(perPage int) Cursor {
	if !c.IsPaged() {
		return c
	}
	return NewPageCursor(perPage, c.PageNo)
}
