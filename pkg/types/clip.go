package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the ISO-8601 form used for clip timestamps (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Clip is one saved text snippet.
type Clip struct {
	ID         string
	Content    string
	Tags       []string
	IsFavorite bool
	Timestamp  string

	// Extra holds fields that are not part of the clip shape, and clip
	// fields whose JSON type did not fit. They arrive through import and
	// are written back untouched.
	Extra map[string]json.RawMessage
}

// NewClip creates a clip with a fresh id and the current time.
func NewClip(content string, tags []string) Clip {
	return NewClipAt(content, tags, time.Now())
}

// NewClipAt creates a clip with a fresh id stamped with now.
func NewClipAt(content string, tags []string, now time.Time) Clip {
	if tags == nil {
		tags = []string{}
	}
	return Clip{
		ID:         NewID(),
		Content:    content,
		Tags:       tags,
		IsFavorite: false,
		Timestamp:  FormatTimestamp(now),
	}
}

// NewID returns a time-ordered id with a random suffix (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Normalize fills in id and timestamp when they are absent and leaves
// everything else as supplied. A timestamp kept raw in Extra counts as present.
func (c *Clip) Normalize(now time.Time) {
	if c.ID == "" {
		c.ID = NewID()
	}
	if _, raw := c.Extra["timestamp"]; c.Timestamp == "" && !raw {
		c.Timestamp = FormatTimestamp(now)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
}

// SetFavorite marks or unmarks the clip, replacing any raw isFavorite value.
func (c *Clip) SetFavorite(favorite bool) {
	c.IsFavorite = favorite
	c.dropRaw("isFavorite")
}

// SetTags replaces the tags, replacing any raw tags value.
func (c *Clip) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	c.Tags = tags
	c.dropRaw("tags")
}

// dropRaw removes key from Extra without touching a map shared with copies.
func (c *Clip) dropRaw(key string) {
	if _, ok := c.Extra[key]; !ok {
		return
	}
	extra := make(map[string]json.RawMessage, len(c.Extra)-1)
	for k, v := range c.Extra {
		if k != key {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}
	c.Extra = extra
}

// MarshalJSON writes the clip fields followed by any extra fields in key order.
// A clip field held raw in Extra is written in place of the typed value.
func (c Clip) MarshalJSON() ([]byte, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	fields := []struct {
		key   string
		value any
	}{
		{"id", c.ID},
		{"content", c.Content},
		{"tags", tags},
		{"isFavorite", c.IsFavorite},
		{"timestamp", c.Timestamp},
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		if !knownField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, ok := c.Extra[f.key]
		if !ok {
			var err error
			if value, err = marshalNoEscape(f.value); err != nil {
				return nil, err
			}
		}
		buf.WriteString(`"` + f.key + `":`)
		buf.Write(value)
	}
	for _, k := range keys {
		name, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(c.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts any JSON object. A clip field whose JSON type does
// not fit is left at its zero value and kept raw in Extra so it is written
// back unchanged. null counts as absent. An id that is null, false, 0 or ""
// counts as absent; any other non-string id is kept in its textual form.
func (c *Clip) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("clip must be a JSON object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("clip must be a JSON object, got null")
	}

	out := Clip{Tags: []string{}}
	for key, raw := range fields {
		var ok bool
		switch key {
		case "id":
			out.ID, ok = decodeID(raw), true
		case "content":
			ok = decodeField(raw, &out.Content)
		case "tags":
			var tags []string
			if ok = decodeField(raw, &tags); ok && tags != nil {
				out.Tags = tags
			}
		case "isFavorite":
			ok = decodeField(raw, &out.IsFavorite)
		case "timestamp":
			ok = isFalsy(raw) || decodeField(raw, &out.Timestamp)
		}
		if ok {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[key] = append(json.RawMessage(nil), raw...)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}

	*c = out
	return nil
}

func knownField(key string) bool {
	switch key {
	case "id", "content", "tags", "isFavorite", "timestamp":
		return true
	}
	return false
}

// decodeField unmarshals raw into dst and reports whether it fit. null
// leaves dst alone.
func decodeField(raw json.RawMessage, dst any) bool {
	if isNull(raw) {
		return true
	}
	return json.Unmarshal(raw, dst) == nil
}

func decodeID(raw json.RawMessage) string {
	if isFalsy(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

// isFalsy reports whether raw is null, false, a zero number or "".
func isFalsy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "null", "false", `""`:
		return true
	}
	var n float64
	return len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')) &&
		json.Unmarshal(trimmed, &n) == nil && n == 0
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
