package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Item is one news entry of an archive file. Only the fields maintenance
// reads or rewrites are exposed; every other field, and the original field
// order, survives a decode/encode cycle untouched.
type Item struct {
	keys   []string
	fields map[string]json.RawMessage
}

// NewItem builds an item from plain values, mostly for tests and tooling.
func NewItem(fields map[string]any, order ...string) (Item, error) {
	it := Item{fields: make(map[string]json.RawMessage, len(fields))}
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if err := it.set(k, v); err != nil {
			return Item{}, err
		}
	}
	for k, v := range fields {
		if _, ok := it.fields[k]; ok {
			continue
		}
		if err := it.set(k, v); err != nil {
			return Item{}, err
		}
	}
	return it, nil
}

// UnmarshalJSON decodes a JSON object, remembering key order.
func (it *Item) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("news item must be a JSON object")
	}

	it.keys = nil
	it.fields = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := it.fields[key]; !dup {
			it.keys = append(it.keys, key)
		}
		it.fields[key] = raw
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the item with its original key order.
func (it Item) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range it.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(it.fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SourceTitle is the source-language title: title_ja, then original_title,
// then title, whichever is first non-empty.
func (it Item) SourceTitle() string {
	for _, k := range []string{"title_ja", "original_title", "title"} {
		if s := it.str(k); s != "" {
			return s
		}
	}
	return ""
}

// Title is the display title.
func (it Item) Title() string { return it.str("title") }

// Origin is the publishing source.
func (it Item) Origin() string { return it.str("origin") }

func (it Item) Category() string { return it.str("category") }

// SetCategory overwrites (or adds) the category field.
func (it *Item) SetCategory(c string) {
	// Encoding a string cannot fail.
	_ = it.set("category", c)
}

// Timestamp returns the unix timestamp, accepting numbers and numeric
// strings. Missing or malformed timestamps sort as zero.
func (it Item) Timestamp() float64 {
	raw, ok := it.fields["timestamp"]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func (it Item) str(key string) string {
	raw, ok := it.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (it *Item) set(key string, v any) error {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	if it.fields == nil {
		it.fields = make(map[string]json.RawMessage)
	}
	if _, ok := it.fields[key]; !ok {
		it.keys = append(it.keys, key)
	}
	it.fields[key] = raw
	return nil
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
