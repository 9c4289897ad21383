package postback

import (
	"net/url"
	"strconv"
	"strings"
)

// Payload is a decoded callback. Keys that were not sent are absent,
// which is different from a key sent with an empty value.
type Payload struct {
	Raw       string
	Action    Action
	RawAction string
	fields    map[string]string
}

// Parse decodes raw. It never fails: undecodable escapes are kept
// verbatim and a missing action yields ActionUnknown.
func Parse(raw string) Payload {
	p := Payload{Raw: raw, fields: make(map[string]string)}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = unescape(key)
		if _, dup := p.fields[key]; dup {
			continue
		}
		p.fields[key] = unescape(value)
	}
	p.RawAction = p.fields["action"]
	p.Action = ParseAction(p.RawAction)
	return p
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// Get returns the value of key and whether it was present.
func (p Payload) Get(key string) (string, bool) {
	v, ok := p.fields[key]
	return v, ok
}

// Value returns the value of key, or "" when absent.
func (p Payload) Value(key string) string {
	return p.fields[key]
}

// Int64 parses key as a positive id.
func (p Payload) Int64(key string) (int64, bool) {
	v, ok := p.fields[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Bool accepts "true" and "1".
func (p Payload) Bool(key string) bool {
	v := strings.ToLower(p.fields[key])
	return v == "true" || v == "1"
}

// Builder assembles a payload with keys in insertion order.
type Builder struct {
	b strings.Builder
}

func New(action Action) *Builder {
	bl := &Builder{}
	bl.b.WriteString("action=")
	bl.b.WriteString(action.String())
	return bl
}

// Set appends key=value. Empty values are skipped so an absent field stays
// absent on the other side.
func (bl *Builder) Set(key, value string) *Builder {
	if value == "" {
		return bl
	}
	bl.b.WriteByte('&')
	bl.b.WriteString(url.QueryEscape(key))
	bl.b.WriteByte('=')
	bl.b.WriteString(url.QueryEscape(value))
	return bl
}

func (bl *Builder) SetInt(key string, v int64) *Builder {
	return bl.Set(key, strconv.FormatInt(v, 10))
}

func (bl *Builder) String() string {
	return bl.b.String()
}
