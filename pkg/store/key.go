// pkg/store/key.go

package store

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Key names one entity. Keys form a tree through Parent, the way datastore
// entity groups do; a zero Key names nothing.
//
// The encoded form is the path of "kind:name" elements from the root, each
// prefixed with '/'. Components are query-escaped, so the separators never
// appear inside them and the byte order of encoded keys is the key order.
type Key struct {
	Parent *Key
	Kind   string
	Name   string
}

// NewKey returns the key of kind/name under parent (nil for a root key).
func NewKey(kind, name string, parent *Key) Key {
	return Key{Parent: parent, Kind: kind, Name: name}
}

func (k Key) IsZero() bool {
	return k.Kind == "" && k.Name == ""
}

func (k Key) Encode() string {
	var sb strings.Builder
	k.encode(&sb)
	return sb.String()
}

func (k Key) encode(sb *strings.Builder) {
	if k.Parent != nil {
		k.Parent.encode(sb)
	}
	sb.WriteByte('/')
	sb.WriteString(url.QueryEscape(k.Kind))
	sb.WriteByte(':')
	sb.WriteString(url.QueryEscape(k.Name))
}

func (k Key) String() string {
	return k.Encode()
}

// Compare orders keys the way every backend orders their encoded form.
func (k Key) Compare(o Key) int {
	return strings.Compare(k.Encode(), o.Encode())
}

func (k Key) Equal(o Key) bool {
	return k.Encode() == o.Encode()
}

// ChildOf reports whether parent is the direct parent of k.
func (k Key) ChildOf(parent Key) bool {
	return k.Parent != nil && k.Parent.Equal(parent)
}

// ParseKey decodes the output of Encode. The leading '/' may be omitted.
func ParseKey(s string) (Key, error) {
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Key{}, errors.New("empty key")
	}
	var parent *Key
	var k Key
	for _, elem := range strings.Split(s, "/") {
		p := strings.IndexByte(elem, ':')
		if p <= 0 {
			return Key{}, errors.Errorf("invalid key element %q in %q", elem, s)
		}
		kind, err := url.QueryUnescape(elem[:p])
		if err != nil {
			return Key{}, errors.Wrapf(err, "kind of %q", elem)
		}
		name, err := url.QueryUnescape(elem[p+1:])
		if err != nil {
			return Key{}, errors.Wrapf(err, "name of %q", elem)
		}
		k = Key{Parent: parent, Kind: kind, Name: name}
		pk := k
		parent = &pk
	}
	return k, nil
}

// childRange returns the encoded bounds [start, end) covering the descendants
// of parent that sort after `after` (all of them when after is nil).
func childRange(parent Key, after *Key) (string, string, bool) {
	prefix := parent.Encode() + "/"
	start := prefix
	if after != nil {
		if a := after.Encode() + "\x00"; a > start {
			start = a
		}
	}
	// '0' is the byte following '/'
	end := prefix[:len(prefix)-1] + "0"
	return start, end, start < end
}

// isChild reports whether an encoded key is a direct child of the encoded parent.
func isChild(enc, parentEnc string) bool {
	if !strings.HasPrefix(enc, parentEnc+"/") {
		return false
	}
	return !strings.Contains(enc[len(parentEnc)+1:], "/")
}
