// pkg/store/buffer.go

package store

import "sort"

type pending struct {
	entity  Entity
	deleted bool
}

// writeBuffer holds the mutations of an optimistic transaction until commit,
// keyed by encoded key, in the order they were first staged.
type writeBuffer struct {
	order []string
	ops   map[string]*pending
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{ops: make(map[string]*pending)}
}

func (b *writeBuffer) stage(enc string, p *pending) {
	if _, ok := b.ops[enc]; !ok {
		b.order = append(b.order, enc)
	}
	b.ops[enc] = p
}

func (b *writeBuffer) put(e Entity) {
	v := append([]byte(nil), e.Value...)
	b.stage(e.Key.Encode(), &pending{entity: Entity{Key: e.Key, Value: v}})
}

func (b *writeBuffer) del(k Key) {
	b.stage(k.Encode(), &pending{entity: Entity{Key: k}, deleted: true})
}

// lookup returns the staged state of a key, if any.
func (b *writeBuffer) lookup(enc string) (Lookup, bool) {
	p, ok := b.ops[enc]
	if !ok {
		return Absent, false
	}
	if p.deleted {
		return Absent, true
	}
	v := append([]byte(nil), p.entity.Value...)
	return Found(Entity{Key: p.entity.Key, Value: v}), true
}

// merge applies the staged mutations to the committed result of q.
func (b *writeBuffer) merge(q Query, keys []Key) []Key {
	if len(b.ops) == 0 {
		return keys
	}
	seen := make(map[string]Key, len(keys))
	for _, k := range keys {
		seen[k.Encode()] = k
	}
	for _, enc := range b.order {
		p := b.ops[enc]
		if p.deleted {
			delete(seen, enc)
		} else if q.matches(p.entity.Key) {
			seen[enc] = p.entity.Key
		}
	}
	encs := make([]string, 0, len(seen))
	for enc := range seen {
		encs = append(encs, enc)
	}
	sort.Strings(encs)
	if q.Limit > 0 && len(encs) > q.Limit {
		encs = encs[:q.Limit]
	}
	merged := make([]Key, len(encs))
	for i, enc := range encs {
		merged[i] = seen[enc]
	}
	return merged
}

func (b *writeBuffer) each(fn func(enc string, p *pending)) {
	for _, enc := range b.order {
		fn(enc, b.ops[enc])
	}
}

func (b *writeBuffer) empty() bool {
	return len(b.ops) == 0
}
