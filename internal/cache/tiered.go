package cache

import "time"

// Tiered serves from a fast front tier and falls back to a slower back
// tier. Back-tier hits are copied forward with their original timestamp.
type Tiered struct {
	front tier
	back  tier
	now   func() time.Time
}

var _ Cache = (*Tiered)(nil)

// NewTiered layers front over back, typically a *Memory over a *Persistent.
func NewTiered(front *Memory, back *Persistent, opts ...Option) *Tiered {
	o := buildOptions(opts)
	return &Tiered{front: front, back: back, now: o.now}
}

func (t *Tiered) Get(ref, path string) (string, bool) {
	k := Key{Ref: ref, Path: path}

	if e, ok := t.front.lookup(k); ok {
		return e.Content, true
	}
	e, ok := t.back.lookup(k)
	if !ok {
		return "", false
	}
	t.front.store(k, e)
	return e.Content, true
}

func (t *Tiered) Put(ref, path, content string) {
	k := Key{Ref: ref, Path: path}
	e := Entry{Content: content, StoredAt: t.now()}
	t.front.store(k, e)
	t.back.store(k, e)
}

func (t *Tiered) InvalidateAll() {
	t.front.InvalidateAll()
	t.back.InvalidateAll()
}
