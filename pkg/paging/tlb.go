package paging

import (
	lru "github.com/hashicorp/golang-lru"
)

// TLB caches page translations in front of another Translator. Because
// the walk maps whole 4KiB pages, one cached entry serves every offset
// within the page.
//
// Translators themselves are stateless; the TLB is the only place a
// translation is remembered, and it is opt-in.
type TLB struct {
	next  Translator
	cache *lru.Cache
}

type tlbKey struct {
	dirbase uint64
	page    uint32
}

// NewTLB returns a TLB holding at most size page translations.
func NewTLB(next Translator, size int) (*TLB, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &TLB{next: next, cache: cache}, nil
}

// Translate implements Translator.
func (t *TLB) Translate(vaddr uint32, dirbase uint64) (uint64, error) {
	key := tlbKey{dirbase: dirbase, page: vaddr &^ 0xfff}
	if base, ok := t.cache.Get(key); ok {
		return base.(uint64) + uint64(vaddr&0xfff), nil
	}
	paddr, err := t.next.Translate(vaddr, dirbase)
	if err != nil {
		return 0, err
	}
	t.cache.Add(key, paddr&^uint64(0xfff))
	return paddr, nil
}
