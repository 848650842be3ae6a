package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memoryDoc struct {
	data []byte
	seq  int
}

// MemoryCollection keeps documents in process. Documents go through the same
// JSON encoding as PGCollection, so callers never share memory with the store.
type MemoryCollection[T any] struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	seq  int
}

func NewMemoryCollection[T any]() *MemoryCollection[T] {
	return &MemoryCollection[T]{docs: make(map[string]memoryDoc)}
}

func (c *MemoryCollection[T]) Insert(_ context.Context, id string, doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; ok {
		return fmt.Errorf("%w %q", ErrDuplicate, id)
	}
	c.seq++
	c.docs[id] = memoryDoc{data: data, seq: c.seq}
	return nil
}

func (c *MemoryCollection[T]) Get(_ context.Context, id string) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	return decode[T](d.data)
}

func (c *MemoryCollection[T]) List(_ context.Context) ([]T, error) {
	return c.filter(func(map[string]any) bool { return true })
}

func (c *MemoryCollection[T]) Find(_ context.Context, field, value string) ([]T, error) {
	return c.filter(func(fields map[string]any) bool {
		v, ok := fields[field]
		if !ok || v == nil {
			return false
		}
		if s, ok := v.(string); ok {
			return s == value
		}
		raw, err := json.Marshal(v)
		return err == nil && string(raw) == value
	})
}

func (c *MemoryCollection[T]) Replace(_ context.Context, id string, doc *T) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.docs[id]
	if !ok {
		return false, nil
	}
	d.data = data
	c.docs[id] = d
	return true, nil
}

func (c *MemoryCollection[T]) Update(_ context.Context, id string, fields map[string]any) (*T, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(patch, &normalized); err != nil {
		return nil, err
	}

	return c.mutate(id, func(doc map[string]any) {
		for k, v := range normalized {
			doc[k] = v
		}
	})
}

func (c *MemoryCollection[T]) AddInt(_ context.Context, id, field string, delta int) (*T, error) {
	return c.mutate(id, func(doc map[string]any) {
		current, _ := doc[field].(float64)
		doc[field] = max(int(current)+delta, 0)
	})
}

func (c *MemoryCollection[T]) Delete(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return false, nil
	}
	delete(c.docs, id)
	return true, nil
}

func (c *MemoryCollection[T]) mutate(id string, fn func(map[string]any)) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.docs[id]
	if !ok {
		return nil, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(d.data, &fields); err != nil {
		return nil, err
	}
	fn(fields)

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	doc, err := decode[T](data)
	if err != nil {
		return nil, err
	}

	d.data = data
	c.docs[id] = d
	return doc, nil
}

func (c *MemoryCollection[T]) filter(keep func(map[string]any) bool) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := make([]memoryDoc, 0, len(c.docs))
	for _, d := range c.docs {
		var fields map[string]any
		if err := json.Unmarshal(d.data, &fields); err != nil {
			return nil, err
		}
		if keep(fields) {
			matched = append(matched, d)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	docs := make([]T, 0, len(matched))
	for _, d := range matched {
		doc, err := decode[T](d.data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}
