package store

import (
	"bytes"
	"sort"
	"strings"
	"sync"
)

type memoryData struct {
	mutex sync.RWMutex
	data  map[string][]byte
}

// Memory is a process local KV. Closing a handle keeps the data so a new
// handle from Reopen sees everything written before, like reopening a file.
type Memory struct {
	shared *memoryData
	closed bool
}

func NewMemoryKV() *Memory {
	return &Memory{shared: &memoryData{data: map[string][]byte{}}}
}

func (m *Memory) Reopen() *Memory {
	return &Memory{shared: m.shared}
}

func (m *Memory) Get(key []byte) ([]byte, bool, error) {
	m.shared.mutex.RLock()
	defer m.shared.mutex.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	value, ok := m.shared.data[string(key)]
	return bytes.Clone(value), ok, nil
}

func (m *Memory) Put(key, value []byte) error {
	return m.Update(func(batch Batch) error { return batch.Put(key, value) })
}

func (m *Memory) Delete(key []byte) error {
	return m.Update(func(batch Batch) error { return batch.Delete(key) })
}

func (m *Memory) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	m.shared.mutex.RLock()
	if m.closed {
		m.shared.mutex.RUnlock()
		return ErrClosed
	}
	var keys []string
	for key := range m.shared.data {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = bytes.Clone(m.shared.data[key])
	}
	m.shared.mutex.RUnlock()
	for i, key := range keys {
		if !fn([]byte(key), values[i]) {
			return nil
		}
	}
	return nil
}

func (m *Memory) Update(fn func(batch Batch) error) error {
	m.shared.mutex.Lock()
	defer m.shared.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	batch := &memoryBatch{puts: map[string][]byte{}, deletes: map[string]struct{}{}}
	if err := fn(batch); err != nil {
		return err
	}
	for key := range batch.deletes {
		delete(m.shared.data, key)
	}
	for key, value := range batch.puts {
		m.shared.data[key] = value
	}
	return nil
}

func (m *Memory) Close() error {
	m.shared.mutex.Lock()
	defer m.shared.mutex.Unlock()
	m.closed = true
	return nil
}

type memoryBatch struct {
	puts    map[string][]byte
	deletes map[string]struct{}
}

func (b *memoryBatch) Put(key, value []byte) error {
	delete(b.deletes, string(key))
	b.puts[string(key)] = bytes.Clone(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	delete(b.puts, string(key))
	b.deletes[string(key)] = struct{}{}
	return nil
}
