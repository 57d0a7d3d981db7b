package stats

import (
	"bytes"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
)

// Entry is one key of a frequency distribution
type Entry struct {
	Key   string
	Count int
}

// OrderedCounts is a distribution whose entry order is meaningful.
// It marshals to a JSON object with keys in slice order.
type OrderedCounts []Entry

// MarshalJSON writes {"key": count, ...} preserving order; nil marshals as {}
func (o OrderedCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(e.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the count for key, or 0
func (o OrderedCounts) Get(key string) int {
	for _, e := range o {
		if e.Key == key {
			return e.Count
		}
	}
	return 0
}

// Keys returns the keys in order
func (o OrderedCounts) Keys() []string {
	keys := make([]string, len(o))
	for i, e := range o {
		keys[i] = e.Key
	}
	return keys
}

// Sum adds up every count
func (o OrderedCounts) Sum() int {
	total := 0
	for _, e := range o {
		total += e.Count
	}
	return total
}

// Counter is an insertion-ordered multiset shared by all reducers
type Counter struct {
	index   map[string]int
	entries []Entry
}

// NewCounter returns an empty counter
func NewCounter() *Counter {
	return &Counter{index: make(map[string]int)}
}

// NewDenseCounter returns a counter pre-seeded with zero-count keys, in order
func NewDenseCounter(keys ...string) *Counter {
	c := NewCounter()
	for _, k := range keys {
		c.Add(k, 0)
	}
	return c
}

// Increment adds one occurrence of key
func (c *Counter) Increment(key string) {
	c.Add(key, 1)
}

// Add adds n occurrences of key, registering the key on first sight
func (c *Counter) Add(key string, n int) {
	if i, ok := c.index[key]; ok {
		c.entries[i].Count += n
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, Entry{Key: key, Count: n})
}

// Has reports whether key has been seen (even with a zero count)
func (c *Counter) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Get returns the count for key
func (c *Counter) Get(key string) int {
	if i, ok := c.index[key]; ok {
		return c.entries[i].Count
	}
	return 0
}

// Len returns the number of distinct keys
func (c *Counter) Len() int {
	return len(c.entries)
}

// Total returns the sum of all counts
func (c *Counter) Total() int {
	return OrderedCounts(c.entries).Sum()
}

// Ordered returns the entries in first-seen order
func (c *Counter) Ordered() OrderedCounts {
	out := make(OrderedCounts, len(c.entries))
	copy(out, c.entries)
	return out
}

// TopN returns the n highest counts, descending. Ties keep first-seen order.
// n <= 0 returns every entry.
func (c *Counter) TopN(n int) OrderedCounts {
	out := c.Ordered()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SortedByKey returns every entry ordered by key ascending
func (c *Counter) SortedByKey() OrderedCounts {
	out := c.Ordered()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
