package feed

import "mdfeed/internal/domain"

// LatestCache maps an instrument id to the most recent tick seen for it.
type LatestCache struct {
	ticks map[int64]domain.Tick
}

func NewLatestCache() *LatestCache {
	return &LatestCache{ticks: make(map[int64]domain.Tick)}
}

func (c *LatestCache) Set(t domain.Tick) {
	c.ticks[t.InstrumentID] = t
}

// Get reports false when nothing was ever recorded for id.
func (c *LatestCache) Get(id int64) (domain.Tick, bool) {
	t, ok := c.ticks[id]
	return t, ok
}

func (c *LatestCache) Remove(id int64) {
	delete(c.ticks, id)
}

func (c *LatestCache) Len() int { return len(c.ticks) }
