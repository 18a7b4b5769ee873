package feed

import "sort"

// SubscriptionSet holds the subscribed instrument ids.
// It has no lock of its own; Feed guards it together with the rest of its state.
type SubscriptionSet struct {
	ids map[int64]struct{}
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{ids: make(map[int64]struct{})}
}

// Add unions ids into the set and returns how many were new.
func (s *SubscriptionSet) Add(ids ...int64) int {
	added := 0
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		added++
	}
	return added
}

// Remove deletes ids and returns the ones that were present.
func (s *SubscriptionSet) Remove(ids ...int64) []int64 {
	var removed []int64
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok {
			continue
		}
		delete(s.ids, id)
		removed = append(removed, id)
	}
	return removed
}

func (s *SubscriptionSet) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// List returns a sorted copy.
func (s *SubscriptionSet) List() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *SubscriptionSet) Len() int { return len(s.ids) }

func (s *SubscriptionSet) Clear() {
	for id := range s.ids {
		delete(s.ids, id)
	}
}
