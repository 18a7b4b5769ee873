package service

import (
	"github.com/rs/zerolog/log"
)

type Subscriber interface {
	Subscribe(ids []int64) error
}

// AutoSubscriber subscribes a fixed instrument list after every successful connect.
type AutoSubscriber struct {
	feed Subscriber
	ids  []int64
}

func NewAutoSubscriber(feed Subscriber, ids []int64) *AutoSubscriber {
	return &AutoSubscriber{feed: feed, ids: append([]int64(nil), ids...)}
}

func (a *AutoSubscriber) OnConnect() {
	if len(a.ids) == 0 {
		return
	}
	if err := a.feed.Subscribe(a.ids); err != nil {
		log.Error().Err(err).Int("count", len(a.ids)).Msg("auto subscribe failed")
		return
	}
	log.Info().Int("count", len(a.ids)).Msg("configured instruments subscribed")
}
