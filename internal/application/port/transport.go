package port

// Transport 外部行情会话（真正建立 socket、收发订阅帧的一方）
// SendSubscribe / SendUnsubscribe 为 fire-and-forget，错误只用于判断操作是否成功
type Transport interface {
	Open() error
	Close() error
	SendSubscribe(ids []int64) error
	SendUnsubscribe(ids []int64) error
}
