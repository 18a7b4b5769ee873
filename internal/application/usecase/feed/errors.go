package feed

import "errors"

var (
	// ErrNotConnected 非 Connected 状态下订阅
	ErrNotConnected = errors.New("feed: not connected")

	// ErrTransport 底层会话 open/close/send 失败
	ErrTransport = errors.New("feed: transport failure")

	// ErrAttemptsExhausted 重连次数用尽，需要手动 Connect 后重新启动重连
	ErrAttemptsExhausted = errors.New("feed: reconnect attempts exhausted")

	// ErrDisconnected a connect that was still in flight when Disconnect ran
	ErrDisconnected = errors.New("feed: disconnected during connect")
)
