package svc

import "errors"

// ErrNoSinksEnabled 没有启用任何存储或 broker，行情只保留在内存中（警告，不致命）
var ErrNoSinksEnabled = errors.New("no storage or broker enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
