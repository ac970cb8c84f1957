package gateway

import "errors"

var (
	// ErrIncomingQPSOverflow 入站消息超过 QPS 限制
	ErrIncomingQPSOverflow = errors.New("incoming qps overflow")
	// ErrOutgoingBwOverflow 出站消息超过带宽限制
	ErrOutgoingBwOverflow = errors.New("outgoing bandwidth overflow")
)
