package stat

import "strconv"

// TotalKey 网关整体流量
const TotalKey = "total"

// GroupKey 某个 group 的流量
func GroupKey(group string) string { return "group:" + group }

// ModuleKey 某个 group 下某个 module 的流量
func ModuleKey(group string, module uint16) string {
	return "group:" + group + "|module:" + strconv.FormatUint(uint64(module), 10)
}

// EndpointKey 某个连接的流量
func EndpointKey(endpoint string) string { return "endpoint:" + endpoint }

// PacketKey 某个连接上某种 P2P 基础消息的流量
func PacketKey(endpoint string, packetType uint16) string {
	return "endpoint:" + endpoint + "|packet:" + strconv.FormatUint(uint64(packetType), 10)
}
