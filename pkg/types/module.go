package types

import (
	"strconv"
	"strings"
)

// ModuleID 网关消息所属的业务模块
type ModuleID = uint16

// 网关承载的业务模块
const (
	ModulePBFT        ModuleID = 1000
	ModuleRaft        ModuleID = 1001
	ModuleBlockSync   ModuleID = 2000
	ModuleTxsSync     ModuleID = 2001
	ModuleConsTxsSync ModuleID = 2002
	ModuleAMOP        ModuleID = 3000
	ModuleLightNode   ModuleID = 4000
)

var moduleNames = map[string]ModuleID{
	"pbft":          ModulePBFT,
	"raft":          ModuleRaft,
	"block_sync":    ModuleBlockSync,
	"txs_sync":      ModuleTxsSync,
	"cons_txs_sync": ModuleConsTxsSync,
	"amop":          ModuleAMOP,
	"light_node":    ModuleLightNode,
}

// ModuleNames 可识别的模块名
const ModuleNames = "raft,pbft,amop,block_sync,txs_sync,cons_txs_sync,light_node"

// ParseModuleID 解析模块名（不区分大小写）或数字 ID
func ParseModuleID(s string) (ModuleID, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if id, ok := moduleNames[s]; ok {
		return id, true
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return ModuleID(n), true
}
