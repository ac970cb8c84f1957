// flowctl 网关流量控制服务的命令行入口
package main

func main() {
	Execute()
}
