// Package api 通过 chi 路由暴露金库与代理目录的 HTTP 接口。
package api
