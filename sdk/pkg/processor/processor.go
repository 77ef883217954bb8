// Package processor 定义消息处理器扩展点：把一条原始消息转换为零个或多个待回放的事件与请求。
package processor

import (
	"bytes"
	"net/http"
	"time"
)

// Event 一次被记录的历史请求
type Event interface {
	// Timestamp 原始请求发生的时间
	Timestamp() time.Time
	// ResponseTime 原始请求的响应时间（若有记录）
	ResponseTime() (time.Duration, bool)
}

// Request 回放请求描述，创建后不可修改
type Request struct {
	method string
	url    string
	header http.Header
	body   []byte
}

// NewRequest 创建回放请求描述，header 与 body 会被复制
func NewRequest(method, url string, header http.Header, body []byte) *Request {
	return &Request{
		method: method,
		url:    url,
		header: header.Clone(),
		body:   bytes.Clone(body),
	}
}

func (r *Request) Method() string { return r.method }

func (r *Request) URL() string { return r.url }

// Header 返回请求头的副本
func (r *Request) Header() http.Header { return r.header.Clone() }

// Body 返回请求体的副本
func (r *Request) Body() []byte { return bytes.Clone(r.body) }

// EventAndRequest 事件与其对应的回放请求
type EventAndRequest struct {
	Event   Event
	Request *Request
}

// Processor 消息处理器。解析失败的消息可以被过滤（返回空切片），
// 返回 error 表示处理器自身异常，调用方计数并丢弃该消息。
type Processor interface {
	Process(payload []byte) ([]EventAndRequest, error)
}

// ProcessorFunc 函数适配器
type ProcessorFunc func(payload []byte) ([]EventAndRequest, error)

func (f ProcessorFunc) Process(payload []byte) ([]EventAndRequest, error) {
	return f(payload)
}
