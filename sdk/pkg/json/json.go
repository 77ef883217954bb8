package json

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例，与标准库 encoding/json 行为兼容。
// 回放链路上的所有 JSON 解析（消息元数据、请求体校验）都应使用它。
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage 延迟解析的原始 JSON
type RawMessage = jsoniter.RawMessage

// Marshal 序列化对象为 JSON 字节数组
func Marshal(v interface{}) ([]byte, error) {
	return JSON.Marshal(v)
}

// Unmarshal 从 JSON 字节数组反序列化对象
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// UnmarshalFromString 从 JSON 字符串反序列化对象，避免字符串到字节数组的拷贝
func UnmarshalFromString(str string, v interface{}) error {
	return JSON.UnmarshalFromString(str, v)
}

// Valid 判断数据是否为合法 JSON
func Valid(data []byte) bool {
	return JSON.Valid(data)
}
