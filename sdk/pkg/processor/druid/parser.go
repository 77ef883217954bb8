package druid

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	jxtjson "github.com/ChenBigdata421/jxt-replay/sdk/pkg/json"
)

// QueryLogParserName Druid request log（query-log）格式解析器名称
const QueryLogParserName = "druid-query-log"

// Parser 把一条原始记录解析为 Druid 事件
type Parser interface {
	Parse(record string) (*Event, error)
}

var parsers = map[string]Parser{
	QueryLogParserName: queryLogParser{},
}

// ParserByName 按名称获取解析器
func ParserByName(name string) (Parser, error) {
	p, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("druid record parser %q not found", name)
	}
	return p, nil
}

// queryLogParser 解析制表符分隔的 query-log 记录：
//
//	timestamp \t remoteAddr \t query \t metadataJSON
//
// metadataJSON 中的 "query/time" 为原始响应时间（毫秒）。
type queryLogParser struct{}

func (queryLogParser) Parse(record string) (*Event, error) {
	fields := strings.Split(strings.TrimRight(record, "\r\n"), "\t")
	if len(fields) < 4 {
		return nil, fmt.Errorf("expected 4 tab separated fields, got %d", len(fields))
	}

	startTime, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}

	var meta map[string]interface{}
	if err := jxtjson.UnmarshalFromString(fields[3], &meta); err != nil {
		return nil, fmt.Errorf("invalid query metadata: %w", err)
	}
	raw, ok := meta["query/time"]
	if !ok {
		return nil, fmt.Errorf("query metadata has no query/time")
	}
	responseMs, err := cast.ToInt64E(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid query/time %v: %w", raw, err)
	}

	return &Event{
		StartTime:  startTime,
		RemoteAddr: fields[1],
		Query:      fields[2],
		Latency:    time.Duration(responseMs) * time.Millisecond,
	}, nil
}
