// Package druid 回放 Druid broker 查询日志的消息处理器，注册名为 "druid"。
package druid

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
)

const (
	// ProviderName 处理器注册名
	ProviderName = "druid"

	DefaultUserAgent = "Http Load Test"
)

var parseFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "traffic_replay",
	Subsystem: "druid",
	Name:      "parse_failures_total",
	Help:      "Number of query log records that could not be parsed and were filtered",
})

func init() {
	processor.Register(ProviderName, NewFromSettings)
}

// Config Druid 处理器配置
type Config struct {
	URL       string // 目标 broker 查询地址，例如 http://broker:8082/druid/v2
	Parser    string // 解析器名称
	UserAgent string
}

// Processor 把 query-log 记录转换为发往 Druid broker 的 POST 请求
type Processor struct {
	cfg    Config
	parser Parser
	header http.Header
	logger *zap.Logger
}

// NewFromSettings 以 extensions.settings 创建处理器
func NewFromSettings(settings map[string]interface{}, logger *zap.Logger) (processor.Processor, error) {
	cfg := Config{
		URL:       cast.ToString(settings["url"]),
		Parser:    cast.ToString(settings["parser"]),
		UserAgent: cast.ToString(settings["userAgent"]),
	}
	return New(cfg, logger)
}

// New 创建处理器
func New(cfg Config, logger *zap.Logger) (*Processor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("druid url is required")
	}
	if cfg.Parser == "" {
		cfg.Parser = QueryLogParserName
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	parser, err := ParserByName(cfg.Parser)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	header := make(http.Header)
	header.Set("User-Agent", cfg.UserAgent)
	header.Set("Content-Type", "application/json; charset=utf-8")

	return &Processor{cfg: cfg, parser: parser, header: header, logger: logger}, nil
}

// Process 解析失败的记录被记录并过滤，不返回错误
func (p *Processor) Process(payload []byte) ([]processor.EventAndRequest, error) {
	record := string(payload)
	event, err := p.parser.Parse(record)
	if err != nil {
		parseFailures.Inc()
		p.logger.Warn("failed to parse record",
			zap.String("parser", p.cfg.Parser),
			zap.String("record", record),
			zap.Error(err))
		return nil, nil
	}

	req := processor.NewRequest(http.MethodPost, p.cfg.URL, p.header, []byte(event.Query))
	return []processor.EventAndRequest{{Event: event, Request: req}}, nil
}
