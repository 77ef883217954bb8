package druid

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
)

const sampleQuery = `{"queryType":"timeseries","dataSource":"wikipedia","intervals":["2019-10-28/2019-10-29"]}`

// TestQueryLogParser_Parse 测试 query-log 记录解析
func TestQueryLogParser_Parse(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		latency time.Duration
		wantErr string
	}{
		{
			name:    "query time as string",
			record:  "2019-10-28T12:34:56.789Z\t10.0.0.7\t" + sampleQuery + "\t" + `{"query/time":"1523","success":"true"}`,
			latency: 1523 * time.Millisecond,
		},
		{
			name:    "query time as number",
			record:  "2019-10-28T12:34:56.789Z\t10.0.0.7\t" + sampleQuery + "\t" + `{"query/time":87,"query/bytes":1024}` + "\n",
			latency: 87 * time.Millisecond,
		},
		{
			name:    "missing fields",
			record:  "2019-10-28T12:34:56.789Z\t10.0.0.7",
			wantErr: "expected 4 tab separated fields",
		},
		{
			name:    "bad timestamp",
			record:  "yesterday\t10.0.0.7\t{}\t{}",
			wantErr: "invalid timestamp",
		},
		{
			name:    "bad metadata",
			record:  "2019-10-28T12:34:56Z\t10.0.0.7\t{}\t{broken",
			wantErr: "invalid query metadata",
		},
		{
			name:    "no query time",
			record:  "2019-10-28T12:34:56Z\t10.0.0.7\t{}\t{}",
			wantErr: "no query/time",
		},
	}

	parser, err := ParserByName(QueryLogParserName)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := parser.Parse(tt.record)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, time.Date(2019, 10, 28, 12, 34, 56, 789000000, time.UTC), event.Timestamp().UTC())
			assert.Equal(t, "10.0.0.7", event.RemoteAddr)
			assert.Equal(t, sampleQuery, event.Query)
			rt, ok := event.ResponseTime()
			assert.True(t, ok)
			assert.Equal(t, tt.latency, rt)
		})
	}
}

// TestParserByName_Unknown 测试未知解析器
func TestParserByName_Unknown(t *testing.T) {
	_, err := ParserByName("nginx-access-log")
	assert.Error(t, err)
}

// TestProcessor_Process 测试记录转换为 POST 请求
func TestProcessor_Process(t *testing.T) {
	p, err := processor.New(ProviderName, map[string]interface{}{"url": "http://broker:8082/druid/v2"}, nil)
	require.NoError(t, err)

	record := "2019-10-28T12:34:56.789Z\t10.0.0.7\t" + sampleQuery + "\t" + `{"query/time":"1523"}`
	pairs, err := p.Process([]byte(record))
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	req := pairs[0].Request
	assert.Equal(t, http.MethodPost, req.Method())
	assert.Equal(t, "http://broker:8082/druid/v2", req.URL())
	assert.Equal(t, DefaultUserAgent, req.Header().Get("User-Agent"))
	assert.JSONEq(t, sampleQuery, string(req.Body()))
	assert.Equal(t, time.Date(2019, 10, 28, 12, 34, 56, 789000000, time.UTC), pairs[0].Event.Timestamp().UTC())
}

// TestProcessor_FiltersInvalid 测试解析失败的记录被过滤并计数
func TestProcessor_FiltersInvalid(t *testing.T) {
	p, err := New(Config{URL: "http://broker:8082/druid/v2", UserAgent: "replay"}, nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(parseFailures)
	pairs, err := p.Process([]byte("garbage"))
	assert.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, float64(1), testutil.ToFloat64(parseFailures)-before)
}

// TestNew_Validation 测试配置校验
func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{URL: "http://broker", Parser: "unknown"}, nil)
	assert.Error(t, err)
}
