package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/channel"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/httpclient"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/kafka"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/scheduler"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/shutdown"
)

type Application struct {
	cfg         *config.Config                      //配置
	engine      http.Handler                        //管理端点路由引擎
	mux         sync.RWMutex                        //互斥锁
	routers     []Router                            //路由
	logger      *zap.Logger                         //日志
	now         func() time.Time                    //时钟
	newReader   ReaderFactory                       //读取端工厂
	httpDoer    httpclient.Doer                     //回放请求客户端
	signal      *shutdown.Signal                    //进程关闭标记
	records     *channel.Channel[*kafka.RawMessage] //读取端与调度循环之间的有界通道
	ownership   *kafka.Ownership                    //分区归属
	calculator  *scheduler.Calculator               //调度时间计算
	dispatcher  *scheduler.Dispatcher               //定时执行器
	registry    *scheduler.Registry                 //分区任务登记表
	reaper      *scheduler.Reaper                   //已完成任务清理
	scheduling  *scheduler.Service                  //调度循环
	coordinator *kafka.Coordinator                  //重平衡协调器
	httpService *httpclient.Service                 //回放请求发送
	reader      Reader                              //读取端
}

type Router struct {
	HttpMethod, RelativePath, Handler string
}

type Routers struct {
	List []Router
}

// Option 应用选项
type Option func(*Application)

// WithReaderFactory 替换读取端的创建方式
func WithReaderFactory(f ReaderFactory) Option {
	return func(e *Application) {
		e.newReader = f
	}
}

// WithClock 替换时钟（回放起点未配置时取当前时间）
func WithClock(now func() time.Time) Option {
	return func(e *Application) {
		e.now = now
	}
}

// WithHTTPDoer 替换回放请求的 HTTP 客户端
func WithHTTPDoer(doer httpclient.Doer) Option {
	return func(e *Application) {
		e.httpDoer = doer
	}
}

// NewConfig 默认值
func NewConfig() *Application {
	return &Application{
		routers: make([]Router, 0),
		logger:  logger.Logger,
		now:     time.Now,
	}
}

// New 按配置装配全部回放组件
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	e := NewConfig()
	e.cfg = cfg
	for _, opt := range opts {
		opt(e)
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Application) build() error {
	cfg := e.cfg
	l := e.logger
	e.signal = shutdown.New(l.Named("shutdown"))

	cutoff, err := cfg.Scheduler.CutoffTime()
	if err != nil {
		return err
	}
	start, err := cfg.Scheduler.StartTime(e.now())
	if err != nil {
		return err
	}
	e.calculator, err = scheduler.NewCalculator(cfg.Scheduler.SpeedupFactor, cutoff, start,
		scheduler.WithClock(e.now),
		scheduler.WithCalculatorLogger(l.Named("calculator")))
	if err != nil {
		return fmt.Errorf("failed to create schedule calculator: %w", err)
	}

	proc, err := processor.New(cfg.Extensions.Provider, cfg.Extensions.Settings, l.Named("processor"))
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	e.records = channel.New[*kafka.RawMessage](cfg.Channel.Capacity,
		channel.WithWaitSlice(cfg.Channel.WaitSlice),
		channel.WithLogger(l.Named("channel")))
	e.ownership = kafka.NewOwnership()
	e.dispatcher = scheduler.NewDispatcher(cfg.Scheduler.CorePoolSize, l.Named("dispatcher"))
	e.registry = scheduler.NewRegistry(l.Named("registry"))
	e.reaper, err = scheduler.NewReaper(e.registry, cfg.Scheduler.ReapInterval, l.Named("reaper"))
	if err != nil {
		return err
	}

	httpOpts := []httpclient.Option{httpclient.WithLogger(l.Named("http"))}
	if e.httpDoer != nil {
		httpOpts = append(httpOpts, httpclient.WithDoer(e.httpDoer))
	}
	e.httpService = httpclient.New(cfg.HTTP, httpOpts...)

	e.scheduling, err = scheduler.NewService(scheduler.ServiceConfig{
		MaxScheduledTasks:     cfg.Scheduler.MaxScheduledTasks,
		AdmissionPollInterval: cfg.Scheduler.AdmissionPollInterval,
	}, scheduler.ServiceDeps{
		Source:     e.records,
		Ownership:  e.ownership,
		Processor:  proc,
		Calculator: e.calculator,
		Dispatcher: e.dispatcher,
		Registry:   e.registry,
		Triggers:   e.httpService,
		Shutdown:   e.signal,
		Logger:     l.Named("scheduling"),
	})
	if err != nil {
		return err
	}

	e.coordinator, err = kafka.NewCoordinator(kafka.CoordinatorConfig{
		UseTimestampSeek: cfg.Kafka.UseTimestampSeek,
		Now:              e.now,
	}, e.ownership, e.calculator, e.scheduling, l.Named("coordinator"))
	if err != nil {
		return err
	}

	if e.newReader == nil {
		e.newReader = func(sink kafka.Sink, coordinator *kafka.Coordinator, signal *shutdown.Signal, l *zap.Logger) (Reader, error) {
			return kafka.NewTrafficReader(cfg.Kafka, sink, coordinator, signal, l)
		}
	}
	e.reader, err = e.newReader(e.records, e.coordinator, e.signal, l.Named("reader"))
	if err != nil {
		return fmt.Errorf("failed to create traffic reader: %w", err)
	}

	if cfg.Metrics.Enabled {
		e.SetEngine(e.newEngine())
	}

	l.Info("replay components initialized",
		zap.String("provider", cfg.Extensions.Provider),
		zap.Time("queryCutoffTime", cutoff),
		zap.Time("schedulingStartTime", start),
		zap.Int64("speedupFactor", cfg.Scheduler.SpeedupFactor),
		zap.Int("channelCapacity", cfg.Channel.Capacity))
	return nil
}

// Run 启动执行器、清理器、调度循环、读取端与管理端点，直到 ctx 结束或关闭标记被触发。
// 由致命错误触发的关闭返回该错误。
func (e *Application) Run(ctx context.Context) error {
	ctx, cancel := e.signal.Context(ctx)
	defer cancel()

	e.dispatcher.Start()
	e.reaper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.scheduling.Run(gctx)
	})
	g.Go(func() error {
		return e.reader.Run(gctx)
	})

	var server *http.Server
	if engine := e.GetEngine(); engine != nil {
		server = &http.Server{Addr: e.cfg.Metrics.Addr, Handler: engine}
		g.Go(func() error {
			e.logger.Info("management endpoint listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("management endpoint: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		e.signal.Trigger(nil)
		e.records.Interrupt()
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
		return nil
	})

	err := g.Wait()
	e.stop()

	if reason := e.signal.Err(); reason != nil {
		return reason
	}
	return err
}

func (e *Application) stop() {
	e.reaper.Stop()
	e.dispatcher.Stop()
	e.httpService.Close()
	if err := e.reader.Close(); err != nil {
		e.logger.Warn("failed to close traffic reader", zap.Error(err))
	}
	e.logger.Info("replay stopped",
		zap.Int64("completedTasks", e.dispatcher.Completed()),
		zap.Int("registeredTasks", e.registry.Len()))
}

// newEngine 管理端点：Prometheus 指标与健康检查
func (e *Application) newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), logger.SetRequestLogger)
	engine.GET(e.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", e.health)
	return engine
}

func (e *Application) health(c *gin.Context) {
	status, code := "UP", http.StatusOK
	if e.signal.IsShutdown() {
		status, code = "DOWN", http.StatusServiceUnavailable
	}
	logger.GetRequestLogger(c.Request.Context()).Debug("health check", zap.String("status", status))
	c.JSON(code, gin.H{
		"status":          status,
		"ownedPartitions": e.ownership.Snapshot(),
		"pendingTasks":    e.dispatcher.Pending(),
		"activeTasks":     e.dispatcher.Active(),
		"completedTasks":  e.dispatcher.Completed(),
		"registeredTasks": e.registry.Len(),
		"bufferedRecords": e.records.Len(),
	})
}

// SetEngine 设置路由引擎
func (e *Application) SetEngine(engine http.Handler) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.engine = engine
}

// GetEngine 获取路由引擎
func (e *Application) GetEngine() http.Handler {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.engine
}

// GetRouter 获取路由表
func (e *Application) GetRouter() []Router {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.setRouter()
}

// setRouter 设置路由表
func (e *Application) setRouter() []Router {
	switch engine := e.engine.(type) {
	case *gin.Engine:
		e.routers = e.routers[:0]
		for _, router := range engine.Routes() {
			e.routers = append(e.routers, Router{RelativePath: router.Path, Handler: router.Handler, HttpMethod: router.Method})
		}
	}
	return e.routers
}

// SetLogger 设置日志组件
func (e *Application) SetLogger(l *zap.Logger) {
	logger.Logger = l
	e.logger = l
}

// GetLogger 获取日志组件
func (e *Application) GetLogger() *zap.Logger {
	return e.logger
}

func (e *Application) GetChannel() *channel.Channel[*kafka.RawMessage] { return e.records }

func (e *Application) GetOwnership() *kafka.Ownership { return e.ownership }

func (e *Application) GetDispatcher() *scheduler.Dispatcher { return e.dispatcher }

func (e *Application) GetRegistry() *scheduler.Registry { return e.registry }

func (e *Application) GetShutdown() *shutdown.Signal { return e.signal }
