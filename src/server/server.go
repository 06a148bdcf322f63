package server

import (
	"context"
	"net/http"

	"github.com/freshtrace/chaincore/src/cache"
	"github.com/freshtrace/chaincore/src/queue"
	"github.com/freshtrace/chaincore/src/sessionkey"
	"github.com/freshtrace/chaincore/src/tracker"
	"github.com/freshtrace/chaincore/src/utils/config"
	"github.com/freshtrace/chaincore/src/utils/monitoring"
	"github.com/freshtrace/chaincore/src/utils/task"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rest API server, the seam the browser UI talks to. Handlers only
// adapt HTTP to the core modules.
type Server struct {
	*task.Task

	httpServer *http.Server
	Router     *gin.Engine

	store    *cache.Store
	tracker  *tracker.Tracker
	queue    *queue.Manager
	sessions *sessionkey.Module
	monitor  *monitoring.Monitor
}

func NewServer(config *config.Config) (self *Server) {
	self = new(Server)

	self.Task = task.NewTask(config, "server").
		WithSubtaskFunc(self.run).
		WithOnStop(self.stop)

	self.Router = gin.New()

	self.httpServer = &http.Server{
		Addr:    self.Config.Server.ListenAddress,
		Handler: self.Router,
	}

	return
}

func (self *Server) WithStore(store *cache.Store) *Server {
	self.store = store
	return self
}

func (self *Server) WithTracker(tracker *tracker.Tracker) *Server {
	self.tracker = tracker
	return self
}

func (self *Server) WithQueue(queue *queue.Manager) *Server {
	self.queue = queue
	return self
}

func (self *Server) WithSessions(sessions *sessionkey.Module) *Server {
	self.sessions = sessions
	return self
}

func (self *Server) WithMonitor(monitor *monitoring.Monitor) *Server {
	self.monitor = monitor
	return self
}

func (self *Server) run() (err error) {
	if !self.Config.IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	err = registry.Register(self.monitor.GetPrometheusCollector())
	if err != nil {
		return
	}

	v1 := self.Router.Group("v1")
	{
		v1.GET("health", self.monitor.OnGet)
		v1.GET("metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

		v1.GET("transactions", self.onListTransactions)
		v1.GET("transactions/search", self.onSearchTransactions)
		v1.GET("transactions/export", self.onExportTransactions)

		v1.GET("tracker", self.onListTracked)
		v1.GET("tracker/:hash", self.onGetTracked)

		v1.GET("queue", self.onListQueue)
		v1.POST("queue", self.onEnqueue)
		v1.POST("queue/process", self.onProcessQueue)
		v1.DELETE("queue", self.onClearQueue)
		v1.DELETE("queue/:id", self.onRemoveQueued)

		v1.GET("sessions", self.onListSessions)
		v1.POST("sessions", self.onCreateSession)
		v1.POST("sessions/:address/enable", self.onEnableSession)
		v1.DELETE("sessions/:address", self.onRevokeSession)
	}

	err = self.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		self.Log.WithError(err).Error("Failed to start REST server")
		return
	}
	return nil
}

func (self *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.httpServer.Shutdown(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to gracefully shutdown REST server")
		return
	}
}
