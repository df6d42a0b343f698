package apiserver

import (
	goctx "context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netrixframework/smscsim/context"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/smsc"
	"github.com/netrixframework/smscsim/types"
)

// Simulator is the part of the SMSC exposed over HTTP
type Simulator interface {
	Submit(*types.SubmitSM) (string, error)
	Query(string) (*types.MessageState, error)
	Cancel(string) (*types.MessageState, error)
	InjectMO(*types.SubmitSM) error
	Stats() smsc.Stats
}

// ReceiverRegistry records where MO messages are delivered
type ReceiverRegistry interface {
	SetReceiver(string)
	Receiver() string
}

// APIServer runs a HTTP server through which ESMEs submit messages,
// query their state and collect receipts
type APIServer struct {
	router    *gin.Engine
	ctx       *context.RootContext
	sim       Simulator
	receivers ReceiverRegistry

	server *http.Server
	addr   string

	*types.BaseService
}

// NewAPIServer instantiates APIServer
func NewAPIServer(ctx *context.RootContext, sim Simulator, receivers ReceiverRegistry) *APIServer {
	server := &APIServer{
		ctx:         ctx,
		sim:         sim,
		receivers:   receivers,
		addr:        ctx.Config.APIServerAddr,
		BaseService: types.NewBaseService("APIServer", ctx.Logger),
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(server.logMiddleware)

	router.POST("/submit", server.HandleSubmit)
	router.GET("/messages/:id", server.HandleQuery)
	router.DELETE("/messages/:id", server.HandleCancel)
	router.POST("/mo", server.HandleMO)
	router.POST("/receiver", server.HandleReceiverPost)
	router.GET("/receiver", server.HandleReceiverGet)
	router.GET("/stats", server.HandleStats)
	router.GET("/receipts", server.HandleReceipts)

	server.router = router
	server.server = &http.Server{
		Addr:    server.addr,
		Handler: router,
	}
	return server
}

// Handler returns the router serving the API
func (a *APIServer) Handler() http.Handler {
	return a.router
}

func (a *APIServer) logMiddleware(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery

	// Process request
	c.Next()

	end := time.Now()
	if raw != "" {
		path = path + "?" + raw
	}
	a.Logger.With(log.LogParams{
		"timestamp":   end,
		"latency":     end.Sub(start).String(),
		"client_ip":   c.ClientIP(),
		"method":      c.Request.Method,
		"status_code": c.Writer.Status(),
		"error":       c.Errors.ByType(gin.ErrorTypePrivate).String(),
		"body_size":   c.Writer.Size(),
		"path":        path,
	}).Debug("Handled request")
}

// Start starts the APIServer and implements Service. The returned channel
// receives the error if the listener fails.
func (a *APIServer) Start() <-chan error {
	a.StartRunning()
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		a.Logger.With(log.LogParams{
			"addr": a.addr,
		}).Info("API server starting!")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.With(log.LogParams{
				"addr": a.addr,
				"err":  err,
			}).Error("API server closed!")
			errCh <- err
		}
	}()
	return errCh
}

// Stop stops the APIServer and implements Service
func (a *APIServer) Stop() {
	a.StopRunning()
	ctx, cancel := goctx.WithTimeout(goctx.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.Logger.Error("API server forcefully shutdown")
	}
	a.Logger.Info("API server stopped!")
}
