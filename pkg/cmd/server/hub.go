package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/posturelab/posturehub/config"
	"github.com/posturelab/posturehub/pkg/api"
	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/bus/natsio"
	"github.com/posturelab/posturehub/pkg/deviceconn"
	"github.com/posturelab/posturehub/pkg/deviceconn/channel"
	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/notify"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
	"github.com/posturelab/posturehub/pkg/storage/memory"
	"github.com/posturelab/posturehub/pkg/storage/postgres"
)

type hubServer struct {
	cfg    *config.Config
	quitCh chan bool
	doneCh chan bool

	nc    *nats.Conn
	db    *sqlx.DB
	errCh chan error
}

func init() {
	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logrus.SetFormatter(formatter)

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func newHubServer(c *config.Config) (*hubServer, error) {
	s := &hubServer{
		cfg:    c,
		quitCh: make(chan bool),
		doneCh: make(chan bool),
		errCh:  make(chan error, 1),
	}

	// The NATS fabric is optional. Without it the notification bus stays
	// inside the process, which is fine for a single hub instance.
	if c.NATSServerURL != "" {
		nc, err := nats.Connect(c.NATSServerURL,
			nats.DrainTimeout(10*time.Second),
			nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
				log.Error("nats error: ", err)
				s.errCh <- err
			}),
			nats.DisconnectHandler(func(_ *nats.Conn) {
				log.Warn("nats connection lost")
				syscall.Kill(syscall.Getpid(), syscall.SIGINT)
			}))
		if err != nil {
			return nil, err
		}
		s.nc = nc
	}

	if c.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
	}

	return s, nil
}

func (s *hubServer) store() storage.Interface {
	if s.db != nil {
		log.Info("Using PostgreSQL storage")
		return postgres.NewStore(s.db)
	}

	log.Info("Using in-memory storage")
	return memory.NewStore()
}

func (s *hubServer) bus() bus.Interface {
	if s.nc != nil {
		log.Info("Using NATS notification bus")
		return natsio.New(s.nc, "posturehub.devices")
	}

	log.Info("Using in-process notification bus")
	return bus.NewInProcess()
}

func (s *hubServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	store := s.store()
	b := s.bus()

	// One tracker instance for the whole process. The websocket and the REST
	// layer must serialize session mutations through the same per-device
	// locks.
	tracker := sessiontrack.New(store)
	reg := registry.New(store)
	ing := ingest.New(store, tracker)
	pub := notify.NewPublisher(b, tracker)

	ctrl := channel.NewController(s.cfg, store, b, reg, tracker, ing, pub)

	deviceConnHandler := deviceconn.NewHandler(ctrl)
	deviceConnHandler.RegisterRoutes(e)

	apiHandler := api.NewHandler(store, reg, tracker, ing, pub)
	apiHandler.RegisterRoutes(e)

	go func() {
		log.WithFields(log.Fields{
			"host": s.cfg.BindHost,
			"port": s.cfg.BindPort,
		}).Info("Starting server")

		if err := e.Start(fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.BindPort)); err != nil {
			e.Logger.Info("Shutting down the server")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	// Create a 10 second timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the echo web server
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}

	s.doneCh <- true
}

func (s *hubServer) Shutdown() {
	if s.nc != nil {
		s.nc.Drain()
	}

	// Send the quit signal to the Serve() routine
	s.quitCh <- true

	// Wait up to 10 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(10 * time.Second):
		log.Error("Shutdown server failed")
	}

	if s.db != nil {
		s.db.Close()
	}
}

// RunServeHub starts the device hub: the websocket endpoint for the sensors
// and the management REST API.
func RunServeHub(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := newHubServer(c)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		<-quitCh

		// Shutdown the server
		s.Shutdown()
	}
}

// Logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			var err error
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, err := strconv.ParseInt(reqSizeStr, 10, 0)
			if err != nil {
				reqSize = -1
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}

			log.WithFields(log.Fields{
				"timestamp":     stop.Format(time.RFC3339),
				"id":            id,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"method":        req.Method,
				"uri":           req.RequestURI,
				"protocol":      req.Proto,
				"user_agent":    req.UserAgent(),
				"status":        res.Status,
				"status_text":   http.StatusText(res.Status),
				"referer":       req.Referer(),
				"error":         errMsg,
				"bytes_in":      reqSize,
				"bytes_out":     res.Size,
				"latency":       stop.Sub(start).Nanoseconds(),
				"latency_human": stop.Sub(start).String(),
			}).Infof("%s %s %s %d %s", req.Method, req.RequestURI, req.Proto,
				res.Status, strconv.FormatInt(res.Size, 10))

			return err
		}
	}
}
