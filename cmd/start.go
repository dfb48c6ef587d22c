package cmd

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/esplink/app"
	"github.com/luma/esplink/internal/env"
	"github.com/luma/esplink/session"
	"github.com/luma/esplink/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// Log every byte exchanged with the co-processor
	trace bool
)

// maxInboxBatch bounds the messages one GET /messages returns.
const maxInboxBatch = 32

func init() {
	flags := StartCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.BoolVar(&trace, "trace", false, "Log every byte exchanged with the co-processor")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Bring the co-processor up and run the control loop",
	Long: `Bring the co-processor up and run the control loop

The co-processor is reached through ESPLINK_SERIAL_DEVICE or, for a
serial-to-TCP bridge or the simulator, ESPLINK_SERIAL_ADDR.

Usage
	esplink start

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := makeLogger(conf.LogLevel)
		if err != nil {
			return err
		}

		if err := conf.Validate(); err != nil {
			return err
		}

		wifi, err := conf.WifiConfig()
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		stream, err := openTransport(ctx, conf, log.Named("transport"))
		if err != nil {
			return err
		}

		defer func() {
			if closeErr := stream.Close(); closeErr != nil {
				log.Error("Transport forced to close", zap.Error(closeErr))
			}
		}()

		controller, err := app.New(app.Options{
			Session: session.Options{
				Config:          wifi,
				Transport:       stream,
				MaxClients:      conf.MaxClients,
				MaxMessages:     conf.MaxQueuedMsgs,
				MessageCapacity: conf.MsgCapacity,
				CommandTimeout:  conf.CommandTimeout,
			},
			LightOn: conf.LightOn,
			Day:     conf.Day,
			Echo:    conf.Echo,
			Log:     log.Named("app"),
		})
		if err != nil {
			return err
		}

		router := setupRouter(conf.DebugHTTP, log)
		routes(router, controller)

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		runCtx, stopRun := context.WithCancel(context.Background())
		defer stopRun()

		runErr := make(chan error, 1)
		go func() {
			runErr <- controller.Run(runCtx)
		}()

		log.Info("Listening",
			zap.String("mode", wifi.Mode().String()),
			zap.Uint16("port", wifi.Port()),
			zap.String("device", stream.Name()),
			zap.String("host", host),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		select {
		case <-ctx.Done():
		case err = <-runErr:
			log.Error("Control loop stopped", zap.Error(err))
			runErr = nil
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		if runErr != nil {
			stopRun()
			if err = <-runErr; err != nil {
				log.Error("Session forced to shutdown", zap.Error(err))
			}
		}

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return err
	},
}

func openTransport(ctx context.Context, conf *env.Config, log *zap.Logger) (*transport.Stream, error) {
	options := transport.Options{
		BaudRate: conf.SerialBaud,
		Trace:    trace,
		Log:      log,
	}

	if conf.SerialDevice != "" {
		return transport.OpenSerial(conf.SerialDevice, options)
	}

	return transport.DialTCP(ctx, conf.SerialAddr, options)
}

func routes(r *gin.Engine, controller *app.Controller) {
	// Ping test
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", controller.Status())
	})

	r.GET("/messages", func(c *gin.Context) {
		doc := []byte(`{"messages":[]}`)

		for i := 0; i < maxInboxBatch; i++ {
			var msg app.Message

			select {
			case msg = <-controller.Messages():
			default:
				c.Data(http.StatusOK, "application/json", doc)
				return
			}

			var err error
			doc, err = sjson.SetBytes(doc, "messages.-1", map[string]interface{}{
				"clientID": int(msg.ClientID),
				"payload":  string(msg.Payload),
			})
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, err)
				return
			}
		}

		c.Data(http.StatusOK, "application/json", doc)
	})

	r.POST("/clients/:id/send", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 8)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid client id")
			return
		}

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		if len(payload) == 0 {
			c.String(http.StatusBadRequest, session.ErrEmptyPayload.Error())
			return
		}

		if err := controller.Send(uint8(id), payload); err != nil {
			c.String(http.StatusServiceUnavailable, err.Error())
			return
		}

		c.Status(http.StatusAccepted)
	})
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log.Named("http"), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
