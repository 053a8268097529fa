package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/wedcards/core/access"
	"github.com/relabs-tech/wedcards/core/api"
	"github.com/relabs-tech/wedcards/core/csql"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/metrics"
	"github.com/relabs-tech/wedcards/core/notify"
	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/registry"
	"github.com/relabs-tech/wedcards/core/rsvp"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres          string  `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword  string  `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Schema            string  `env:"SCHEMA,default=wedcards" description:"the database schema of all tables"`
	Port              int     `env:"PORT,default=3000" description:"the port the HTTP server listens on"`
	LogLevel          string  `env:"LOG_LEVEL,default=info" description:"the log level: debug, info, warn or error"`
	JwtSecret         string  `env:"JWT_SECRET,optional" description:"the HS256 secret of bearer tokens. Without it authorization is disabled"`
	JwtIssuer         string  `env:"JWT_ISSUER,optional" description:"the accepted issuer of bearer tokens"`
	KafkaBrokers      string  `env:"KAFKA_BROKERS,optional" description:"comma separated Kafka brokers for change events"`
	KafkaTopic        string  `env:"KAFKA_TOPIC,default=wedcards.events" description:"the Kafka topic of change events"`
	RSVPRate          float64 `env:"RSVP_RATE,default=1" description:"form submissions per second and client"`
	RSVPBurst         int     `env:"RSVP_BURST,default=5" description:"burst of form submissions per client"`
	TrustForwardedFor bool    `env:"TRUST_FORWARDED_FOR,default=false" description:"rate limit on X-Forwarded-For, behind a proxy only"`
}

func loadService() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, fmt.Errorf("cannot read configuration: %w", err)
	}
	return service, nil
}

func (s *Service) initLogger() error {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	logger.InitLogger(level)
	return nil
}

func (s *Service) brokers() []string {
	var brokers []string
	for _, b := range strings.Split(s.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// components are the stores of the service with their notifiers
type components struct {
	db          *csql.DB
	contents    *ordering.Manager
	templates   *ordering.Manager
	forms       *rsvp.Store
	maintenance registry.Accessor
	kafka       *notify.Kafka
}

func (s *Service) open() (*components, error) {
	c := &components{db: csql.OpenWithSchema(s.Postgres, s.PostgresPassword, s.Schema)}

	notifiers := notify.Multi{notify.Log{}}
	if brokers := s.brokers(); len(brokers) > 0 {
		logger.Default().Infoln("publishing change events to", s.KafkaTopic)
		c.kafka = notify.NewKafka(&notify.KafkaBuilder{Brokers: brokers, Topic: s.KafkaTopic})
		notifiers = append(notifiers, c.kafka)
	}

	var err error
	c.contents, err = ordering.New(&ordering.Builder{DB: c.db, Notifier: notifiers})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.templates, err = ordering.New(&ordering.Builder{DB: c.db, Resource: "template", Group: "catalog", Notifier: notifiers})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.forms, err = rsvp.New(&rsvp.Builder{DB: c.db, Notifier: notifiers})
	if err != nil {
		c.Close()
		return nil, err
	}
	reg, err := registry.New(c.db)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.maintenance = reg.Accessor("fix")
	return c, nil
}

// Close flushes pending events and closes the database
func (c *components) Close() {
	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			logger.Default().WithError(err).Errorln("cannot close kafka notifier")
		}
	}
	c.db.Close()
}

func (s *Service) router(c *components) (*mux.Router, error) {
	router := mux.NewRouter()
	logger.AddRequestID(router)
	if s.JwtSecret != "" {
		router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			Secret:     []byte(s.JwtSecret),
			Issuer:     s.JwtIssuer,
			WriteError: api.WriteError,
		}))
		access.HandleAuthorizationRoute(router)
	} else {
		logger.Default().Warnln("JWT_SECRET is not set, authorization is disabled")
	}

	_, err := api.New(&api.Builder{
		Router:               router,
		Contents:             c.contents,
		Forms:                c.forms,
		Templates:            c.templates,
		Metrics:              metrics.New(),
		AuthorizationEnabled: s.JwtSecret != "",
		RSVPRate:             rate.Limit(s.RSVPRate),
		RSVPBurst:            s.RSVPBurst,
		TrustForwardedFor:    s.TrustForwardedFor,
		Ready:                c.db.PingContext,
	})
	return router, err
}

// serve runs the HTTP server until ctx is cancelled or SIGINT or SIGTERM arrive
func (s *Service) serve(ctx context.Context) error {
	c, err := s.open()
	if err != nil {
		return err
	}
	defer c.Close()

	router, err := s.router(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Default().Infoln("listen on port", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err = <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Default().Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := newRootCommand(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}
