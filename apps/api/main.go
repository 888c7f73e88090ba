package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/odontoweb/clinica/apps/api/echo"
	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/appointment"
	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
	emailsvc "github.com/odontoweb/clinica/services/email"
	logsvc "github.com/odontoweb/clinica/services/logger"
	inmemdb "github.com/odontoweb/clinica/storage/database/inmem"
	inmemstore "github.com/odontoweb/clinica/storage/session/inmem"
	redisstore "github.com/odontoweb/clinica/storage/session/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := inmemdb.Open()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	usrRepo := inmemdb.NewUserRepository(db)
	apptRepo := inmemdb.NewAppointmentRepository(db)
	if err = inmemdb.Seed(context.Background(), usrRepo); err != nil {
		logger.Fatal(fmt.Sprintf("seeding database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	apptSvc := appointment.NewService(apptRepo)

	sessionDB, closeSessionDB, err := setUpSessionStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up session store: %v", err), err)
	}
	defer closeSessionDB()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			ApptSvc:    apptSvc,
			SessionDB:  sessionDB,
			Policy:     policy.Default(),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpSessionStore picks the session storage backend: redis when an address
// is configured (shared across instances), in-process otherwise.
func setUpSessionStore(conf *core.Config) (session.Store, func(), error) {
	if conf.Redis.Addr == "" {
		return inmemstore.New(conf.Session.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, nil, err
	}
	return redisstore.New(client, conf.Session.TTL), func() { _ = client.Close() }, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
