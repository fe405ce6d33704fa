package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/api"
	"board-sync/board"
	"board-sync/documents"
	"board-sync/domain"
	"board-sync/storage"
	"board-sync/stream"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	entitiesTable := os.Getenv("ENTITIES_TABLE")
	documentsTable := os.Getenv("DOCUMENTS_TABLE")
	permissionsTable := os.Getenv("PERMISSIONS_TABLE")
	outboxQueue := os.Getenv("OUTBOX_QUEUE")
	if connStr == "" || entitiesTable == "" || documentsTable == "" || permissionsTable == "" || outboxQueue == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, entitiesTable, outboxQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	docsTable, err := storage.NewTableClient(connStr, documentsTable)
	if err != nil {
		log.Fatalf("documents table: %v", err)
	}
	permsTable, err := storage.NewTableClient(connStr, permissionsTable)
	if err != nil {
		log.Fatalf("permissions table: %v", err)
	}

	rc := redis.NewClient(redisOptions())

	boards := domain.Boards()
	cache := storage.NewCache(store, rc, envDuration("COLUMN_CACHE_TTL", 30*time.Second), boards)
	perms := storage.NewPermissions(permsTable, rc, envDuration("PERMISSION_CACHE_TTL", 5*time.Minute))
	docs := documents.New(docsTable)
	deduper := api.NewRedisDeduper(rc, envDuration("DEDUPER_TTL", 24*time.Hour))
	auth := newAuth()

	stagger := envDuration("COLUMN_LOAD_STAGGER", 75*time.Millisecond)
	channel := os.Getenv("EVENTS_CHANNEL")
	if channel == "" {
		channel = "board-events"
	}

	ctx := context.Background()

	pump := stream.NewPump(store, rc, channel, time.Second)
	go pump.Run(ctx)

	engines := make(map[string]*board.Engine, len(boards))
	for name, def := range boards {
		eng := board.NewEngine(def, cache, cache, docs, stagger)
		engines[name] = eng
		events := stream.Subscribe(ctx, rc, channel, name)
		go eng.Run(ctx, events)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	pprof.Register(e)

	logger := log.New()
	api.Register(e, engines, perms, auth, deduper, logger)

	// Column loads start after the reconcilers are running so no event falls
	// between the bulk read and the subscription.
	for _, eng := range engines {
		eng.LoadColumns(ctx)
	}

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions parses REDIS_CONNECTION_STRING, accepting either a redis URL
// or the "host:port,password=..,ssl=true" connection-string form.
func redisOptions() *redis.Options {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return opts
}

func newAuth() *api.Auth {
	if os.Getenv("LOCAL_AUTH_MODE") != "" {
		return api.NewAuth(nil, "", "")
	}
	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	authDomain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience == "" || authDomain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/")
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
