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
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksplus-api/api"
	"tasksplus-api/storage"
	"tasksplus-api/subscription"
)

const defaultUpdatesChannel = "task-updates"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	commentsTableName := os.Getenv("COMMENTS_TABLE")
	sweepQueueName := os.Getenv("SWEEP_QUEUE")
	if connStr == "" || tasksTableName == "" || commentsTableName == "" || sweepQueueName == "" {
		log.Fatal("missing storage config")
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	updatesChannel := os.Getenv("UPDATES_CHANNEL")
	if updatesChannel == "" {
		updatesChannel = defaultUpdatesChannel
	}
	tasksTTL := parseTTL("TASKS_CACHE_TTL", 5*time.Minute)
	statsTTL := parseTTL("STATS_CACHE_TTL", time.Minute)

	store, err := storage.New(connStr, tasksTableName, commentsTableName, sweepQueueName, storage.NewUpdates(rc, updatesChannel))
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	cached := storage.NewCache(store, rc, tasksTTL, statsTTL)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH_AUDIENCE")
		domain := os.Getenv("AUTH_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	baseURL := strings.TrimSuffix(os.Getenv("PUBLIC_BASE_URL"), "/")

	logger := log.New()
	broker := api.NewBroker()
	go subscription.SubscribeUpdates(context.Background(), logger, rc, store, updatesChannel, baseURL, tasksTTL, broker.Broadcast)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, cached, auth, broker, baseURL, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("API_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func parseTTL(env string, fallback time.Duration) time.Duration {
	v := os.Getenv(env)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", env, err)
	}
	return d
}
