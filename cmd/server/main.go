package main // Entry point package

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/davitbz/authgate/internal/auth"
	"github.com/davitbz/authgate/internal/config"
	"github.com/davitbz/authgate/internal/database"
	"github.com/davitbz/authgate/internal/handler"
	"github.com/davitbz/authgate/internal/middleware"
	"github.com/davitbz/authgate/internal/queue"
	"github.com/davitbz/authgate/internal/repository"
	"github.com/davitbz/authgate/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	priv, pub, err := config.LoadRSAKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("load jwt keys: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		// The limiter fails closed without a counter store, so a missing
		// Redis means every request would be rejected.
		log.Fatal("redis unavailable: rate limiting requires a counter store")
	}

	users := repository.NewUserRepo(db)
	tiers := repository.NewTierRepo(db)
	policies := repository.NewRateLimitRepo(db)
	blacklist := repository.NewBlacklistRepo(db)

	codec := auth.NewCodec(priv, pub,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	gate := auth.NewGate(codec, auth.NewResolver(users, blacklist))

	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, tiers, policies)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	authH := handler.NewAuthHandler(gate, users, blacklist, cfg.CookieSecure)
	userH := handler.NewUserHandler(users, tiers, cfg.BcryptCost)
	tierH := handler.NewTierHandler(tiers)
	rateLimitH := handler.NewRateLimitHandler(tiers, policies)

	// Audit trail consumer; reconnects on broker failures.
	go func() {
		if err := queue.StartAuthEventConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, gate, limiter.Middleware())
	router.RegisterAPI(e, gate, limiter.Middleware(), cache, userH, tierH, rateLimitH)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
