package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"portal/internal/cache"
	"portal/internal/database"
	"portal/internal/handler"
	"portal/internal/logging"
	"portal/internal/middleware"
	"portal/internal/notification"
	"portal/internal/repository"
	"portal/internal/service"
	"portal/internal/websocket"
)

// @title           Membership Portal API
// @version         1.0
// @description     Activity authorization workflow and permission management for a membership organization.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	logging.Init()
	defer logging.Log.Sync()

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		logging.Log.Fatal("database connection failed", zap.Error(err))
	}
	logging.Info("connected to PostgreSQL")

	clock := service.Clock(time.Now)

	// Permission cache: Redis when configured, in-process otherwise.
	cacheTTL := 5 * time.Minute
	if ttlStr := os.Getenv("PERMISSION_CACHE_TTL"); ttlStr != "" {
		if parsed, err := time.ParseDuration(ttlStr); err == nil {
			cacheTTL = parsed
		} else {
			logging.Warn("invalid PERMISSION_CACHE_TTL, using default", zap.String("value", ttlStr))
		}
	}
	var permCache cache.PermissionCache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		permCache = cache.NewRedisCache(redisClient, cacheTTL)
		logging.Info("permission cache backed by Redis", zap.String("addr", redisAddr))
	} else {
		permCache = cache.NewMemoryCache(cacheTTL)
	}

	// WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Repositories
	txManager := repository.NewTransactionManager(db)
	memberRepo := repository.NewMemberRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	memberRoleRepo := repository.NewMemberRoleRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	authorizationRepo := repository.NewAuthorizationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)

	// Notifications: log-backed mailer unless SMTP is wired up.
	baseURL := os.Getenv("PORTAL_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	notifier := notification.NewEmailNotifier(notification.LogMailer{}, baseURL)

	// Services
	permissionService := service.NewPermissionService(memberRepo, memberRoleRepo, branchRepo, permCache, clock)
	approverService := service.NewApproverService(activityRepo, memberRepo, branchRepo, permissionService, clock)
	authorizationService := service.NewAuthorizationService(
		authorizationRepo, approvalRepo, activityRepo, memberRepo, memberRoleRepo, auditRepo,
		txManager, approverService, permissionService, notifier, wsHub, clock,
	)
	memberService := service.NewMemberService(memberRepo, branchRepo, refreshTokenRepo, permissionService, clock)
	branchService := service.NewBranchService(branchRepo, permissionService)
	roleService := service.NewRoleService(roleRepo, permissionService)
	activityService := service.NewActivityService(activityRepo, memberRepo, roleRepo, approverService)
	grantService := service.NewGrantService(memberRoleRepo, memberRepo, roleRepo, permissionService, clock)
	auditService := service.NewAuditService(auditRepo)
	seedService := service.NewSeedService(db, branchRepo)

	middleware.InitPermissionMiddleware(permissionService)

	if os.Getenv("SKIP_SEED") == "" {
		if err := seedService.SeedDefaults(context.Background()); err != nil {
			logging.Log.Fatal("seeding defaults failed", zap.Error(err))
		}
	}

	// Background sweep: expire lapsed authorizations.
	sweepInterval := time.Hour
	if intervalStr := os.Getenv("EXPIRY_SWEEP_INTERVAL"); intervalStr != "" {
		if parsed, err := time.ParseDuration(intervalStr); err == nil {
			sweepInterval = parsed
		}
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			expired, err := authorizationService.ExpireLapsed(context.Background(), clock())
			if err != nil {
				logging.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				logging.Info("expired lapsed authorizations", zap.Int("count", expired))
			}
		}
	}()

	// Handlers
	memberHandler := handler.NewMemberHandler(memberService, permissionService, grantService)
	branchHandler := handler.NewBranchHandler(branchService)
	roleHandler := handler.NewRoleHandler(roleService)
	activityHandler := handler.NewActivityHandler(activityService)
	authorizationHandler := handler.NewAuthorizationHandler(authorizationService)
	auditHandler := handler.NewAuditHandler(auditService)

	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	allowedOrigins := []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		allowedOrigins = []string{origins}
	}
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check and metrics
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// API routing
	memberHandler.RegisterRoutes(router.Group(""))
	branchHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))
	activityHandler.RegisterRoutes(router.Group(""))
	authorizationHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if _, err := strconv.Atoi(port); err != nil {
		logging.Log.Fatal("invalid PORT", zap.String("port", port))
	}

	logging.Info("server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logging.Log.Fatal("server failed", zap.Error(err))
	}
}
