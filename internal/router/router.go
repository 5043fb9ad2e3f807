package router

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evdist-next/internal/authz"
	"github.com/evdist-next/internal/cache"
	"github.com/evdist-next/internal/config"
	adminhandlers "github.com/evdist-next/internal/http/handlers/admin"
	publichandlers "github.com/evdist-next/internal/http/handlers/public"
	"github.com/evdist-next/internal/http/response"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ev"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		MessageKey:    "error.login_too_many",
	}
	matchRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:match", redisPrefix),
		WindowSeconds: cfg.Security.MatchRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.MatchRateLimit.MaxAttempts,
		MessageKey:    "error.match_too_many",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	if cfg.Metrics.Enabled && c.Metrics != nil {
		metricsPath := strings.TrimSpace(cfg.Metrics.Path)
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, gin.WrapH(c.Metrics.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	{
		// 会员接口（token 由外部账户体系签发）
		member := apiV1.Group("/binary/me")
		member.Use(MemberJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.MemberRepo))
		{
			member.GET("/node", publicHandler.GetMyNode)
			member.POST("/match", RateLimitMiddleware(redisClient, matchRule, KeyByMemberID), publicHandler.MatchMyPairs)
			member.GET("/pairs", publicHandler.ListMyPairs)
			member.GET("/wallet", publicHandler.GetMyWallet)
			member.GET("/wallet/transactions", publicHandler.ListMyWalletTransactions)
			member.POST("/wallet/withdraw", publicHandler.Withdraw)
			member.GET("/bookings", publicHandler.ListMyBookings)
			member.GET("/deductions", publicHandler.ListMyDeductions)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				authorized.GET("/me", adminHandler.GetAdminMe)
				authorized.PUT("/password", adminHandler.ChangeAdminPassword)

				// 会员与二叉树
				authorized.POST("/binary/members", adminHandler.RegisterMember)
				authorized.GET("/binary/members", adminHandler.ListMembers)
				authorized.GET("/binary/members/:id", adminHandler.GetMember)
				authorized.PATCH("/binary/members/:id/status", adminHandler.UpdateMemberStatus)
				authorized.GET("/binary/nodes", adminHandler.ListNodes)
				authorized.GET("/binary/nodes/:user_id", adminHandler.GetNode)
				authorized.GET("/binary/nodes/:user_id/children", adminHandler.ListNodeChildren)
				authorized.GET("/binary/nodes/:user_id/carry-forwards", adminHandler.ListCarryForwards)
				authorized.POST("/binary/nodes/:user_id/match", adminHandler.MatchNode)
				authorized.POST("/binary/nodes/:user_id/release", adminHandler.ReleaseBlockedPairs)
				authorized.POST("/binary/match-all", adminHandler.MatchAll)
				authorized.GET("/binary/pairs", adminHandler.ListPairs)

				// 钱包
				authorized.GET("/binary/wallets/:user_id", adminHandler.GetWallet)
				authorized.GET("/binary/wallets/:user_id/transactions", adminHandler.ListWalletTransactions)
				authorized.POST("/binary/wallets/:user_id/rebuild", adminHandler.RebuildWallet)

				// 预订
				authorized.GET("/binary/bookings", adminHandler.ListBookings)
				authorized.POST("/binary/bookings", adminHandler.CreateBooking)
				authorized.POST("/binary/bookings/:id/payments", adminHandler.RecordBookingPayment)

				// 对账修复
				authorized.GET("/binary/reconcile", adminHandler.ListReconcileTasks)
				authorized.POST("/binary/reconcile/:task", adminHandler.RunReconcile)

				// 权限管理
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/roles/:role/policies", adminHandler.GrantAuthzRolePolicy)
				authorized.DELETE("/authz/roles/:role/policies", adminHandler.RevokeAuthzRolePolicy)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
			}
		}
	}

	r.GET("/health", publicHandler.HealthCheck)

	return r
}

// KeyByMemberID 使用会员ID作为限流 key
func KeyByMemberID(c *gin.Context) string {
	memberID := c.GetUint(memberIDContextKey)
	if memberID == 0 {
		return c.ClientIP()
	}
	return "member:" + strconv.FormatUint(uint64(memberID), 10)
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "binary" && len(segments) > 2 {
		return segments[2]
	}
	return segments[1]
}
