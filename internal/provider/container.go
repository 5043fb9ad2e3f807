package provider

import (
	"github.com/evdist-next/internal/authz"
	"github.com/evdist-next/internal/cache"
	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/monitoring"
	"github.com/evdist-next/internal/queue"
	"github.com/evdist-next/internal/repository"
	"github.com/evdist-next/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	Rules       *config.BinaryRules
	QueueClient *queue.Client
	Metrics     *monitoring.Metrics

	// Repositories
	AdminRepo        repository.AdminRepository
	MemberRepo       repository.MemberRepository
	BinaryTreeRepo   repository.BinaryTreeRepository
	BinaryPairRepo   repository.BinaryPairRepository
	CarryForwardRepo repository.BinaryCarryForwardRepository
	WalletRepo       repository.WalletRepository
	BookingRepo      repository.BookingRepository

	// Services
	AuthzService            *authz.Service
	AuthService             *service.AuthService
	LedgerService           *service.LedgerService
	BookingService          *service.BookingService
	TreeService             *service.TreeService
	ActivationTracker       *service.ActivationTracker
	DirectCommissionService *service.DirectCommissionService
	PairMatchingService     *service.PairMatchingService
	RegistrationService     *service.RegistrationService
	ReconcileService        *service.ReconcileService
}

// NewContainer 初始化容器，佣金规则非法时返回 *config.ConfigurationError
func NewContainer(cfg *config.Config) (*Container, error) {
	rules, err := cfg.Binary.Validate()
	if err != nil {
		return nil, err
	}

	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
	}

	c := &Container{
		Config:      cfg,
		Rules:       rules,
		QueueClient: queueClient,
		Metrics:     metrics,
	}
	c.initRepositories(models.DB)
	if err := c.initServices(models.DB); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.AdminRepo = repository.NewAdminRepository(db)
	c.MemberRepo = repository.NewMemberRepository(db)
	c.BinaryTreeRepo = repository.NewBinaryTreeRepository(db)
	c.BinaryPairRepo = repository.NewBinaryPairRepository(db)
	c.CarryForwardRepo = repository.NewBinaryCarryForwardRepository(db)
	c.WalletRepo = repository.NewWalletRepository(db)
	c.BookingRepo = repository.NewBookingRepository(db)
}

func (c *Container) initServices(db *gorm.DB) error {
	authzService, err := authz.NewService(db)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return err
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		return err
	}
	c.AuthzService = authzService

	retry := c.Config.Binary.Retry
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo, c.MemberRepo)
	c.LedgerService = service.NewLedgerService(c.WalletRepo)
	c.BookingService = service.NewBookingService(c.BookingRepo, c.MemberRepo, c.Rules.ActiveBuyerMinPaid)
	c.TreeService = service.NewTreeService(c.BinaryTreeRepo, retry)
	c.ActivationTracker = service.NewActivationTracker(c.BinaryTreeRepo, c.LedgerService, c.Rules)
	c.DirectCommissionService = service.NewDirectCommissionService(
		c.BinaryTreeRepo, c.LedgerService, c.BookingService, c.Rules, retry, c.QueueClient, c.Metrics,
	)
	c.PairMatchingService = service.NewPairMatchingService(
		c.BinaryTreeRepo, c.BinaryPairRepo, c.CarryForwardRepo, c.LedgerService, c.BookingService, c.Rules, retry, c.Metrics,
	)
	c.RegistrationService = service.NewRegistrationService(
		c.MemberRepo, c.BinaryTreeRepo, c.TreeService, c.ActivationTracker, c.DirectCommissionService,
		c.Rules, retry, c.QueueClient, c.Metrics,
	)
	c.ReconcileService = service.NewReconcileService(
		c.BinaryTreeRepo, c.BinaryPairRepo, c.BookingRepo, c.LedgerService, c.ActivationTracker,
		c.DirectCommissionService, c.PairMatchingService, c.Rules,
	)
	// 支付成功后触发直推佣金
	c.BookingService.SetDirectCommissionDispatcher(c.DirectCommissionService)
	return nil
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
