package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// testClock 每次取值前进固定步长，保证创建时间严格递增
type testClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newTestClock() *testClock {
	return &testClock{
		current: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		step:    time.Second,
	}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(c.step)
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type binaryTestEnv struct {
	db           *gorm.DB
	clock        *testClock
	rules        *config.BinaryRules
	retry        config.RetryConfig
	treeRepo     *repository.GormBinaryTreeRepository
	pairRepo     *repository.GormBinaryPairRepository
	cfRepo       *repository.GormBinaryCarryForwardRepository
	walletRepo   *repository.GormWalletRepository
	bookingRepo  *repository.GormBookingRepository
	memberRepo   *repository.GormMemberRepository
	ledger       *LedgerService
	booking      *BookingService
	tree         *TreeService
	activation   *ActivationTracker
	direct       *DirectCommissionService
	matcher      *PairMatchingService
	registration *RegistrationService
	reconcile    *ReconcileService
}

func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

// setupFileServiceTestDB 文件库 + 多连接，用于并发场景
func setupFileServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite file failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func setupBinaryTestEnv(t *testing.T, mutate func(cfg *config.BinaryConfig)) *binaryTestEnv {
	t.Helper()
	return newBinaryTestEnv(t, setupServiceTestDB(t, "binary_service"), mutate)
}

func newBinaryTestEnv(t *testing.T, db *gorm.DB, mutate func(cfg *config.BinaryConfig)) *binaryTestEnv {
	t.Helper()
	cfg := config.DefaultBinaryConfig()
	cfg.Retry.BaseDelayMS = 1
	cfg.Retry.MaxDelayMS = 5
	if mutate != nil {
		mutate(&cfg)
	}
	rules, err := cfg.Validate()
	if err != nil {
		t.Fatalf("validate binary config failed: %v", err)
	}

	clock := newTestClock()
	env := &binaryTestEnv{
		db:          db,
		clock:       clock,
		rules:       rules,
		retry:       cfg.Retry,
		treeRepo:    repository.NewBinaryTreeRepository(db),
		pairRepo:    repository.NewBinaryPairRepository(db),
		cfRepo:      repository.NewBinaryCarryForwardRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		bookingRepo: repository.NewBookingRepository(db),
		memberRepo:  repository.NewMemberRepository(db),
	}
	env.ledger = NewLedgerService(env.walletRepo)
	env.ledger.now = clock.Now
	env.booking = NewBookingService(env.bookingRepo, env.memberRepo, rules.ActiveBuyerMinPaid)
	env.booking.now = clock.Now
	env.tree = NewTreeService(env.treeRepo, cfg.Retry)
	env.tree.now = clock.Now
	env.activation = NewActivationTracker(env.treeRepo, env.ledger, rules)
	env.direct = NewDirectCommissionService(env.treeRepo, env.ledger, env.booking, rules, cfg.Retry, nil, nil)
	env.matcher = NewPairMatchingService(env.treeRepo, env.pairRepo, env.cfRepo, env.ledger, env.booking, rules, cfg.Retry, nil)
	env.matcher.now = clock.Now
	env.registration = NewRegistrationService(env.memberRepo, env.treeRepo, env.tree, env.activation, env.direct, rules, cfg.Retry, nil, nil)
	env.reconcile = NewReconcileService(env.treeRepo, env.pairRepo, env.bookingRepo, env.ledger, env.activation, env.direct, env.matcher, rules)
	env.booking.SetDirectCommissionDispatcher(env.direct)
	return env
}

// register 注册会员并返回会员ID
func (e *binaryTestEnv) register(t *testing.T, username string, sponsorUserID uint) uint {
	t.Helper()
	result, err := e.registration.Register(context.Background(), RegisterInput{
		Username:      username,
		SponsorUserID: sponsorUserID,
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", username, err)
	}
	return result.Member.ID
}

// pay 为会员创建预订并记录一笔成功支付
func (e *binaryTestEnv) pay(t *testing.T, userID uint, total, paid int64) *models.Booking {
	t.Helper()
	booking, err := e.booking.CreateBooking(CreateBookingInput{
		UserID:      userID,
		TotalAmount: decimal.NewFromInt(total),
	})
	if err != nil {
		t.Fatalf("create booking failed: %v", err)
	}
	if _, err := e.booking.RecordPayment(context.Background(), RecordPaymentInput{
		BookingID: booking.ID,
		Amount:    decimal.NewFromInt(paid),
		Reference: fmt.Sprintf("pay-%d-%d", userID, booking.ID),
	}); err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	return booking
}

func (e *binaryTestEnv) node(t *testing.T, userID uint) *models.BinaryNode {
	t.Helper()
	node, err := e.treeRepo.GetNodeByUserID(userID)
	if err != nil {
		t.Fatalf("get node failed: %v", err)
	}
	if node == nil {
		t.Fatalf("node %d not found", userID)
	}
	return node
}

func (e *binaryTestEnv) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	balance, err := e.ledger.Balance(userID)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	return balance
}

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse decimal %s failed: %v", raw, err)
	}
	return value
}
