package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/provider"
	"github.com/evdist-next/internal/service"

	"github.com/shopspring/decimal"
)

// 生成演示用二叉树：根节点 + N 个会员（按赞助人轮转），部分会员写入预订支付
func main() {
	var (
		members int
		buyers  int
	)
	flag.IntVar(&members, "members", 14, "根节点之下的会员数量")
	flag.IntVar(&buyers, "buyers", 4, "写入预订支付的会员数量")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("Failed to build container: %v", err)
	}
	defer container.Close()

	ctx := context.Background()
	root, err := container.RegistrationService.Register(ctx, service.RegisterInput{Username: "root"})
	if err != nil {
		if !errors.Is(err, service.ErrTreeRootExists) && !errors.Is(err, service.ErrNodeExists) && !errors.Is(err, service.ErrMemberExists) {
			stdLog.Fatalf("Failed to create root: %v", err)
		}
		stdLog.Printf("Root already exists, skip seeding")
		return
	}
	stdLog.Printf("Created root member: %d", root.Member.ID)

	sponsors := []uint{root.Member.ID}
	created := make([]uint, 0, members)
	for i := 1; i <= members; i++ {
		sponsorID := sponsors[(i-1)%len(sponsors)]
		result, err := container.RegistrationService.Register(ctx, service.RegisterInput{
			Username:      fmt.Sprintf("member%03d", i),
			SponsorUserID: sponsorID,
		})
		if err != nil {
			stdLog.Printf("Failed to register member%03d: %v", i, err)
			continue
		}
		created = append(created, result.Member.ID)
		if i%3 == 0 {
			sponsors = append(sponsors, result.Member.ID)
		}
		stdLog.Printf("Registered member%03d (id=%d, side=%s)", i, result.Member.ID, result.Node.Side)
	}

	if buyers > len(created) {
		buyers = len(created)
	}
	amount := decimal.NewFromInt(10000)
	for i := 0; i < buyers; i++ {
		userID := created[i]
		booking, err := container.BookingService.CreateBooking(service.CreateBookingInput{
			UserID:      userID,
			BookingNo:   fmt.Sprintf("SEED-%d", userID),
			TotalAmount: amount,
		})
		if err != nil {
			stdLog.Printf("Failed to create booking for %d: %v", userID, err)
			continue
		}
		if _, err := container.BookingService.RecordPayment(ctx, service.RecordPaymentInput{
			BookingID: booking.ID,
			Amount:    amount,
			Reference: fmt.Sprintf("SEED-PAY-%d", userID),
			Status:    constants.BookingPaymentStatusSuccess,
		}); err != nil {
			stdLog.Printf("Failed to record payment for %d: %v", userID, err)
		}
	}

	summary, err := container.PairMatchingService.MatchAll(ctx, cfg.Binary.BatchMatchConcurrency)
	if err != nil {
		stdLog.Fatalf("Failed to run batch match: %v", err)
	}
	stdLog.Printf("Seed completed: %+v", *summary)
}
