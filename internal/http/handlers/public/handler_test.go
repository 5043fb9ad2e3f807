package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/provider"
	"github.com/evdist-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

const testMemberHeader = "X-Test-Member"

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		Total int64 `json:"total"`
	} `json:"pagination"`
}

func setupPublicHandler(t *testing.T, overrides map[string]interface{}) (*Handler, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
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
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db

	v := viper.New()
	config.SetDefaults(v)
	v.Set("redis.enabled", false)
	v.Set("queue.enabled", false)
	v.Set("metrics.enabled", false)
	for key, value := range overrides {
		v.Set(key, value)
	}
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal config failed: %v", err)
	}

	container, err := provider.NewContainer(&cfg)
	if err != nil {
		t.Fatalf("build container failed: %v", err)
	}
	t.Cleanup(container.Close)

	h := New(container)
	r := gin.New()
	// 测试中由请求头注入会员身份，代替会员 JWT 中间件
	r.Use(func(c *gin.Context) {
		if raw := c.GetHeader(testMemberHeader); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err == nil {
				c.Set("member_id", uint(id))
			}
		}
		c.Next()
	})
	r.GET("/me/node", h.GetMyNode)
	r.POST("/me/match", h.MatchMyPairs)
	r.GET("/me/pairs", h.ListMyPairs)
	r.GET("/me/wallet", h.GetMyWallet)
	r.GET("/me/wallet/transactions", h.ListMyWalletTransactions)
	r.POST("/me/wallet/withdraw", h.Withdraw)
	r.GET("/me/bookings", h.ListMyBookings)
	return h, r
}

func doMemberJSON(t *testing.T, r *gin.Engine, memberID uint, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	switch raw := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(raw))
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if memberID != 0 {
		req.Header.Set(testMemberHeader, strconv.FormatUint(uint64(memberID), 10))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("http status want 200 got %d", w.Code)
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return resp
}

// seedPair 注册根节点与左右两名会员，根节点在第一名会员加入时激活
func seedPair(t *testing.T, h *Handler) (root, left, right uint) {
	t.Helper()
	ctx := context.Background()
	register := func(username string, sponsor uint) uint {
		result, err := h.RegistrationService.Register(ctx, service.RegisterInput{Username: username, SponsorUserID: sponsor})
		if err != nil {
			t.Fatalf("register %s failed: %v", username, err)
		}
		return result.Member.ID
	}
	root = register("root", 0)
	left = register("left", root)
	right = register("right", root)
	return root, left, right
}

type matchData struct {
	Pairs []struct {
		LeftUserID        uint   `json:"left_user_id"`
		RightUserID       uint   `json:"right_user_id"`
		Status            string `json:"status"`
		CommissionBlocked bool   `json:"commission_blocked"`
		BlockedReason     string `json:"blocked_reason"`
	} `json:"pairs"`
}

func TestMatchMyPairsPaysAndReportsWallet(t *testing.T) {
	h, r := setupPublicHandler(t, map[string]interface{}{"binary.activation_threshold": 1})
	root, left, right := seedPair(t, h)

	resp := doMemberJSON(t, r, root, http.MethodPost, "/me/match", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("match failed: %+v", resp)
	}
	var result matchData
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("decode match failed: %v", err)
	}
	if len(result.Pairs) != 1 || result.Pairs[0].LeftUserID != left || result.Pairs[0].RightUserID != right {
		t.Fatalf("unexpected pairs: %+v", result.Pairs)
	}
	if result.Pairs[0].Status != constants.BinaryPairStatusProcessed || result.Pairs[0].CommissionBlocked {
		t.Fatalf("pair should be paid: %+v", result.Pairs[0])
	}

	resp = doMemberJSON(t, r, root, http.MethodGet, "/me/wallet", nil)
	var summary struct {
		Balance     string `json:"balance"`
		TDSWithheld string `json:"tds_withheld"`
	}
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("decode wallet failed: %v", err)
	}
	if summary.Balance != "1600.00" || summary.TDSWithheld != "400.00" {
		t.Fatalf("unexpected wallet summary: %+v", summary)
	}

	resp = doMemberJSON(t, r, root, http.MethodGet, "/me/pairs?page=1&page_size=10", nil)
	if resp.StatusCode != 0 || resp.Pagination.Total != 1 {
		t.Fatalf("unexpected pair list: %+v", resp)
	}
	resp = doMemberJSON(t, r, root, http.MethodGet, "/me/wallet/transactions?type="+constants.WalletTxnTypePairCommission, nil)
	if resp.StatusCode != 0 || resp.Pagination.Total != 1 {
		t.Fatalf("unexpected transaction list: %+v", resp)
	}

	resp = doMemberJSON(t, r, root, http.MethodGet, "/me/node", nil)
	var view struct {
		Node struct {
			UserID    uint `json:"user_id"`
			Activated bool `json:"activated"`
		} `json:"node"`
		Children []struct {
			UserID uint `json:"user_id"`
		} `json:"children"`
	}
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		t.Fatalf("decode node failed: %v", err)
	}
	if view.Node.UserID != root || !view.Node.Activated || len(view.Children) != 2 {
		t.Fatalf("unexpected node view: %+v", view)
	}
}

func TestMatchMyPairsBlockedWithoutActiveBuyer(t *testing.T) {
	h, r := setupPublicHandler(t, map[string]interface{}{
		"binary.activation_threshold": 1,
		"binary.tds_threshold_pairs":  0,
	})
	root, _, _ := seedPair(t, h)

	resp := doMemberJSON(t, r, root, http.MethodPost, "/me/match", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("match failed: %+v", resp)
	}
	var result matchData
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("decode match failed: %v", err)
	}
	if len(result.Pairs) != 1 {
		t.Fatalf("expected one pair, got %+v", result.Pairs)
	}
	pair := result.Pairs[0]
	if !pair.CommissionBlocked || pair.BlockedReason != constants.BinaryPairBlockedNotActiveBuyer || pair.Status != constants.BinaryPairStatusMatched {
		t.Fatalf("pair should be blocked: %+v", pair)
	}

	resp = doMemberJSON(t, r, root, http.MethodGet, "/me/wallet", nil)
	var summary struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("decode wallet failed: %v", err)
	}
	if summary.Balance != "0.00" {
		t.Fatalf("blocked pair must not credit wallet: %+v", summary)
	}
}

func TestWithdrawFlow(t *testing.T) {
	h, r := setupPublicHandler(t, map[string]interface{}{"binary.activation_threshold": 1})
	root, left, _ := seedPair(t, h)

	resp := doMemberJSON(t, r, left, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "100", "request_no": "W-EMPTY"})
	if resp.StatusCode != 400 || resp.Msg == "" {
		t.Fatalf("empty wallet withdraw should fail with insufficient funds: %+v", resp)
	}

	if resp := doMemberJSON(t, r, root, http.MethodPost, "/me/match", nil); resp.StatusCode != 0 {
		t.Fatalf("match failed: %+v", resp)
	}
	resp = doMemberJSON(t, r, root, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "600", "request_no": "W-1"})
	if resp.StatusCode != 0 {
		t.Fatalf("withdraw failed: %+v", resp)
	}
	var first struct {
		ID     uint   `json:"id"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(resp.Data, &first); err != nil {
		t.Fatalf("decode withdraw failed: %v", err)
	}
	if first.Amount != "-600.00" {
		t.Fatalf("unexpected payout entry: %+v", first)
	}

	resp = doMemberJSON(t, r, root, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "600", "request_no": "W-1"})
	if resp.StatusCode != 0 {
		t.Fatalf("duplicate withdraw should succeed: %+v", resp)
	}
	var again struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &again); err != nil {
		t.Fatalf("decode duplicate withdraw failed: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("duplicate withdraw should return entry %d, got %d", first.ID, again.ID)
	}

	balance, err := h.LedgerService.Balance(root)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.String() != "1000" {
		t.Fatalf("unexpected balance after withdraw: %s", balance)
	}
}

func TestPublicHandlerErrorMapping(t *testing.T) {
	h, r := setupPublicHandler(t, nil)
	root, _, _ := seedPair(t, h)

	cases := []struct {
		name     string
		memberID uint
		method   string
		path     string
		body     interface{}
		want     int
	}{
		{"anonymous", 0, http.MethodGet, "/me/wallet", nil, 401},
		{"node_missing", 404, http.MethodGet, "/me/node", nil, 404},
		{"match_node_missing", 404, http.MethodPost, "/me/match", nil, 404},
		{"match_not_activated", root, http.MethodPost, "/me/match", nil, 400},
		{"withdraw_malformed", root, http.MethodPost, "/me/wallet/withdraw", "{", 400},
		{"withdraw_missing_request_no", root, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "10"}, 400},
		{"withdraw_amount_invalid", root, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "ten", "request_no": "W-2"}, 400},
		{"withdraw_amount_negative", root, http.MethodPost, "/me/wallet/withdraw", gin.H{"amount": "-5", "request_no": "W-3"}, 400},
		{"transactions_bad_time", root, http.MethodGet, "/me/wallet/transactions?created_from=yesterday", nil, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doMemberJSON(t, r, tc.memberID, tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status_code want %d got %d msg=%s", tc.want, resp.StatusCode, resp.Msg)
			}
		})
	}

	resp := doMemberJSON(t, r, root, http.MethodGet, "/me/bookings", nil)
	if resp.StatusCode != 0 || resp.Pagination.Total != 0 {
		t.Fatalf("unexpected booking list: %+v", resp)
	}
}
