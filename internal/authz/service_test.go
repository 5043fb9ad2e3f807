package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func mustEnforce(t *testing.T, svc *Service, adminID uint, obj, act string, want bool) {
	t.Helper()
	allow, err := svc.EnforceAdmin(adminID, obj, act)
	if err != nil {
		t.Fatalf("enforce %s %s failed: %v", act, obj, err)
	}
	if allow != want {
		t.Fatalf("enforce %s %s = %v, want %v", act, obj, allow, want)
	}
}

func TestEnforceAdminWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/binary/nodes/:user_id/match", "POST"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetAdminRoles(1, []string{"ops"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}
	mustEnforce(t, svc, 1, "/api/v1/admin/binary/nodes/42/match", "post", true)
	mustEnforce(t, svc, 1, "/api/v1/admin/binary/nodes/42", "GET", false)
	mustEnforce(t, svc, 2, "/api/v1/admin/binary/nodes/42/match", "POST", false)

	policies, err := svc.GetRolePolicies("role:ops")
	if err != nil {
		t.Fatalf("get role policies failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Action != "POST" {
		t.Fatalf("unexpected policies: %+v", policies)
	}

	if err := svc.RevokeRolePolicy("ops", "/admin/binary/nodes/:user_id/match", "POST"); err != nil {
		t.Fatalf("revoke policy failed: %v", err)
	}
	mustEnforce(t, svc, 1, "/api/v1/admin/binary/nodes/42/match", "POST", false)
}

func TestSetAdminRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/binary/pairs", "GET"); err != nil {
		t.Fatalf("grant ops policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/admin/binary/reconcile/:task", "POST"); err != nil {
		t.Fatalf("grant finance policy failed: %v", err)
	}
	if err := svc.SetAdminRoles(2, []string{"ops"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	if err := svc.SetAdminRoles(2, []string{"finance"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err := svc.GetAdminRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles want [role:finance], got=%v", roles)
	}
	mustEnforce(t, svc, 2, "/admin/binary/pairs", "GET", false)
	mustEnforce(t, svc, 2, "/admin/binary/reconcile/projections", "POST", true)

	if err := svc.SetAdminRoles(0, nil); !errors.Is(err, ErrAdminMissing) {
		t.Fatalf("expected admin missing error, got %v", err)
	}
}

func TestNormalizeRoleAndObject(t *testing.T) {
	if role, err := NormalizeRole(" super ops "); err != nil || role != "role:super_ops" {
		t.Fatalf("unexpected role normalize: %q %v", role, err)
	}
	if _, err := NormalizeRole("role:"); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("expected role required, got %v", err)
	}
	if _, err := NormalizeRole("__anchor__"); !errors.Is(err, ErrRoleReserved) {
		t.Fatalf("expected reserved role, got %v", err)
	}

	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/binary/pairs", want: "/admin/binary/pairs"},
		{in: "/admin/binary/pairs", want: "/admin/binary/pairs"},
		{in: "admin/binary", want: "/admin/binary"},
		{in: "/api/v1", want: "/"},
		{in: "/api/v10/admin", want: "/api/v10/admin"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		if got := NormalizeObject(item.in); got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	if strings.Join(roles, ",") != "role:auditor,role:finance,role:operator" {
		t.Fatalf("unexpected builtin roles: %v", roles)
	}

	if err := svc.SetAdminRoles(3, []string{RoleOperator}); err != nil {
		t.Fatalf("set operator failed: %v", err)
	}
	mustEnforce(t, svc, 3, "/api/v1/admin/binary/wallets/9", "GET", true)
	mustEnforce(t, svc, 3, "/api/v1/admin/binary/members", "POST", true)
	mustEnforce(t, svc, 3, "/api/v1/admin/binary/reconcile/projections", "POST", false)

	if err := svc.SetAdminRoles(4, []string{RoleFinance}); err != nil {
		t.Fatalf("set finance failed: %v", err)
	}
	mustEnforce(t, svc, 4, "/api/v1/admin/binary/reconcile/projections", "POST", true)
	mustEnforce(t, svc, 4, "/api/v1/admin/binary/wallets/9/rebuild", "POST", true)
	mustEnforce(t, svc, 4, "/api/v1/admin/binary/members", "POST", false)
}
