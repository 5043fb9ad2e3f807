package authz

import "fmt"

const (
	RoleAuditor  = "auditor"
	RoleOperator = "operator"
	RoleFinance  = "finance"
)

// RoleSeed 预置角色
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 预置角色矩阵，超级管理员不经过 RBAC
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleAuditor,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
				{Object: "/admin/password", Action: "PUT"},
			},
		},
		{
			Role:     RoleOperator,
			Inherits: []string{RoleAuditor},
			Policies: []Policy{
				{Object: "/admin/binary/members", Action: "POST"},
				{Object: "/admin/binary/members/:id/status", Action: "PATCH"},
				{Object: "/admin/binary/nodes/:user_id/match", Action: "POST"},
				{Object: "/admin/binary/nodes/:user_id/release", Action: "POST"},
				{Object: "/admin/binary/match-all", Action: "POST"},
				{Object: "/admin/binary/bookings", Action: "POST"},
				{Object: "/admin/binary/bookings/:id/payments", Action: "POST"},
			},
		},
		{
			Role:     RoleFinance,
			Inherits: []string{RoleAuditor},
			Policies: []Policy{
				{Object: "/admin/binary/wallets/:user_id/rebuild", Action: "POST"},
				{Object: "/admin/binary/nodes/:user_id/release", Action: "POST"},
				{Object: "/admin/binary/reconcile/:task", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置角色、继承关系与策略（幂等）
func (s *Service) BootstrapBuiltinRoles() error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := s.EnsureRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}
