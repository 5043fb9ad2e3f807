package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/repository"
)

func TestRegisterResolvesSponsorUsername(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	ctx := context.Background()
	root := env.register(t, "root", 0)

	result, err := env.registration.Register(ctx, RegisterInput{Username: "  alice  ", SponsorUsername: "root"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if result.Member.Username != "alice" {
		t.Fatalf("username should be trimmed, got %q", result.Member.Username)
	}
	if result.Node.SponsorUserID == nil || *result.Node.SponsorUserID != root {
		t.Fatalf("unexpected sponsor: %v", result.Node.SponsorUserID)
	}
	if len(result.Ancestors) != 1 || result.Ancestors[0].AncestorUserID != root {
		t.Fatalf("unexpected ancestors: %+v", result.Ancestors)
	}
	if result.DirectCommission == nil || len(result.DirectCommission.Skipped) != 1 {
		t.Fatalf("unpaid registration should skip direct commission: %+v", result.DirectCommission)
	}

	if _, err := env.registration.Register(ctx, RegisterInput{Username: "bob", SponsorUsername: "nobody"}); !errors.Is(err, ErrPlacementSponsorNotFound) {
		t.Fatalf("expected sponsor not found, got: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	ctx := context.Background()
	root := env.register(t, "root", 0)

	if _, err := env.registration.Register(ctx, RegisterInput{Username: " ", SponsorUserID: root}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected invalid username, got: %v", err)
	}
	if _, err := env.registration.Register(ctx, RegisterInput{Username: strings.Repeat("x", 65), SponsorUserID: root}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected invalid username for long name, got: %v", err)
	}
	if _, err := env.registration.Register(ctx, RegisterInput{Username: "root", SponsorUserID: root}); !errors.Is(err, ErrNodeExists) {
		t.Fatalf("expected node exists, got: %v", err)
	}

	disabled := &models.Member{Username: "frozen", Status: constants.MemberStatusDisabled}
	if err := env.memberRepo.Create(disabled); err != nil {
		t.Fatalf("create member failed: %v", err)
	}
	if _, err := env.registration.Register(ctx, RegisterInput{Username: "frozen", SponsorUserID: root}); !errors.Is(err, ErrMemberDisabled) {
		t.Fatalf("expected member disabled, got: %v", err)
	}
}

func TestSetMemberStatus(t *testing.T) {
	env := setupBinaryTestEnv(t, nil)
	root := env.register(t, "root", 0)

	if _, err := env.registration.SetMemberStatus(root, "banned"); !errors.Is(err, ErrMemberStatusInvalid) {
		t.Fatalf("expected invalid status, got: %v", err)
	}
	member, err := env.registration.SetMemberStatus(root, constants.MemberStatusDisabled)
	if err != nil {
		t.Fatalf("disable member failed: %v", err)
	}
	if member.Status != constants.MemberStatusDisabled {
		t.Fatalf("status not updated: %s", member.Status)
	}
	members, total, err := env.registration.ListMembers(repository.MemberListFilter{Status: constants.MemberStatusDisabled})
	if err != nil {
		t.Fatalf("list members failed: %v", err)
	}
	if total != 1 || members[0].ID != root {
		t.Fatalf("unexpected disabled members: total=%d", total)
	}
	if _, err := env.registration.GetMember(404); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected member not found, got: %v", err)
	}
}
