package repository

import (
	"testing"
)

func TestBuildLikeConditionByDialectSQLite(t *testing.T) {
	condition, argCount := buildLikeConditionByDialect("sqlite", []string{"username", " ", "status"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	want := "username LIKE ? OR status LIKE ?"
	if condition != want {
		t.Fatalf("sqlite condition mismatch, want %s got %s", want, condition)
	}
}

func TestBuildLikeConditionByDialectPostgres(t *testing.T) {
	condition, argCount := buildLikeCondition(nil, []string{"username"})
	if argCount != 1 || condition != "username LIKE ?" {
		t.Fatalf("nil db should fallback to sqlite, got %s (%d)", condition, argCount)
	}
	condition, _ = buildLikeConditionByDialect("postgres", []string{"username"})
	if condition != "username ILIKE ?" {
		t.Fatalf("postgres condition mismatch, got %s", condition)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}
