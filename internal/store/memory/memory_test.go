package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"finassist/internal/core"
	"finassist/internal/store"
)

var _ store.Backend = (*Store)(nil)

func strp(s string) *string { return &s }

func input(kind, amount, desc, date string) core.TransactionInput {
	return core.TransactionInput{Kind: strp(kind), Amount: strp(amount), Description: strp(desc), Date: strp(date)}
}

func TestRegisterProvisionsLedger(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.Register(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" || u.Username != "alice" {
		t.Fatalf("unexpected user: %+v", u)
	}
	txs, err := s.List(ctx, u.ID)
	if err != nil || txs == nil || len(txs) != 0 {
		t.Fatalf("expected empty non-nil list, got %v err=%v", txs, err)
	}

	if _, err := s.Register(ctx, "alice", "other"); !errors.Is(err, core.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	got, ok, _ := s.FindByUsername(ctx, "alice")
	if !ok || got.Password != "pw" || got.ID != u.ID {
		t.Fatalf("first registration changed: %+v", got)
	}
	byID, ok, _ := s.FindByID(ctx, u.ID)
	if !ok || byID != got {
		t.Fatalf("id index out of sync: %+v", byID)
	}
	if _, ok, _ := s.FindByUsername(ctx, "Alice"); ok {
		t.Fatalf("usernames are case-sensitive")
	}
}

func TestLedgerCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _ := s.Register(ctx, "bob", "pw")

	a, err := s.Create(ctx, u.ID, input("income", "100", "salary", "2025-06-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _ := s.Create(ctx, u.ID, input("expense", "40", "food", "2025-06-02"))
	c, _ := s.Create(ctx, u.ID, input("expense", "5", "coffee", "2025-06-03"))
	if a.ID == b.ID || b.ID == c.ID {
		t.Fatalf("ids must be unique")
	}

	got, err := s.Get(ctx, u.ID, a.ID)
	if err != nil || got.ID != a.ID || !got.Amount.Equal(a.Amount) || got.Description != a.Description {
		t.Fatalf("get after create mismatch: %+v err=%v", got, err)
	}

	upd, err := s.Update(ctx, u.ID, b.ID, core.TransactionPatch{Amount: strp("45")})
	if err != nil || upd.Amount.String() != "45" || upd.Description != "food" {
		t.Fatalf("update: %+v err=%v", upd, err)
	}

	if err := s.Delete(ctx, u.ID, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, u.ID, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, u.ID, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	txs, _ := s.List(ctx, u.ID)
	if len(txs) != 2 || txs[0].ID != b.ID || txs[1].ID != c.ID {
		t.Fatalf("order not preserved: %+v", txs)
	}
	if txs[0].Description != "food" || txs[0].Amount.String() != "45" {
		t.Fatalf("updated record lost position or fields: %+v", txs[0])
	}
}

func TestCreateMissingField(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _ := s.Register(ctx, "carol", "pw")
	in := input("income", "1", "", "2025-01-01")
	if _, err := s.Create(ctx, u.ID, in); !errors.Is(err, core.ErrMissingField) {
		t.Fatalf("expected missing field, got %v", err)
	}
	txs, _ := s.List(ctx, u.ID)
	if len(txs) != 0 {
		t.Fatalf("failed create must not append")
	}
}

func TestCrossUserIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.Register(ctx, "a", "pw")
	b, _ := s.Register(ctx, "b", "pw")
	tx, _ := s.Create(ctx, a.ID, input("income", "10", "x", "2025-01-01"))

	if txs, _ := s.List(ctx, b.ID); len(txs) != 0 {
		t.Fatalf("b sees a's transactions")
	}
	if _, err := s.Get(ctx, b.ID, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get across users: %v", err)
	}
	if _, err := s.Update(ctx, b.ID, tx.ID, core.TransactionPatch{Description: strp("y")}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update across users: %v", err)
	}
	if err := s.Delete(ctx, b.ID, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete across users: %v", err)
	}
	if got, err := s.Get(ctx, a.ID, tx.ID); err != nil || got.Description != "x" {
		t.Fatalf("a's transaction was touched: %+v err=%v", got, err)
	}
}

func TestListUnprovisionedUser(t *testing.T) {
	txs, err := New().List(context.Background(), "nobody")
	if err != nil || len(txs) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", txs, err)
	}
}

func TestListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _ := s.Register(ctx, "d", "pw")
	_, _ = s.Create(ctx, u.ID, input("income", "1", "orig", "2025-01-01"))
	txs, _ := s.List(ctx, u.ID)
	txs[0].Description = "mutated"
	again, _ := s.List(ctx, u.ID)
	if again[0].Description != "orig" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestConcurrentRegisterAndCreate(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.Register(ctx, fmt.Sprintf("user%d", i), "pw")
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			for j := 0; j < 10; j++ {
				if _, err := s.Create(ctx, u.ID, input("expense", "1", "d", "2025-01-01")); err != nil {
					t.Errorf("create: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 20 {
		t.Fatalf("expected 20 users, got %d", s.Len())
	}
	if len(s.owner) != 200 {
		t.Fatalf("expected 200 unique transaction ids, got %d", len(s.owner))
	}
}
