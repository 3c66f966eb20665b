package store_test

import (
	"context"
	"errors"
	"testing"

	"stagehand/internal/db"
	"stagehand/internal/domain"
	"stagehand/internal/migrate"
	"stagehand/internal/repo"
	"stagehand/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := store.Open(context.Background(), repo.Repo{DB: conn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func sampleAction(name, cmd string) domain.Action {
	return domain.Action{
		Name: name,
		Triggers: []domain.Trigger{
			{Type: domain.TriggerCommand, Command: &domain.CommandConfig{Command: cmd}},
		},
		Steps:       []domain.Step{{Type: domain.StepSendMessage, Value: "hi"}},
		Permissions: &domain.Permissions{Viewer: true},
	}
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created, err := s.Create(ctx, sampleAction("Greet", "hello"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected assigned id")
	}
	got, err := s.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Greet" {
		t.Fatalf("unexpected action %+v", got)
	}
}

func TestCreateRejectsInvalidAction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := sampleAction("NoPerms", "x")
	a.Permissions = &domain.Permissions{}
	_, err := s.Create(ctx, a)
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("invalid action must not be stored, got %d", len(got))
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.Create(ctx, sampleAction(name, name)); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	got := s.List()
	if len(got) != 3 || got[0].Name != "first" || got[1].Name != "second" || got[2].Name != "third" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestUpdateKeepsPositionAndID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.Create(ctx, sampleAction("a", "a"))
	b, _ := s.Create(ctx, sampleAction("b", "b"))
	a.Name = "a-renamed"
	if _, err := s.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := s.List()
	if got[0].ID != a.ID || got[0].Name != "a-renamed" || got[1].ID != b.ID {
		t.Fatalf("unexpected collection after update: %+v", got)
	}
}

func TestUpdateUnknownIDFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := sampleAction("ghost", "g")
	a.ID = "missing"
	if _, err := s.Update(ctx, a); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.Create(ctx, sampleAction("bye", "bye"))
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _ := s.Create(ctx, sampleAction("orig", "orig"))
	got := s.List()
	got[0].Name = "mutated"
	got[0].Triggers[0].Command.Command = "mutated"
	stored, _ := s.Get(a.ID)
	if stored.Name != "orig" || stored.Triggers[0].Command.Command != "orig" {
		t.Fatalf("list exposed internal state: %+v", stored)
	}
}

func TestReloadFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := store.Open(ctx, repo.Repo{DB: conn})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	created, err := s.Create(ctx, sampleAction("durable", "d"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	conn.Close()

	conn2, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer conn2.Close()
	s2, err := store.Open(ctx, repo.Repo{DB: conn2})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	got, err := s2.Get(created.ID)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.Name != "durable" || got.Triggers[0].Command.Command != "d" {
		t.Fatalf("unexpected reloaded action: %+v", got)
	}
}
