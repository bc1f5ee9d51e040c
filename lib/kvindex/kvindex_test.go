// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/tierkv/lib/clock"
	"github.com/bureau-foundation/tierkv/lib/heat"
	"github.com/bureau-foundation/tierkv/lib/tierkv"
)

func openTestIndex(t *testing.T, config Config) (*Index, *tierkv.Facade) {
	t.Helper()
	dir := t.TempDir()

	facade, err := tierkv.OpenStore(filepath.Join(dir, "store.db"), tierkv.Config{
		ReorgStrategy: heat.ReorgManual,
		AllowDeletion: true,
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if facade.State() == tierkv.Open {
			facade.Close()
		}
	})

	idx, err := New(filepath.Join(dir, "index"), facade, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx, facade
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"customer_id", "status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateTable("orders", []string{"customer_id"}); err != ErrTableExists {
		t.Fatalf("second CreateTable error = %v, want ErrTableExists", err)
	}
}

func TestInsertGetRoundtrip(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"customer_id", "status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	row := map[string]any{"customer_id": "c1", "status": "pending"}
	if err := idx.Insert("orders", "o1", row); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := idx.Get("orders", "o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["customer_id"] != "c1" || got["status"] != "pending" {
		t.Fatalf("Get = %+v, want customer_id=c1 status=pending", got)
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"customer_id"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	err := idx.Insert("orders", "o1", map[string]any{"bogus": "x"})
	if err == nil {
		t.Fatal("expected error inserting an unknown column")
	}
}

func TestQueryEqualFindsMatchingRows(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"customer_id", "status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	rows := map[string]string{"o1": "pending", "o2": "pending", "o3": "shipped"}
	for id, status := range rows {
		if err := idx.Insert("orders", id, map[string]any{"status": status}); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	ids, err := idx.QueryEqual("orders", "status", "pending")
	if err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	if len(ids) != 2 || ids[0] != "o1" || ids[1] != "o2" {
		t.Fatalf("QueryEqual(pending) = %v, want [o1 o2]", ids)
	}

	ids, err = idx.QueryEqual("orders", "status", "shipped")
	if err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	if len(ids) != 1 || ids[0] != "o3" {
		t.Fatalf("QueryEqual(shipped) = %v, want [o3]", ids)
	}

	ids, err = idx.QueryEqual("orders", "status", "cancelled")
	if err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("QueryEqual(cancelled) = %v, want empty", ids)
	}
}

func TestQueryEqualRejectsUnindexedColumn(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := idx.QueryEqual("orders", "status", "pending"); err != ErrNotIndexed {
		t.Fatalf("QueryEqual on unindexed column error = %v, want ErrNotIndexed", err)
	}
}

func TestCreateIndexBackfillsExistingRows(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.Insert("orders", "o1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Insert("orders", "o2", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	ids, err := idx.QueryEqual("orders", "status", "pending")
	if err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("QueryEqual after backfill = %v, want 2 rows", ids)
	}
}

func TestUpdateMovesRowBetweenPostings(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := idx.Insert("orders", "o1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := idx.Insert("orders", "o1", map[string]any{"status": "shipped"}); err != nil {
		t.Fatalf("update Insert: %v", err)
	}

	pending, _ := idx.QueryEqual("orders", "status", "pending")
	if len(pending) != 0 {
		t.Fatalf("QueryEqual(pending) after update = %v, want empty", pending)
	}
	shipped, _ := idx.QueryEqual("orders", "status", "shipped")
	if len(shipped) != 1 || shipped[0] != "o1" {
		t.Fatalf("QueryEqual(shipped) after update = %v, want [o1]", shipped)
	}
}

func TestRemoveDeletesRowAndPostings(t *testing.T) {
	idx, _ := openTestIndex(t, Config{})
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := idx.Insert("orders", "o1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := idx.Remove("orders", "o1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := idx.Get("orders", "o1"); err != ErrRowNotFound {
		t.Fatalf("Get after remove error = %v, want ErrRowNotFound", err)
	}
	ids, _ := idx.QueryEqual("orders", "status", "pending")
	if len(ids) != 0 {
		t.Fatalf("QueryEqual after remove = %v, want empty", ids)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	facade, err := tierkv.OpenStore(filepath.Join(dir, "store.db"), tierkv.Config{
		ReorgStrategy: heat.ReorgManual,
		AllowDeletion: true,
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	idx, err := New(filepath.Join(dir, "index"), facade, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := idx.Insert("orders", "o1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := idx.SaveToDisk(); err != nil {
		t.Fatalf("SaveToDisk: %v", err)
	}
	if err := facade.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	facade2, err := tierkv.OpenStore(filepath.Join(dir, "store.db"), tierkv.Config{
		ReorgStrategy: heat.ReorgManual,
		AllowDeletion: true,
	})
	if err != nil {
		t.Fatalf("reopen OpenStore: %v", err)
	}
	defer facade2.Close()

	idx2, err := New(filepath.Join(dir, "index"), facade2, Config{})
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}

	got, err := idx2.Get("orders", "o1")
	if err != nil || got["status"] != "pending" {
		t.Fatalf("Get after reopen = %+v, %v", got, err)
	}

	ids, err := idx2.QueryEqual("orders", "status", "pending")
	if err != nil || len(ids) != 1 || ids[0] != "o1" {
		t.Fatalf("QueryEqual after reopen = %v, %v", ids, err)
	}
}

func TestQueryEqualBumpsHeatAndDecayReducesIt(t *testing.T) {
	fake := clock.Fake(time.Unix(1000, 0))
	idx, _ := openTestIndex(t, Config{
		DecayStrategy: heat.DecayLinear,
		DecayAmount:   50,
		Clock:         fake,
	})
	if err := idx.CreateTable("orders", []string{"status"}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := idx.CreateIndex("orders", "status"); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := idx.Insert("orders", "o1", map[string]any{"status": "pending"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	before := idx.postings[postingKey{Table: "orders", Column: "status", Value: indexValueKey("pending")}].Heat
	if _, err := idx.QueryEqual("orders", "status", "pending"); err != nil {
		t.Fatalf("QueryEqual: %v", err)
	}
	afterRead := idx.postings[postingKey{Table: "orders", Column: "status", Value: indexValueKey("pending")}].Heat
	if afterRead <= before {
		t.Fatalf("heat after read = %d, want > %d", afterRead, before)
	}

	idx.Decay()
	afterDecay := idx.postings[postingKey{Table: "orders", Column: "status", Value: indexValueKey("pending")}].Heat
	if afterDecay != afterRead-50 {
		t.Fatalf("heat after decay = %d, want %d", afterDecay, afterRead-50)
	}
}
