package services

import (
	"testing"
	"time"

	"campaign-engine-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// openTestStore builds an in-memory store with the same shapes and composite
// unique indexes as the Postgres schema. The Postgres column defaults
// (gen_random_uuid) don't migrate to sqlite, so the tables are created
// directly with an equivalent id default.
func openTestStore(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	// A pooled :memory: database opens one empty db per connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE claims (
			id text DEFAULT (lower(hex(randomblob(16)))),
			user_id text NOT NULL,
			event_date text NOT NULL,
			choice_key text,
			payload text,
			claimed_at datetime,
			created_at datetime, updated_at datetime, deleted_at datetime)`,
		`CREATE UNIQUE INDEX idx_claims_user_date ON claims(user_id, event_date)`,
		`CREATE TABLE vouchers (
			id text DEFAULT (lower(hex(randomblob(16)))),
			user_id text NOT NULL,
			event_date text NOT NULL,
			voucher_type text NOT NULL,
			scope text NOT NULL,
			amount real,
			source text,
			status text DEFAULT 'issued',
			metadata text,
			upgrade_applied numeric DEFAULT false,
			upgrade_referral_count integer DEFAULT 0,
			redeemed_at datetime,
			created_at datetime, updated_at datetime, deleted_at datetime)`,
		`CREATE UNIQUE INDEX idx_vouchers_user_date_type_scope
			ON vouchers(user_id, event_date, voucher_type, scope)`,
		`CREATE TABLE raffle_entries (
			id text DEFAULT (lower(hex(randomblob(16)))),
			raffle_code text NOT NULL,
			user_id text NOT NULL,
			source text NOT NULL,
			event_date text NOT NULL,
			count integer DEFAULT 0,
			last_ref text,
			created_at datetime, updated_at datetime, deleted_at datetime)`,
		`CREATE UNIQUE INDEX idx_entries_raffle_user_source_date
			ON raffle_entries(raffle_code, user_id, source, event_date)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// drawVisibleEntries runs the same per-user aggregation the raffle draw uses
func drawVisibleEntries(t *testing.T, db *gorm.DB, raffleCode string) map[string]int64 {
	t.Helper()
	type entryRow struct {
		UserID string
		Total  int64
	}
	var rows []entryRow
	if err := db.Model(&models.RaffleEntry{}).
		Select("user_id, SUM(count) AS total").
		Where("raffle_code = ?", raffleCode).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		t.Fatalf("draw aggregation: %v", err)
	}
	out := map[string]int64{}
	for _, r := range rows {
		out[r.UserID] = r.Total
	}
	return out
}

func TestClaimInsertIdempotent(t *testing.T) {
	db := openTestStore(t)

	insert := func() int64 {
		c := models.Claim{UserID: "u1", EventDate: "2025-12-19", ClaimedAt: time.Now()}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_date"}},
			DoNothing: true,
		}).Create(&c)
		if res.Error != nil {
			t.Fatalf("claim insert: %v", res.Error)
		}
		return res.RowsAffected
	}

	if n := insert(); n != 1 {
		t.Fatalf("first claim insert affected %d rows, want 1", n)
	}
	if n := insert(); n != 0 {
		t.Fatalf("second claim insert affected %d rows, want 0 (duplicate)", n)
	}

	var count int64
	db.Model(&models.Claim{}).Where("user_id = ? AND event_date = ?", "u1", "2025-12-19").Count(&count)
	if count != 1 {
		t.Fatalf("claim rows = %d, want exactly 1", count)
	}
}

func TestIssueVoucherIdempotent(t *testing.T) {
	db := openTestStore(t)

	v1 := models.Voucher{UserID: "u1", EventDate: "2025-12-19", VoucherType: "discount", Scope: "store",
		Amount: 10, Source: models.VoucherSourceBase, Status: models.VoucherStatusIssued}
	created, err := issueVoucher(db, &v1)
	if err != nil || !created {
		t.Fatalf("first issue: created=%v err=%v", created, err)
	}

	v2 := v1
	created, err = issueVoucher(db, &v2)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if created {
		t.Fatal("second issue reported created=true, want conflict no-op")
	}
}

func TestChoiceRollbackThenReissue(t *testing.T) {
	db := openTestStore(t)
	const date = "2025-12-19"

	optA := models.ChoiceOption{Key: "a", Rewards: []models.RewardSpec{
		{Kind: models.RewardKindVoucher, VoucherType: "discount", Scope: "store", Amount: 10},
		{Kind: models.RewardKindRaffleEntry, RaffleCode: "mega-25", Source: "choice_a", Count: 3},
	}}
	optB := models.ChoiceOption{Key: "b", Rewards: []models.RewardSpec{
		{Kind: models.RewardKindVoucher, VoucherType: "shipping", Scope: "store", Amount: 5},
	}}

	var first GrantBatch
	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optA.Rewards, &first); err != nil {
		t.Fatalf("issue option A: %v", err)
	}

	// Switch A → B
	if _, _, err := rollbackChoice(db, "u1", date, &optA); err != nil {
		t.Fatalf("rollback A: %v", err)
	}
	var batchB GrantBatch
	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optB.Rewards, &batchB); err != nil {
		t.Fatalf("issue option B: %v", err)
	}
	if len(batchB.Vouchers) != 1 {
		t.Fatalf("option B issued %d vouchers, want 1", len(batchB.Vouchers))
	}

	// Switch B → A again; A's rewards must come back in full
	if _, _, err := rollbackChoice(db, "u1", date, &optB); err != nil {
		t.Fatalf("rollback B: %v", err)
	}
	var batchA GrantBatch
	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optA.Rewards, &batchA); err != nil {
		t.Fatalf("re-issue option A: %v", err)
	}
	if len(batchA.Vouchers) != 1 {
		t.Fatalf("re-issued A vouchers = %d, want 1 (conditional insert must not hit a dead row)", len(batchA.Vouchers))
	}

	var live []models.Voucher
	if err := db.Where("user_id = ? AND event_date = ?", "u1", date).Find(&live).Error; err != nil {
		t.Fatalf("read vouchers: %v", err)
	}
	if len(live) != 1 || live[0].VoucherType != "discount" {
		t.Fatalf("live vouchers after A→B→A = %+v, want exactly A's discount voucher", live)
	}

	totals := drawVisibleEntries(t, db, "mega-25")
	if totals["u1"] != 3 {
		t.Fatalf("draw aggregation sees %d entries for u1, want 3", totals["u1"])
	}
}

func TestChoiceRollbackKeepsSharedSourceEntries(t *testing.T) {
	db := openTestStore(t)
	const date = "2025-12-19"

	// Base grant and a choice option accumulate into the same
	// (raffle, user, source, date) row
	base := models.RaffleEntry{RaffleCode: "mega-25", UserID: "u1", Source: "creator_jackpot", EventDate: date, Count: 3}
	if err := grantEntries(db, &base); err != nil {
		t.Fatalf("base grant: %v", err)
	}
	optA := models.ChoiceOption{Key: "a", Rewards: []models.RewardSpec{
		{Kind: models.RewardKindRaffleEntry, RaffleCode: "mega-25", Source: "creator_jackpot", Count: 2},
	}}
	var batch GrantBatch
	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optA.Rewards, &batch); err != nil {
		t.Fatalf("issue option A: %v", err)
	}
	if totals := drawVisibleEntries(t, db, "mega-25"); totals["u1"] != 5 {
		t.Fatalf("accumulator = %d after base+choice, want 5", totals["u1"])
	}

	_, removed, err := rollbackChoice(db, "u1", date, &optA)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if removed != 2 {
		t.Fatalf("rollback removed %d entries, want exactly the option's 2", removed)
	}
	if totals := drawVisibleEntries(t, db, "mega-25"); totals["u1"] != 3 {
		t.Fatalf("accumulator = %d after rollback, want base 3 untouched", totals["u1"])
	}
}

func TestChoiceRollbackRemovesExhaustedRow(t *testing.T) {
	db := openTestStore(t)
	const date = "2025-12-19"

	optA := models.ChoiceOption{Key: "a", Rewards: []models.RewardSpec{
		{Kind: models.RewardKindRaffleEntry, RaffleCode: "mega-25", Source: "choice_a", Count: 3},
	}}
	var batch GrantBatch
	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optA.Rewards, &batch); err != nil {
		t.Fatalf("issue option A: %v", err)
	}
	if _, _, err := rollbackChoice(db, "u1", date, &optA); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	// The row must be gone outright so a later grant starts a fresh count
	var count int64
	db.Unscoped().Model(&models.RaffleEntry{}).Where("raffle_code = ? AND user_id = ?", "mega-25", "u1").Count(&count)
	if count != 0 {
		t.Fatalf("exhausted accumulator rows remaining = %d, want 0", count)
	}

	if err := issueRewardSpecs(db, "u1", date, models.VoucherSourceChoice, optA.Rewards, &batch); err != nil {
		t.Fatalf("re-issue option A: %v", err)
	}
	if totals := drawVisibleEntries(t, db, "mega-25"); totals["u1"] != 3 {
		t.Fatalf("re-granted entries = %d, want 3", totals["u1"])
	}
}

func TestChoiceLockedAfterRedeem(t *testing.T) {
	db := openTestStore(t)
	const date = "2025-12-19"

	v := models.Voucher{UserID: "u1", EventDate: date, VoucherType: "discount", Scope: "store",
		Source: models.VoucherSourceChoice, Status: models.VoucherStatusIssued}
	if created, err := issueVoucher(db, &v); err != nil || !created {
		t.Fatalf("issue: created=%v err=%v", created, err)
	}

	locked, err := choiceLocked(db, "u1", date)
	if err != nil {
		t.Fatalf("choiceLocked: %v", err)
	}
	if locked {
		t.Fatal("choice locked while its voucher is still issued")
	}

	if err := db.Model(&models.Voucher{}).
		Where("user_id = ? AND event_date = ? AND voucher_type = ? AND scope = ?", "u1", date, "discount", "store").
		UpdateColumn("status", models.VoucherStatusRedeemed).Error; err != nil {
		t.Fatalf("redeem: %v", err)
	}

	locked, err = choiceLocked(db, "u1", date)
	if err != nil {
		t.Fatalf("choiceLocked: %v", err)
	}
	if !locked {
		t.Fatal("choice not locked after a choice-sourced voucher was redeemed")
	}
}
