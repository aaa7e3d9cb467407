// services/issuer.go
package services

import (
	"time"

	"campaign-engine-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stable machine-readable error codes surfaced next to HTTP errors
const (
	CodeFeatureDisabled  = "feature_disabled"
	CodeForbidden        = "forbidden"
	CodeEventUnavailable = "event_unavailable"
	CodeOutsideWindow    = "outside_window"
	CodeRequiresClaim    = "requires_claim"
	CodeInvalidChoice    = "invalid_choice"
	CodeChoiceLocked     = "choice_locked"
	CodeSpinUnavailable  = "spin_unavailable"
	CodeAlreadyRedeemed  = "already_redeemed"
	CodeRaffleNotFound   = "raffle_not_found"
	CodeAlreadyDrawn     = "already_drawn"
	CodeNoEntries        = "no_entries"
	CodeStoreError       = "store_error"
)

// FeatureFlag reports whether the engine accepts user-facing mutations.
// Injected from main so core logic stays testable without process config.
type FeatureFlag func() bool

// GrantBatch collects what one call actually issued, so handlers can return
// only the rewards granted by that call.
type GrantBatch struct {
	Vouchers      []models.Voucher     `json:"vouchers"`
	RaffleEntries []models.RaffleEntry `json:"raffle_entries"`
	Achievements  []models.Achievement `json:"achievements"`
}

// issueVoucher conditionally inserts a voucher against the composite unique
// key. Returns whether a row was actually created; on conflict the existing
// voucher stands untouched.
func issueVoucher(tx *gorm.DB, v *models.Voucher) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "event_date"},
			{Name: "voucher_type"}, {Name: "scope"},
		},
		DoNothing: true,
	}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// grantEntries merges count additively into the (raffle, user, source, date)
// accumulator. Single statement, so concurrent grants never lose updates.
func grantEntries(tx *gorm.DB, e *models.RaffleEntry) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "raffle_code"}, {Name: "user_id"},
			{Name: "source"}, {Name: "event_date"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("raffle_entries.count + ?", e.Count),
			"last_ref":   e.LastRef,
			"updated_at": time.Now(),
		}),
	}).Create(e).Error
}

// issueRewardSpecs walks a reward spec list and issues each grant, appending
// what was actually created to the batch. Voucher conflicts are silent no-ops
// (the idempotency backstop); entry grants always accumulate.
func issueRewardSpecs(tx *gorm.DB, userID, eventDate string, source models.VoucherSource, specs []models.RewardSpec, batch *GrantBatch) error {
	for _, spec := range specs {
		switch spec.Kind {
		case models.RewardKindVoucher:
			meta := map[string]interface{}{"provenance": string(source)}
			for k, v := range spec.Metadata {
				meta[k] = v
			}
			v := models.Voucher{
				UserID:      userID,
				EventDate:   eventDate,
				VoucherType: spec.VoucherType,
				Scope:       spec.Scope,
				Amount:      spec.Amount,
				Source:      source,
				Status:      models.VoucherStatusIssued,
				Metadata:    meta,
			}
			created, err := issueVoucher(tx, &v)
			if err != nil {
				return err
			}
			if created {
				batch.Vouchers = append(batch.Vouchers, v)
			}
		case models.RewardKindRaffleEntry:
			e := models.RaffleEntry{
				RaffleCode: spec.RaffleCode,
				UserID:     userID,
				Source:     spec.Source,
				EventDate:  eventDate,
				Count:      spec.Count,
			}
			if err := grantEntries(tx, &e); err != nil {
				return err
			}
			batch.RaffleEntries = append(batch.RaffleEntries, e)
		}
	}
	return nil
}

// entryCount sums the counts of a grant batch's entries
func (b *GrantBatch) entryCount() int64 {
	var n int64
	for _, e := range b.RaffleEntries {
		n += int64(e.Count)
	}
	return n
}

// bumpMetrics applies counter deltas for a date atomically. The row is
// created on first touch; every delta is a single-statement increment.
func bumpMetrics(tx *gorm.DB, eventDate string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_date"}},
		DoNothing: true,
	}).Create(&models.DailyMetrics{EventDate: eventDate}).Error; err != nil {
		return err
	}
	updates := map[string]interface{}{}
	for col, n := range deltas {
		if n != 0 {
			updates[col] = gorm.Expr(col+" + ?", n)
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&models.DailyMetrics{}).
		Where("event_date = ?", eventDate).
		UpdateColumns(updates).Error
}

// appendAudit writes one append-only audit entry. Every engine call records
// one, including duplicate/unchanged/noop outcomes.
func appendAudit(tx *gorm.DB, userID, eventDate, action, outcome string, detail map[string]interface{}) error {
	return tx.Create(&models.AuditLogEntry{
		UserID:    userID,
		EventDate: eventDate,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	}).Error
}
