// workers/referral_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"campaign-engine-system/models"
	"campaign-engine-system/services"
	"campaign-engine-system/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompletedReferral matches the JSON the referral service returns for each
// referral that transitioned to completed.
type CompletedReferral struct {
	ID          string     `json:"id"`
	ReferrerID  string     `json:"referrer_id"`
	ReferredID  string     `json:"referred_id"`
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GetCompletedReferralsResponse is the top-level sync response
type GetCompletedReferralsResponse struct {
	Referrals []CompletedReferral `json:"referrals"`
}

// ReferralSyncWorker polls the referral service for newly completed
// referrals, mirrors them locally, and feeds each one to the multiplier
// listener. The listener is idempotent per referral, so re-delivery after a
// crash between upsert and grant is safe.
type ReferralSyncWorker struct {
	db           *gorm.DB
	listener     *services.ReferralListener
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8600"
	endpointPath string // e.g., "/api/v1/referrals/completed"
	serviceToken string
	httpClient   *http.Client
}

func NewReferralSyncWorker(db *gorm.DB, listener *services.ReferralListener, referralServiceBaseURL, endpointPath, serviceToken string) *ReferralSyncWorker {
	return &ReferralSyncWorker{
		db:           db,
		listener:     listener,
		interval:     30 * time.Second,
		baseURL:      referralServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *ReferralSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Referral Sync Worker (referral-service → referrals)…")
	go w.run(ctx)
}

func (w *ReferralSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed)
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial referral sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Referral sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Referral Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt in the local mirror
func (w *ReferralSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM referrals WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches completed referrals since the cursor, mirrors them, and
// hands new completions to the multiplier listener.
func (w *ReferralSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid referral service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to referral service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("referral service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetCompletedReferralsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode referral service response: %w", err)
	}

	if len(response.Referrals) == 0 {
		return nil
	}

	log.Printf("[REFERRAL_SYNC] 📥 Processing %d referral(s)…", len(response.Referrals))

	var upsertCount, grantCount, errorCount int
	for _, remote := range response.Referrals {
		local := models.Referral{
			ExternalID:  remote.ID,
			ReferrerID:  remote.ReferrerID,
			ReferredID:  remote.ReferredID,
			CompletedAt: remote.CompletedAt,
			Timestamps:  models.Timestamps{UpdatedAt: remote.UpdatedAt},
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"referrer_id", "referred_id", "completed_at", "updated_at",
			}),
		}).Create(&local).Error; err != nil {
			errorCount++
			log.Printf("[REFERRAL_SYNC] ⚠️ Failed to upsert referral (external_id=%q): %v", remote.ID, err)
			continue
		}
		upsertCount++

		if remote.CompletedAt == nil {
			continue
		}
		// Re-read to get the local row ID (upsert path may not fill it)
		var row models.Referral
		if err := w.db.Where("external_id = ?", remote.ID).First(&row).Error; err != nil {
			errorCount++
			continue
		}
		if row.BonusGranted {
			continue
		}
		if err := w.listener.HandleReferralCompleted(row.ID); err != nil {
			errorCount++
			log.Printf("[REFERRAL_SYNC] ⚠️ Bonus grant failed for referral %s: %v", remote.ID, err)
		} else {
			grantCount++
		}
	}

	log.Printf("[REFERRAL_SYNC] ✅ Synced %d referral(s) (%d upserted, %d bonus grants, %d errors)",
		len(response.Referrals), upsertCount, grantCount, errorCount)

	return nil
}
