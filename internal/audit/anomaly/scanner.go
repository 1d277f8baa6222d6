package anomaly

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"casedesk.org/internal/audit"
	"casedesk.org/internal/obs"
)

// Report is the result of one tenant scan.
type Report struct {
	TenantID    string         `json:"tenantId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Scanned     int            `json:"scanned"`
	Quick       []QuickFinding `json:"quickApprovals"`
	Bulk        []BulkFinding  `json:"bulkApprovals"`
}

// Flagged reports whether any detector produced a finding.
func (r Report) Flagged() bool { return len(r.Quick) > 0 || len(r.Bulk) > 0 }

// Scanner loads tenant-scoped approval history and runs both detectors.
type Scanner struct {
	store  audit.Store
	quick  QuickConfig
	bulk   BulkConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewScanner returns a scanner over store. Zero configs fall back to the defaults.
func NewScanner(store audit.Store, quick QuickConfig, bulk BulkConfig, logger *zap.Logger) *Scanner {
	if quick == (QuickConfig{}) {
		quick = DefaultQuick
	}
	if bulk == (BulkConfig{}) {
		bulk = DefaultBulk
	}
	if logger == nil {
		logger = obs.Logger()
	}
	return &Scanner{
		store:  store,
		quick:  quick,
		bulk:   bulk,
		logger: logger.With(zap.String("component", "anomaly")),
		now:    time.Now,
	}
}

// Scan runs both detectors over tenantID's recent DRAFT_APPROVE entries.
func (s *Scanner) Scan(ctx context.Context, tenantID string) (Report, error) {
	if tenantID == "" {
		return Report{}, fmt.Errorf("anomaly: tenant is required")
	}
	now := s.now().UTC()
	lookback := s.quick.Lookback
	if s.bulk.Lookback > lookback {
		lookback = s.bulk.Lookback
	}

	entries, err := s.load(ctx, tenantID, now.Add(-lookback), now)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		TenantID:    tenantID,
		GeneratedAt: now,
		Scanned:     len(entries),
		Quick:       QuickApprovals(entries, s.quick, now),
		Bulk:        BulkApprovals(entries, s.bulk, now),
	}
	for _, f := range rep.Quick {
		obs.AnomalyFlags.WithLabelValues("quick_approval").Inc()
		s.logger.Warn("quick approvals flagged",
			zap.String("tenant_id", tenantID), zap.String("actor_id", f.ActorID),
			zap.Int("count", f.Count), zap.Float64("fastest_seconds", f.FastestSeconds))
	}
	for _, f := range rep.Bulk {
		obs.AnomalyFlags.WithLabelValues("bulk_approval").Inc()
		s.logger.Warn("bulk approvals flagged",
			zap.String("tenant_id", tenantID), zap.String("actor_id", f.ActorID),
			zap.Time("bucket_start", f.BucketStart), zap.Int("count", f.Count))
	}
	return rep, nil
}

// load pages backwards from until to since on a (created_at, id) cursor,
// since stores cap a single page.
func (s *Scanner) load(ctx context.Context, tenantID string, since, until time.Time) ([]audit.Entry, error) {
	var out []audit.Entry
	q := audit.Query{
		TenantID: tenantID,
		Action:   audit.ActionDraftApprove,
		Since:    since,
		Until:    until.Add(time.Nanosecond),
		Limit:    audit.MaxListLimit,
	}
	for {
		page, err := s.store.List(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("anomaly: list approvals: %w", err)
		}
		out = append(out, page...)
		if len(page) < audit.MaxListLimit {
			return out, nil
		}
		last := page[len(page)-1]
		q.Until, q.BeforeID = last.CreatedAt, last.ID
	}
}
