// Package anomaly scans DRAFT_APPROVE history for rubber-stamping and bulk
// approval patterns. Results are advisory candidates for human review.
package anomaly

import (
	"sort"
	"time"

	"casedesk.org/internal/audit"
)

// QuickConfig tunes the quick-approval detector.
type QuickConfig struct {
	Lookback  time.Duration
	Threshold time.Duration
	// MinCount is exclusive: an actor is flagged with more than MinCount fast reviews.
	MinCount int
}

// DefaultQuick is 24h lookback, reviews under 5s, flagged above 3.
var DefaultQuick = QuickConfig{Lookback: 24 * time.Hour, Threshold: 5 * time.Second, MinCount: 3}

// BulkConfig tunes the bulk-approval detector.
type BulkConfig struct {
	Bucket time.Duration
	// MinCount is inclusive: a bucket is flagged at MinCount approvals or more.
	MinCount int
	// Lookback limits which entries are considered; zero means all supplied entries.
	Lookback time.Duration
}

// DefaultBulk is one-minute buckets flagged at 10 approvals.
var DefaultBulk = BulkConfig{Bucket: time.Minute, MinCount: 10, Lookback: 24 * time.Hour}

// QuickFinding is one actor approving too fast too often.
type QuickFinding struct {
	TenantID       string    `json:"tenantId"`
	ActorID        string    `json:"actorId"`
	Count          int       `json:"count"`
	FastestSeconds float64   `json:"fastestSeconds"`
	EntryIDs       []string  `json:"entryIds"`
	LastSeen       time.Time `json:"lastSeen"`
}

// BulkFinding is one actor bucket with too many approvals.
type BulkFinding struct {
	TenantID    string    `json:"tenantId"`
	ActorID     string    `json:"actorId"`
	BucketStart time.Time `json:"bucketStart"`
	BucketEnd   time.Time `json:"bucketEnd"`
	Count       int       `json:"count"`
}

type actorKey struct{ tenant, actor string }

// approvals yields DRAFT_APPROVE entries with an actor and typed details.
func approvals(entries []audit.Entry, fn func(e audit.Entry, d audit.DraftApproveDetails)) {
	for _, e := range entries {
		if e.Action != audit.ActionDraftApprove || e.Actor == nil || e.Actor.UserID == "" {
			continue
		}
		d, ok := e.Details.(audit.DraftApproveDetails)
		if !ok {
			continue
		}
		fn(e, d)
	}
}

// QuickApprovals counts per actor the approvals inside the lookback window whose
// review time is under the threshold, and returns actors above MinCount.
func QuickApprovals(entries []audit.Entry, cfg QuickConfig, now time.Time) []QuickFinding {
	since := now.Add(-cfg.Lookback)
	limit := cfg.Threshold.Seconds()

	byActor := make(map[actorKey]*QuickFinding)
	approvals(entries, func(e audit.Entry, d audit.DraftApproveDetails) {
		if e.CreatedAt.Before(since) || e.CreatedAt.After(now) {
			return
		}
		if d.ReviewTimeSeconds >= limit {
			return
		}
		k := actorKey{e.TenantID, e.Actor.UserID}
		f, ok := byActor[k]
		if !ok {
			f = &QuickFinding{TenantID: k.tenant, ActorID: k.actor, FastestSeconds: d.ReviewTimeSeconds}
			byActor[k] = f
		}
		f.Count++
		f.EntryIDs = append(f.EntryIDs, e.ID)
		if d.ReviewTimeSeconds < f.FastestSeconds {
			f.FastestSeconds = d.ReviewTimeSeconds
		}
		if e.CreatedAt.After(f.LastSeen) {
			f.LastSeen = e.CreatedAt
		}
	})

	var out []QuickFinding
	for _, f := range byActor {
		if f.Count > cfg.MinCount {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActorID < out[j].ActorID
	})
	return out
}

// BulkApprovals buckets approvals per actor into fixed windows aligned to the
// Unix epoch and returns buckets holding at least MinCount approvals.
func BulkApprovals(entries []audit.Entry, cfg BulkConfig, now time.Time) []BulkFinding {
	if cfg.Bucket <= 0 {
		return nil
	}
	type bucketKey struct {
		actorKey
		start int64
	}
	counts := make(map[bucketKey]int)
	approvals(entries, func(e audit.Entry, _ audit.DraftApproveDetails) {
		if cfg.Lookback > 0 && e.CreatedAt.Before(now.Add(-cfg.Lookback)) {
			return
		}
		start := e.CreatedAt.UTC().Truncate(cfg.Bucket)
		counts[bucketKey{actorKey{e.TenantID, e.Actor.UserID}, start.UnixNano()}]++
	})

	var out []BulkFinding
	for k, n := range counts {
		if n < cfg.MinCount {
			continue
		}
		start := time.Unix(0, k.start).UTC()
		out = append(out, BulkFinding{
			TenantID:    k.tenant,
			ActorID:     k.actor,
			BucketStart: start,
			BucketEnd:   start.Add(cfg.Bucket),
			Count:       n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketStart.Equal(out[j].BucketStart) {
			return out[i].BucketStart.Before(out[j].BucketStart)
		}
		return out[i].ActorID < out[j].ActorID
	})
	return out
}
