// Package config loads process configuration from CASEDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultFlagPhrases are substrings that mark a draft flag as a legal conclusion.
var DefaultFlagPhrases = []string{
	"will be denied",
	"will be granted",
	"will be dismissed",
	"will be discharged",
	"is guaranteed",
	"is illegal",
	"is unlawful",
	"is liable",
	"is not liable",
	"will win",
	"will lose",
}

// Config is the resolved process configuration.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	AuthSecret string
	AuthIssuer string

	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	TrustedProxies []netip.Prefix

	QuickLookback  time.Duration
	QuickThreshold time.Duration
	QuickMinCount  int
	BulkBucket     time.Duration
	BulkMinCount   int

	FlagPhrases []string

	EvidenceBucket string
	EvidenceRegion string
	EvidencePrefix string
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

// MustLoad is Load for binaries; it panics on invalid configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	return cfg
}

func load(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	cfg := Config{
		Env:            get("CASEDESK_ENV", "production"),
		HTTPAddr:       get("CASEDESK_HTTP_ADDR", ":8080"),
		GRPCAddr:       get("CASEDESK_GRPC_ADDR", ":9090"),
		PGDSN:          get("CASEDESK_PG_DSN", ""),
		AuthSecret:     get("CASEDESK_AUTH_SECRET", ""),
		AuthIssuer:     get("CASEDESK_AUTH_ISSUER", "casedesk"),
		EvidenceBucket: get("CASEDESK_EVIDENCE_BUCKET", ""),
		EvidenceRegion: get("CASEDESK_EVIDENCE_REGION", "us-east-1"),
		EvidencePrefix: get("CASEDESK_EVIDENCE_PREFIX", "evidence"),
	}

	cfg.RateLimitRPS = parseFloat(get("CASEDESK_RATE_LIMIT_RPS", "20"), "CASEDESK_RATE_LIMIT_RPS", &errs)
	cfg.RateLimitBurst = parseInt(get("CASEDESK_RATE_LIMIT_BURST", "40"), "CASEDESK_RATE_LIMIT_BURST", &errs)
	cfg.MaxBodyBytes = int64(parseInt(get("CASEDESK_MAX_BODY_BYTES", "1048576"), "CASEDESK_MAX_BODY_BYTES", &errs))

	cfg.TrustedProxies = parsePrefixes(getenv("CASEDESK_TRUSTED_PROXIES"), "CASEDESK_TRUSTED_PROXIES", &errs)

	cfg.QuickLookback = parseDuration(get("CASEDESK_QUICK_LOOKBACK", "24h"), "CASEDESK_QUICK_LOOKBACK", &errs)
	cfg.QuickThreshold = parseDuration(get("CASEDESK_QUICK_THRESHOLD", "5s"), "CASEDESK_QUICK_THRESHOLD", &errs)
	cfg.QuickMinCount = parseInt(get("CASEDESK_QUICK_MIN_COUNT", "3"), "CASEDESK_QUICK_MIN_COUNT", &errs)
	cfg.BulkBucket = parseDuration(get("CASEDESK_BULK_BUCKET", "1m"), "CASEDESK_BULK_BUCKET", &errs)
	cfg.BulkMinCount = parseInt(get("CASEDESK_BULK_MIN_COUNT", "10"), "CASEDESK_BULK_MIN_COUNT", &errs)

	cfg.FlagPhrases = DefaultFlagPhrases
	if raw := getenv("CASEDESK_FLAG_PHRASES"); strings.TrimSpace(raw) != "" {
		cfg.FlagPhrases = splitList(raw)
	}

	if len(cfg.AuthSecret) < 32 {
		errs = append(errs, errors.New("CASEDESK_AUTH_SECRET must be at least 32 bytes"))
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("CASEDESK_MAX_BODY_BYTES must be positive"))
	}
	if cfg.QuickLookback <= 0 || cfg.QuickThreshold <= 0 || cfg.BulkBucket <= 0 {
		errs = append(errs, errors.New("detector durations must be positive"))
	}
	if cfg.QuickMinCount < 0 || cfg.BulkMinCount <= 0 {
		errs = append(errs, errors.New("detector counts out of range"))
	}

	return cfg, errors.Join(errs...)
}

func parseInt(raw, key string, errs *[]error) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return n
}

func parseFloat(raw, key string, errs *[]error) float64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return f
}

func parseDuration(raw, key string, errs *[]error) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

// parsePrefixes accepts CIDRs and bare addresses; a bare address is a
// single-host prefix.
func parsePrefixes(raw, key string, errs *[]error) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range splitList(raw) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
