package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/jitbot/internal/domain"
)

const sampleYAML = `
strategy: shotgun
log_level: debug
dry_run: false
metrics_addr: 127.0.0.1:6060
controlplane_addr: 127.0.0.1:8088
feed: { url: ws://127.0.0.1:9000/ws, ping_interval_sec: 5, oracle_max_age_ms: 2000 }
relay: { url: http://127.0.0.1:9001, timeout_ms: 1500, rate_limit_per_sec: 20 }
compute_units: 1000000
compute_units_price: 10000
sniper: { max_attempts: 4, recheck_risk_on_submit: true }
shotgun: { cooldown_ms: 5000, post_only: slide, seen_retention_sec: 45 }
circuit_breaker: { max_consecutive_errors: 7, auto_resume_sec: 10 }
journal: { sqlite_path: data/fills.db, kafka_brokers: [k1:9092] }
markets:
  - { type: perp, index: 0, min_order_size: "0.01", bid: "-0.05", ask: "0.05", price_type: oracle, min_position: "-10", max_position: "10" }
  - { type: spot, index: 1, bid: "99.5", ask: "100.5", min_position: "0", max_position: "3", post_only: try_post_only, sub_account_id: 2 }
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, StrategyShotgun, cfg.Strategy)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Feed.PingInterval)
	assert.Equal(t, 2*time.Second, cfg.Feed.OracleMaxAge)
	assert.Equal(t, 1500*time.Millisecond, cfg.Relay.Timeout)
	assert.Equal(t, uint32(1_000_000), cfg.ComputeUnits)
	assert.Equal(t, uint64(10_000), cfg.ComputeUnitPrice)

	assert.Equal(t, 4, cfg.Sniper.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Sniper.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.Sniper.Cooldown)
	assert.Equal(t, 50*time.Millisecond, cfg.Sniper.ReevaluateInterval)
	assert.True(t, cfg.Sniper.RecheckRisk)

	assert.Equal(t, 5*time.Second, cfg.Shotgun.Cooldown)
	assert.Equal(t, domain.PostOnlySlide, cfg.Shotgun.PostOnly)
	assert.Equal(t, 45*time.Second, cfg.Shotgun.SeenRetention)
	assert.Zero(t, cfg.Shotgun.RetryDelay)
	assert.False(t, cfg.Shotgun.RecheckRisk)

	assert.Equal(t, int64(7), cfg.CircuitBreaker.MaxConsecutiveErrors)
	assert.Equal(t, []string{"k1:9092"}, cfg.Journal.KafkaBrokers)
	assert.Equal(t, "jit-fills", cfg.Journal.KafkaTopic)

	require.Len(t, cfg.Markets, 2)
	perp := cfg.Markets[0]
	assert.Equal(t, domain.PerpMarket(0), perp.Market)
	assert.Equal(t, uint64(10_000_000), perp.MinOrderSize)
	assert.Equal(t, int64(-50_000), perp.Quote.Bid)
	assert.Equal(t, domain.PriceTypeOracle, perp.Quote.PriceType)
	assert.Equal(t, -10*domain.BasePrecision, perp.Quote.MinPosition)
	assert.Nil(t, perp.Quote.PostOnly)

	spot := cfg.Markets[1]
	assert.Equal(t, domain.SpotMarket(1), spot.Market)
	assert.Equal(t, int64(99_500_000), spot.Quote.Bid)
	require.NotNil(t, spot.Quote.PostOnly)
	assert.Equal(t, domain.PostOnlyTryPostOnly, *spot.Quote.PostOnly)
	require.NotNil(t, spot.Quote.SubAccountID)
	assert.Equal(t, uint16(2), *spot.Quote.SubAccountID)
}

func TestLoad_JSONDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{"feed":{"url":"ws://x"},"dry_run":true}`))
	require.NoError(t, err)
	assert.Equal(t, StrategySniper, cfg.Strategy)
	assert.Equal(t, 10, cfg.Sniper.MaxAttempts)
	assert.Equal(t, domain.PostOnlyMustPostOnly, cfg.Shotgun.PostOnly)
	assert.Equal(t, 10*time.Second, cfg.Shotgun.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Shotgun.SeenRetention)
	assert.Equal(t, 5*time.Second, cfg.Feed.OracleMaxAge)
	assert.Equal(t, int64(20), cfg.CircuitBreaker.MaxConsecutiveErrors)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JIT_STRATEGY", "shotgun")
	t.Setenv("JIT_FEED_URL", "ws://env")
	t.Setenv("JIT_DRY_RUN", "true")
	t.Setenv("JIT_KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, StrategyShotgun, cfg.Strategy)
	assert.Equal(t, "ws://env", cfg.Feed.URL)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Journal.KafkaBrokers)

	// 未设置的变量不覆盖文件
	assert.Equal(t, "http://127.0.0.1:9001", cfg.Relay.URL)
}

func TestLoad_OracleAgeCheckCanBeDisabled(t *testing.T) {
	cfg, err := Load(writeFile(t, "c.yaml", "dry_run: true\nfeed: { url: ws://x, oracle_max_age_ms: -1 }\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Feed.OracleMaxAge)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown strategy": "strategy: spray\nfeed: { url: ws://x }\ndry_run: true\n",
		"missing feed":     "dry_run: true\n",
		"missing relay":    "feed: { url: ws://x }\n",
		"bad post only":    "dry_run: true\nfeed: { url: ws://x }\nshotgun: { post_only: maybe }\n",
		"bad decimal":      "dry_run: true\nfeed: { url: ws://x }\nmarkets: [ { type: perp, index: 0, bid: abc } ]\n",
		"min above max":    "dry_run: true\nfeed: { url: ws://x }\nmarkets: [ { type: perp, index: 0, min_position: \"2\", max_position: \"1\" } ]\n",
		"duplicate market": "dry_run: true\nfeed: { url: ws://x }\nmarkets: [ { type: perp, index: 0 }, { type: perp, index: 0 } ]\n",
		"bad market type":  "dry_run: true\nfeed: { url: ws://x }\nmarkets: [ { type: option, index: 0 } ]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", content))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeFile(t, "c.toml", "x = 1"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
