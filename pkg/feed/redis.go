package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// UnitKeyPrefix prefixes the Redis key of every unit report
const UnitKeyPrefix = "unit:"

// ReportTTL bounds how long a report is kept without updates
const ReportTTL = time.Hour

// recordScript writes a report unless the stored one is newer.
// KEYS[1] unit key, ARGV[1] report JSON, ARGV[2] reported_us, ARGV[3] TTL ms.
var recordScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, prev = pcall(cjson.decode, cur)
  if ok and type(prev) == 'table' and prev.reported_us and tonumber(prev.reported_us) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// storedReport is the Redis value of a report. reported_us lets the record
// script order reports without parsing timestamps.
type storedReport struct {
	Report
	ReportedUs int64 `json:"reported_us"`
}

// RedisStore keeps reports in Redis so several tracker instances share them
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing client. now defaults to time.Now.
func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

// NewRedisClient parses a redis:// URL and checks the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Record stores r unless a newer report for the same unit is already held.
// Redelivered messages can arrive out of order.
func (s *RedisStore) Record(ctx context.Context, r Report) error {
	reportedUs := r.ReportedAt.UnixMicro()
	data, err := json.Marshal(storedReport{Report: r, ReportedUs: reportedUs})
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	keys := []string{UnitKeyPrefix + r.UnitID}
	err = recordScript.Run(ctx, s.client, keys, data, reportedUs, ReportTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to store report for %s: %w", r.UnitID, err)
	}
	return nil
}

// Unit returns the latest state of a unit
func (s *RedisStore) Unit(ctx context.Context, unitID string) (eligibility.Unit, error) {
	data, err := s.client.Get(ctx, UnitKeyPrefix+unitID).Bytes()
	if errors.Is(err, redis.Nil) {
		return eligibility.Unit{}, tracker.ErrUnitNotFound
	}
	if err != nil {
		return eligibility.Unit{}, fmt.Errorf("failed to load report for %s: %w", unitID, err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return eligibility.Unit{}, fmt.Errorf("failed to decode report for %s: %w", unitID, err)
	}
	return r.Unit(s.now()), nil
}

// Units returns every stored unit ordered by id
func (s *RedisStore) Units(ctx context.Context) ([]eligibility.Unit, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, UnitKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return []eligibility.Unit{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load unit reports: %w", err)
	}

	now := s.now()
	units := make([]eligibility.Unit, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok || str == "" {
			// Expired between SCAN and MGET
			continue
		}
		var r Report
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		units = append(units, r.Unit(now))
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Health pings Redis
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
