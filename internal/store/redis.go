package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// Redis is the remote Backend, laid out as one key per logical collection:
//
//	{prefix}logs              list of reading JSON, newest at head
//	{prefix}locationStatus    hash location -> status JSON
//	{prefix}reports:{date}    hash slot key -> report JSON
//	{prefix}reports:index     sorted set of dates scored by YYYYMMDD
//	{prefix}settings          hash
//	{prefix}cachedForecast    string
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) key(parts ...string) string {
	return r.prefix + strings.Join(parts, ":")
}

func (r *Redis) AppendReading(ctx context.Context, rd domain.SensorReading) error {
	body, err := json.Marshal(rd)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("logs"), body).Err(); err != nil {
		return fmt.Errorf("redis push reading: %w", err)
	}
	return nil
}

func (r *Redis) Readings(ctx context.Context, limit int) ([]domain.SensorReading, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := r.client.LRange(ctx, r.key("logs"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range readings: %w", err)
	}
	out := make([]domain.SensorReading, 0, len(items))
	for _, item := range items {
		var rd domain.SensorReading
		if err := json.Unmarshal([]byte(item), &rd); err != nil {
			return nil, fmt.Errorf("unmarshal reading: %w", err)
		}
		out = append(out, rd)
	}
	return out, nil
}

func (r *Redis) ClearReadings(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key("logs")).Err(); err != nil {
		return fmt.Errorf("redis clear readings: %w", err)
	}
	return nil
}

func (r *Redis) SaveStatus(ctx context.Context, s domain.LocationStatus) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := r.client.HSet(ctx, r.key("locationStatus"), s.Location, body).Err(); err != nil {
		return fmt.Errorf("redis save status %s: %w", s.Location, err)
	}
	return nil
}

func (r *Redis) Statuses(ctx context.Context) (map[string]domain.LocationStatus, error) {
	all, err := r.client.HGetAll(ctx, r.key("locationStatus")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load statuses: %w", err)
	}
	out := make(map[string]domain.LocationStatus, len(all))
	for loc, body := range all {
		var s domain.LocationStatus
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return nil, fmt.Errorf("unmarshal status %s: %w", loc, err)
		}
		out[loc] = s
	}
	return out, nil
}

func (r *Redis) SaveReport(ctx context.Context, rep domain.InspectionReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	score, err := dateScore(rep.Date)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key("reports", rep.Date), rep.Slot.Key(), body)
		p.ZAdd(ctx, r.key("reports", "index"), redis.Z{Score: score, Member: rep.Date})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save report %s %s: %w", rep.Date, rep.Slot, err)
	}
	return nil
}

func (r *Redis) Reports(ctx context.Context, date string) ([]domain.InspectionReport, error) {
	all, err := r.client.HGetAll(ctx, r.key("reports", date)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load reports %s: %w", date, err)
	}
	out := make([]domain.InspectionReport, 0, len(all))
	for _, body := range all {
		var rep domain.InspectionReport
		if err := json.Unmarshal([]byte(body), &rep); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, rep)
	}
	sortReports(out)
	return out, nil
}

func (r *Redis) ReportSlots(ctx context.Context, from, to string) (map[string][]domain.Slot, error) {
	lo, err := dateScore(from)
	if err != nil {
		return nil, err
	}
	hi, err := dateScore(to)
	if err != nil {
		return nil, err
	}
	dates, err := r.client.ZRangeByScore(ctx, r.key("reports", "index"), &redis.ZRangeBy{
		Min: strconv.FormatFloat(lo, 'f', 0, 64),
		Max: strconv.FormatFloat(hi, 'f', 0, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis report index: %w", err)
	}

	out := make(map[string][]domain.Slot, len(dates))
	for _, date := range dates {
		keys, err := r.client.HKeys(ctx, r.key("reports", date)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis report slots %s: %w", date, err)
		}
		for _, k := range keys {
			slot, err := domain.ParseSlot(k)
			if err != nil {
				return nil, fmt.Errorf("stored slot %q: %w", k, err)
			}
			out[date] = append(out[date], slot)
		}
		sortSlots(out[date])
	}
	return out, nil
}

func (r *Redis) Setting(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key("settings"), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) SetSetting(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.key("settings"), key, value).Err(); err != nil {
		return fmt.Errorf("redis set setting %s: %w", key, err)
	}
	return nil
}

func (r *Redis) CachedForecast(ctx context.Context) (*domain.WeeklyForecast, error) {
	body, err := r.client.Get(ctx, r.key("cachedForecast")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cached forecast: %w", err)
	}
	var f domain.WeeklyForecast
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return nil, fmt.Errorf("unmarshal cached forecast: %w", err)
	}
	return &f, nil
}

func (r *Redis) SaveCachedForecast(ctx context.Context, f domain.WeeklyForecast) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	if err := r.client.Set(ctx, r.key("cachedForecast"), body, 0).Err(); err != nil {
		return fmt.Errorf("redis set cached forecast: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func dateScore(date string) (float64, error) {
	t, err := domain.ParseDate(date)
	if err != nil {
		return 0, err
	}
	v, _ := strconv.Atoi(t.Format("20060102"))
	return float64(v), nil
}
