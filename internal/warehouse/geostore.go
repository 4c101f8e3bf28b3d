package warehouse

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartpixl/core/internal/enrich/classifiers"
)

// geoQuerier is the subset of *pgxpool.Pool GeoStore needs, narrowed so
// tests can supply a fake.
type geoQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GeoStore is the warehouse-persisted known-IP set behind the ip-api
// classifier: resolved lookups are written back to a geo side table and
// read from it first on later sightings, so only never-seen or stale
// (>= 90 day old) IPs reach the external provider.
type GeoStore struct {
	q     geoQuerier
	table string
}

func NewGeoStore(q geoQuerier, table string) *GeoStore {
	if table == "" {
		table = "ip_geo"
	}
	return &GeoStore{q: q, table: table}
}

// Lookup implements classifiers.KnownIPStore. ok=false with a nil error
// means the IP has never been stored.
func (s *GeoStore) Lookup(ctx context.Context, ip string) (classifiers.GeoResult, time.Time, bool, error) {
	var res classifiers.GeoResult
	var fetchedAt time.Time
	err := s.q.QueryRow(ctx,
		`SELECT country_code, isp, asn, reverse_dns, proxy, mobile, fetched_at FROM `+s.table+` WHERE ip = $1`,
		ip,
	).Scan(&res.CountryCode, &res.ISP, &res.ASN, &res.Reverse, &res.Proxy, &res.Mobile, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return classifiers.GeoResult{}, time.Time{}, false, nil
	}
	if err != nil {
		return classifiers.GeoResult{}, time.Time{}, false, err
	}
	return res, fetchedAt, true, nil
}

// Upsert implements classifiers.KnownIPStore, refreshing fetched_at so
// staleness is measured from the most recent provider fetch.
func (s *GeoStore) Upsert(ctx context.Context, ip string, res classifiers.GeoResult, fetchedAt time.Time) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO `+s.table+` (ip, country_code, isp, asn, reverse_dns, proxy, mobile, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (ip) DO UPDATE SET
		   country_code = EXCLUDED.country_code,
		   isp          = EXCLUDED.isp,
		   asn          = EXCLUDED.asn,
		   reverse_dns  = EXCLUDED.reverse_dns,
		   proxy        = EXCLUDED.proxy,
		   mobile       = EXCLUDED.mobile,
		   fetched_at   = EXCLUDED.fetched_at`,
		ip, res.CountryCode, res.ISP, res.ASN, res.Reverse, res.Proxy, res.Mobile, fetchedAt,
	)
	return err
}
