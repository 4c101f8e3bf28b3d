package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartpixl/core/pkg/log/rotate"
)

// WarehousePing checks that the warehouse connection pool can round-trip a
// trivial query and reports the most recent row's timestamp as a
// freshness watermark.
func WarehousePing(pool *pgxpool.Pool, table string) Probe {
	return Probe{
		Name:     "warehouse",
		Critical: true,
		Check: func(ctx context.Context) (string, error) {
			var latest time.Time
			err := pool.QueryRow(ctx, "SELECT max(received_at) FROM "+table).Scan(&latest)
			if err != nil {
				return "", err
			}
			age := time.Since(latest)
			if age > 10*time.Minute {
				return "", fmt.Errorf("latest row is %s old", age.Round(time.Second))
			}
			return fmt.Sprintf("latest row %s ago", age.Round(time.Second)), nil
		},
	}
}

// OutboundHTTP checks that a dependency's HTTP endpoint is reachable,
// used for the MaxMind/ip-api.com/WHOIS outbound paths' liveness.
func OutboundHTTP(name, url string, client *http.Client, critical bool) Probe {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) (string, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return "", fmt.Errorf("status %d", resp.StatusCode)
			}
			return fmt.Sprintf("status %d", resp.StatusCode), nil
		},
	}
}

// EdgeQueueDepth polls the Edge process's localhost-only queue-depth
// endpoint, flagging sustained backpressure before it spills into journal
// failover.
func EdgeQueueDepth(endpoint string, warnAt int) Probe {
	client := &http.Client{Timeout: 2 * time.Second}
	return Probe{
		Name:     "edge_queue_depth",
		Critical: false,
		Check: func(ctx context.Context) (string, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			var body struct {
				Depth   int `json:"depth"`
				Dropped int64 `json:"dropped"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return "", err
			}
			if body.Depth >= warnAt {
				return "", fmt.Errorf("queue depth %d >= warn threshold %d", body.Depth, warnAt)
			}
			return fmt.Sprintf("depth=%d dropped=%d", body.Depth, body.Dropped), nil
		},
	}
}

// RecentErrorLogs tails the Forge/Edge log file and flags when the last N
// lines contain a run of ERROR/CRITICAL entries, a proxy for "something is
// wrong that hasn't yet tripped a dedicated probe."
func RecentErrorLogs(logPath string, tailLines, warnAt int) Probe {
	return Probe{
		Name:     "recent_errors",
		Critical: false,
		Check: func(ctx context.Context) (string, error) {
			lines, err := rotate.TailLines(logPath, tailLines)
			if err != nil {
				return "", err
			}
			count := 0
			for _, l := range lines {
				if strings.Contains(l, "ERROR") || strings.Contains(l, "CRITICAL") {
					count++
				}
			}
			if count >= warnAt {
				return "", fmt.Errorf("%d error/critical lines in last %d", count, tailLines)
			}
			return fmt.Sprintf("%d error/critical lines in last %d", count, tailLines), nil
		},
	}
}

// PipelineView queries a reporting view the warehouse's ETL maintains
// (e.g. a materialized freshness-by-company view) and flags any company
// whose most recent row is older than staleAfter.
func PipelineView(pool *pgxpool.Pool, viewName string, staleAfter time.Duration) Probe {
	return Probe{
		Name:     "pipeline_freshness",
		Critical: false,
		Check: func(ctx context.Context) (string, error) {
			rows, err := pool.Query(ctx, "SELECT company, last_seen FROM "+viewName)
			if err != nil {
				return "", err
			}
			defer rows.Close()

			stale := 0
			total := 0
			for rows.Next() {
				var company string
				var lastSeen time.Time
				if err := rows.Scan(&company, &lastSeen); err != nil {
					return "", err
				}
				total++
				if time.Since(lastSeen) > staleAfter {
					stale++
				}
			}
			if err := rows.Err(); err != nil {
				return "", err
			}
			if stale > 0 {
				return "", fmt.Errorf("%d/%d companies stale beyond %s", stale, total, staleAfter)
			}
			return fmt.Sprintf("%d companies fresh", total), nil
		},
	}
}
