// README: Bench cases: environment, schema, HTTP contract, booking race and search throughput.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridepool/internal/infra"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

// expectedTables are created by the embedded migrations.
var expectedTables = []string{"ride_events", "ai_usage"}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	searchBody := map[string]any{
		"source":      map[string]any{"lat": 12.951, "lng": 77.601},
		"destination": map[string]any{"lat": 12.901, "lng": 77.651},
	}
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusFail, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "use -apply-migration"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				if err := infra.Migrate(ctx, r.db); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				for _, t := range expectedTables {
					var exists bool
					err := r.db.QueryRow(ctx,
						`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass}
			},
		},

		httpCaseMethod("API: health", http.MethodGet, base+"/health", nil, "", []int{200}),
		httpCaseMethod("API: metrics exposed", http.MethodGet, base+"/metrics", nil, "", []int{200}),
		httpCase("API: search without token -> 401", base+"/api/rides/search", searchBody, "", []int{401}),

		r.authCase(httpCase("Search: valid query", base+"/api/rides/search", searchBody, r.cfg.Token, []int{200})),
		r.authCase(httpCase("Search: outside region -> 400", base+"/api/rides/search", map[string]any{
			"source":      map[string]any{"lat": 13.08, "lng": 80.27},
			"destination": map[string]any{"lat": 12.901, "lng": 77.651},
		}, r.cfg.Token, []int{400})),
		r.authCase(httpCase("Search: missing destination -> 400", base+"/api/rides/search", map[string]any{
			"source": map[string]any{"lat": 12.951, "lng": 77.601},
		}, r.cfg.Token, []int{400})),
		r.authCase(httpCaseMethod("Places: suggestions", http.MethodGet, base+"/api/places?q=Koramangala", nil, r.cfg.Token, []int{200})),
		r.authCase(httpCaseMethod("Routes: preview", http.MethodGet, base+"/api/routes?from=12.95,77.60&to=12.90,77.65", nil, r.cfg.Token, []int{200})),

		{
			Name: "Concurrency: bookings never oversell",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.Token == "" || r.cfg.RideID == "" || r.cfg.Seats <= 0 {
					return Result{Status: StatusSkip, Note: "needs -token, -ride and -seats"}
				}
				return concurrentBooking(ctx, r, base+"/api/rides/"+r.cfg.RideID+"/bookings")
			},
		},
		{
			Name: "Perf: search throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.Token == "" {
					return Result{Status: StatusSkip, Note: "needs -token"}
				}
				return perfLoad(ctx, r, base+"/api/rides/search", searchBody)
			},
		},
	}
}

// authCase skips tc when no token was supplied.
func (r *Runner) authCase(tc TestCase) TestCase {
	if r.cfg.Token != "" {
		return tc
	}
	tc.Run = func(context.Context, *Runner) Result {
		return Result{Status: StatusSkip, Note: "needs -token"}
	}
	return tc
}

func httpCase(name, url string, body any, token string, okStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, token, okStatuses)
}

func httpCaseMethod(name, method, url string, body any, token string, okStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			status, err := r.do(ctx, method, url, body, token)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			latency := time.Since(start)
			if contains(okStatuses, status) {
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func (r *Runner) do(ctx context.Context, method, url string, body any, token string) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// concurrentBooking fires Concurrency one-seat bookings at once. At most
// Seats of them may succeed; the rest must be refused with 409.
func concurrentBooking(ctx context.Context, r *Runner, url string) Result {
	var wg sync.WaitGroup
	var succ, conflict, other atomic.Int64

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := r.do(ctx, http.MethodPost, url, map[string]any{"seats": 1}, r.cfg.Token)
			switch {
			case err != nil:
				other.Add(1)
			case status == http.StatusCreated:
				succ.Add(1)
			case status == http.StatusConflict:
				conflict.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d other=%d", succ.Load(), conflict.Load(), other.Load())
	want := int64(min(r.cfg.Seats, r.cfg.Concurrency))
	if succ.Load() == want && other.Load() == 0 {
		return Result{Status: StatusPass, Note: note}
	}
	return Result{Status: StatusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, err := r.do(ctx, http.MethodPost, url, payload, r.cfg.Token)
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}
