// README: Probe cases: environment, migration, the bid/match/accept flow, the accept race and throughput.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"bidride/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"

	statementBreak = "-- +statement"
)

// Lahore: a ~5.8 km car trip with a base fare of 227.
var (
	pickup  = map[string]any{"name": "Liberty Market", "coordinates": []float64{74.35, 31.52}}
	dropoff = map[string]any{"name": "Model Town", "coordinates": []float64{74.40, 31.55}}
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	signer *infra.JWTVerifier

	passenger string
	drivers   []string
	rideID    string
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
	run := time.Now().UnixNano()
	r := &Runner{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		passenger: fmt.Sprintf("bench-passenger-%d", run),
	}
	for i := 0; i < cfg.Drivers; i++ {
		r.drivers = append(r.drivers, fmt.Sprintf("bench-driver-%d-%d", run, i))
	}
	if cfg.JWTSecret != "" {
		r.signer = infra.NewJWTVerifier(cfg.JWTSecret)
	}
	return r
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
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return fail("db not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return check(r.db.Ping(ctx))
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return skip("redis not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return check(r.redis.Ping(ctx).Err())
		}},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK, nil)
		}},
		{Name: "Auth: missing token -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/quote", "", map[string]any{}, http.StatusUnauthorized, nil)
		}},
		{Name: "Seed: approved drivers with deposit", Run: seedDrivers},
		{Name: "Pricing: quote", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/quote", r.passenger, map[string]any{
				"pickup":       map[string]float64{"lat": 31.52, "lng": 74.35},
				"dropoff":      map[string]float64{"lat": 31.55, "lng": 74.40},
				"vehicle_type": "car",
			}, http.StatusOK, nil)
		}},
		{Name: "Ride: bid below base fare -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides", r.passenger, rideBody(200), http.StatusBadRequest, nil)
		}},
		{Name: "Ride: create", Run: func(ctx context.Context, r *Runner) Result {
			var created struct {
				ID string `json:"id"`
			}
			res := r.expect(ctx, http.MethodPost, "/api/rides", r.passenger, rideBody(250), http.StatusCreated, &created)
			r.rideID = created.ID
			return res
		}},
		{Name: "Ride: second active ride -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides", r.passenger, rideBody(250), http.StatusConflict, nil)
		}},
		{Name: "Matching: ride listed to nearby driver", Run: nearbyListsRide},
		{Name: "Concurrency: N drivers accept one ride", Run: acceptRace},
		{Name: "Consistency: one confirm event", Run: oneConfirmEvent},
		{Name: "Ride: passenger cancel", Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == "" {
				return skip("no ride created")
			}
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/cancel", r.passenger,
				map[string]string{"reason": "bench cleanup"}, http.StatusOK, nil)
		}},
		{Name: "Perf: driver location updates", Run: locationThroughput},
	}
}

func rideBody(price int64) map[string]any {
	return map[string]any{
		"pickup_location":  pickup,
		"dropoff_location": dropoff,
		"vehicle_option":   map[string]any{"id": "car", "name": "Car", "type": "car"},
		"price":            price,
		"payment_method":   "cash",
	}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return skip("apply-migration=false")
	}
	if r.db == nil {
		return fail("db not configured")
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return fail(err.Error())
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return fail(err.Error())
		}
	}
	return pass("")
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return fail(err.Error())
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return fail(err.Error())
		}
		if !exists {
			return fail("missing table: " + t)
		}
	}
	return pass(fmt.Sprintf("%d tables", len(tables)))
}

func seedDrivers(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	for _, id := range r.drivers {
		_, err := r.db.Exec(ctx, `
INSERT INTO driver_profiles (user_id, status, vehicle_type, vehicle_number)
VALUES ($1, 'approved', 'car', 'BENCH-1')
ON CONFLICT (user_id) DO UPDATE SET status = 'approved'`, id)
		if err != nil {
			return fail(err.Error())
		}
		if _, err := r.db.Exec(ctx, `SELECT add_to_wallet($1, $2, $3)`, id, int64(3000), "bench:seed"); err != nil {
			return fail(err.Error())
		}
	}
	return pass(fmt.Sprintf("drivers=%d", len(r.drivers)))
}

func nearbyListsRide(ctx context.Context, r *Runner) Result {
	if r.rideID == "" || len(r.drivers) == 0 {
		return skip("no ride or drivers")
	}
	var out struct {
		Rides []struct {
			ID string `json:"id"`
		} `json:"rides"`
	}
	res := r.expect(ctx, http.MethodGet, "/api/drivers/rides/nearby?lat=31.521&lng=74.351", r.drivers[0], nil, http.StatusOK, &out)
	if res.Status != statusPass {
		return res
	}
	for _, ride := range out.Rides {
		if ride.ID == r.rideID {
			return res
		}
	}
	return fail(fmt.Sprintf("ride %s not in %d nearby rides", r.rideID, len(out.Rides)))
}

// acceptRace fires every driver's accept at once; exactly one may win and
// every loser must see a 409.
func acceptRace(ctx context.Context, r *Runner) Result {
	if r.rideID == "" || len(r.drivers) == 0 {
		return skip("no ride or drivers")
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		lost    int
		unknown []int
	)
	start := make(chan struct{})
	begin := time.Now()
	for _, d := range r.drivers {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			<-start
			code, _, err := r.do(ctx, http.MethodPost, "/api/drivers/rides/"+r.rideID+"/accept", driverID,
				map[string]float64{"lat": 31.521, "lng": 74.351})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				unknown = append(unknown, 0)
			case code == http.StatusOK:
				won++
			case code == http.StatusConflict:
				lost++
			default:
				unknown = append(unknown, code)
			}
		}(d)
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("won=%d lost=%d other=%v", won, lost, unknown)
	if won != 1 || len(unknown) > 0 {
		return Result{Status: statusFail, Latency: time.Since(begin), Note: note}
	}
	return Result{Status: statusPass, Latency: time.Since(begin), Note: note}
}

func oneConfirmEvent(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.rideID == "" {
		return skip("needs db and a ride")
	}
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM ride_events WHERE ride_id = $1 AND to_status = 'confirmed'`, r.rideID,
	).Scan(&n)
	if err != nil {
		return fail(err.Error())
	}
	if n != 1 {
		return fail(fmt.Sprintf("confirm events=%d", n))
	}
	return pass("")
}

func locationThroughput(ctx context.Context, r *Runner) Result {
	if len(r.drivers) == 0 {
		return skip("no drivers")
	}
	end := time.Now().Add(r.cfg.Duration)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		count    int
		errCount int
	)
	for _, d := range r.drivers {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.do(ctx, http.MethodPut, "/api/drivers/me/location", driverID,
					map[string]float64{"lat": 31.52, "lng": 74.35})
				mu.Lock()
				if err != nil || code != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()
	if count == 0 {
		return fail(fmt.Sprintf("no updates accepted, errors=%d", errCount))
	}
	return pass(fmt.Sprintf("rps=%.1f errors=%d", float64(count)/r.cfg.Duration.Seconds(), errCount))
}

// do sends an authenticated JSON request as uid ("" for anonymous).
func (r *Runner) do(ctx context.Context, method, path, uid string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" && r.signer != nil {
		token, err := r.signer.Sign(uid, "", time.Hour)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

func (r *Runner) expect(ctx context.Context, method, path, uid string, body any, want int, out any) Result {
	if uid != "" && r.signer == nil {
		return skip("jwt-secret not set")
	}
	start := time.Now()
	code, b, err := r.do(ctx, method, path, uid, body)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", code, truncate(b, 120))}
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return Result{Status: statusFail, Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
}

func pass(note string) Result { return Result{Status: statusPass, Note: note} }
func fail(note string) Result { return Result{Status: statusFail, Note: note} }
func skip(note string) Result { return Result{Status: statusSkip, Note: note} }

func check(err error) Result {
	if err != nil {
		return fail(err.Error())
	}
	return pass("")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

// splitSQL splits on statement markers; plpgsql bodies contain semicolons.
func splitSQL(sql string) []string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(sql))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != statementBreak && strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(sc.Text())
		b.WriteString("\n")
	}
	parts := strings.Split(b.String(), statementBreak)
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
