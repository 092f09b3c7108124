package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/config"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/db"
)

// The simulator drives a clinic morning against a running api-server:
// booking workers create tokenized appointments while front-desk workers
// advance and occasionally skip each doctor's queue.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	AdvanceRatio float64
	SkipRatio    float64
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
}

func (dp *DataPool) RandomPatient() uuid.UUID {
	return dp.Patients[rand.Intn(len(dp.Patients))]
}

func (dp *DataPool) RandomDoctor() uuid.UUID {
	return dp.Doctors[rand.Intn(len(dp.Doctors))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Advance OperationMetrics
	Skip    OperationMetrics
	Current OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f advance=%.2f skip=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.AdvanceRatio, cfg.SkipRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		AdvanceRatio: getFloat("SIM_ADVANCE_RATIO", 0.3),
		SkipRatio:    getFloat("SIM_SKIP_RATIO", 0.1),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be positive")
	}
	total := cfg.BookingRatio + cfg.AdvanceRatio + cfg.SkipRatio
	if total > 1.0 {
		return fmt.Errorf("operation ratios sum to %.2f, must be <= 1.0", total)
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docRows, err := pool.Query(ctx, `SELECT id FROM doctors LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id uuid.UUID
		if err := docRows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, id)
	}
	if err := docRows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 || len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("empty data pool, run cmd/seed first")
	}

	return dp, nil
}

func (s *Simulator) Run() {
	log.Printf("running %d workers for %s", s.config.Workers, s.config.Duration)

	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				s.step()
			}
		}()
	}

	wg.Wait()
}

func (s *Simulator) step() {
	r := rand.Float64()
	switch {
	case r < s.config.BookingRatio:
		s.book()
	case r < s.config.BookingRatio+s.config.AdvanceRatio:
		s.queueOp("advance", &s.metrics.Advance)
	case r < s.config.BookingRatio+s.config.AdvanceRatio+s.config.SkipRatio:
		s.queueOp("skip", &s.metrics.Skip)
	default:
		s.current()
	}
}

func (s *Simulator) book() {
	scheduledAt := time.Now().Add(time.Duration(rand.Intn(180)) * time.Minute)
	body, _ := json.Marshal(map[string]any{
		"doctor_id":    s.pool.RandomDoctor().String(),
		"patient_id":   s.pool.RandomPatient().String(),
		"scheduled_at": scheduledAt.Format(time.RFC3339),
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	defer drain(resp)

	s.metrics.Booking.Record(latency, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) queueOp(op string, om *OperationMetrics) {
	url := fmt.Sprintf("%s/doctors/%s/queue/%s", s.config.APIBaseURL, s.pool.RandomDoctor(), op)

	start := time.Now()
	resp, err := s.client.Post(url, "application/json", nil)
	latency := time.Since(start)

	if err != nil {
		om.Record(latency, false, false)
		return
	}
	defer drain(resp)

	om.Record(latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) current() {
	url := fmt.Sprintf("%s/doctors/%s/queue/current", s.config.APIBaseURL, s.pool.RandomDoctor())

	start := time.Now()
	resp, err := s.client.Get(url)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Current.Record(latency, false, false)
		return
	}
	defer drain(resp)

	s.metrics.Current.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("booking", &s.metrics.Booking)
	printOp("advance", &s.metrics.Advance)
	printOp("skip", &s.metrics.Skip)
	printOp("current", &s.metrics.Current)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-10s no operations\n", name)
		return
	}

	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s min=%s max=%s p50=%s p95=%s\n",
		name,
		total,
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, min, max, p50, p95,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
