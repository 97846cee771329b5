package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// InboundPayload is one simulated inbound webhook.
type InboundPayload struct {
	FromPhone         string `json:"from_phone"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"provider_message_id"`
	Timestamp         string `json:"timestamp"`
}

type inboundResult struct {
	OK        bool  `json:"ok"`
	ThreadID  int64 `json:"thread_id"`
	Duplicate bool  `json:"duplicate"`
}

type Config struct {
	URL           string
	Rate          int
	Duration      time.Duration
	Workers       int
	WebhookSecret string
	// Contacts spreads the load over this many sender phones.
	Contacts int
	// ReplayEvery resends the previous provider message id every n requests
	// to exercise deduplication. 0 disables replays.
	ReplayEvery int
}

var bodies = []string{
	"Hi, where is my order?",
	"I would like a refund",
	"Thanks for the help",
	"Is anyone there?",
}

type generator struct {
	cfg   Config
	runID string
	seq   atomic.Int64
}

func (g *generator) next() []byte {
	n := g.seq.Add(1)
	id := n
	if g.cfg.ReplayEvery > 0 && n > 1 && n%int64(g.cfg.ReplayEvery) == 0 {
		id = n - 1
	}
	b, err := json.Marshal(InboundPayload{
		FromPhone:         fmt.Sprintf("+1555%07d", id%int64(g.cfg.Contacts)),
		Body:              bodies[id%int64(len(bodies))],
		ProviderMessageID: fmt.Sprintf("wamid.load.%s.%d", g.runID, id),
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		panic(err)
	}
	return b
}

// Tally groups webhook outcomes the way the inbox reports them.
type Tally struct {
	stored       atomic.Int64
	duplicates   atomic.Int64
	unauthorized atomic.Int64
	rejected     atomic.Int64
	failed       atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (t *Tally) observe(d time.Duration) {
	t.mu.Lock()
	t.latencies = append(t.latencies, d)
	t.mu.Unlock()
}

func (t *Tally) total() int64 {
	return t.stored.Load() + t.duplicates.Load() + t.unauthorized.Load() + t.rejected.Load() + t.failed.Load()
}

func post(client *http.Client, cfg Config, payload []byte, t *Tally) {
	start := time.Now()
	defer func() { t.observe(time.Since(start)) }()

	req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		t.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", cfg.WebhookSecret)

	resp, err := client.Do(req)
	if err != nil {
		t.failed.Add(1)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		t.unauthorized.Add(1)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		t.rejected.Add(1)
	case resp.StatusCode != http.StatusOK:
		t.failed.Add(1)
	default:
		var res inboundResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || !res.OK {
			t.failed.Add(1)
		} else if res.Duplicate {
			t.duplicates.Add(1)
		} else {
			t.stored.Add(1)
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func main() {
	cfg := Config{
		URL:           envString("TARGET_URL", "http://localhost:8080/api/v1/webhooks/inbound"),
		Rate:          envInt("REQUESTS_PER_SECOND", 500),
		Duration:      time.Duration(envInt("DURATION_SECONDS", 30)) * time.Second,
		Workers:       envInt("CONCURRENT_WORKERS", 100),
		WebhookSecret: envString("WEBHOOK_SECRET", ""),
		Contacts:      max(envInt("CONTACTS", 1000), 1),
		ReplayEvery:   envInt("REPLAY_EVERY", 20),
	}
	gen := &generator{cfg: cfg, runID: strconv.FormatInt(time.Now().Unix(), 36)}

	fmt.Printf("webhook load: %s, %d rps for %s, %d workers, %d contacts, replay every %d\n",
		cfg.URL, cfg.Rate, cfg.Duration, cfg.Workers, cfg.Contacts, cfg.ReplayEvery)
	fmt.Println(strings.Repeat("-", 50))

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Workers,
			MaxIdleConnsPerHost: cfg.Workers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	tally := &Tally{}
	ticks := make(chan struct{}, cfg.Rate)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ticks {
				post(client, cfg, gen.next(), tally)
			}
		}()
	}

	start := time.Now()
	seconds := int(cfg.Duration / time.Second)
	for s := 1; s <= seconds; s++ {
		second := time.Now()
		for j := 0; j < cfg.Rate; j++ {
			ticks <- struct{}{}
		}
		fmt.Printf("[%ds] done=%d stored=%d duplicate=%d failed=%d\n",
			s, tally.total(), tally.stored.Load(), tally.duplicates.Load(), tally.failed.Load())
		if rest := time.Second - time.Since(second); rest > 0 {
			time.Sleep(rest)
		}
	}
	close(ticks)
	wg.Wait()
	report(tally, time.Since(start))
}

func report(t *Tally, elapsed time.Duration) {
	lat := t.latencies
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	var sum time.Duration
	for _, d := range lat {
		sum += d
	}
	total := t.total()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("elapsed        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("requests       %d (%.1f rps)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("stored         %d\n", t.stored.Load())
	fmt.Printf("duplicates     %d\n", t.duplicates.Load())
	fmt.Printf("unauthorized   %d\n", t.unauthorized.Load())
	fmt.Printf("rejected (4xx) %d\n", t.rejected.Load())
	fmt.Printf("failed         %d\n", t.failed.Load())
	if len(lat) > 0 {
		fmt.Printf("latency avg=%s p50=%s p95=%s p99=%s max=%s\n",
			(sum / time.Duration(len(lat))).Round(time.Microsecond),
			percentile(lat, 0.50), percentile(lat, 0.95), percentile(lat, 0.99), lat[len(lat)-1])
	}
}
