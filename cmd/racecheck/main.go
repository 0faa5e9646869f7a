// racecheck fires concurrent bookings for one slot at a running server and reports
// how many got through. Exactly one should.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"tablebook/internal/shared/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type attempt struct {
	racer    int
	status   int
	message  string
	duration time.Duration
	err      error
}

func main() {
	var baseURL, business, date, start, redisAddr string
	var table, racers int
	flag.StringVar(&baseURL, "url", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&business, "business", "", "business id (from cmd/seed)")
	flag.IntVar(&table, "table", 1, "table number to fight over")
	flag.StringVar(&date, "date", time.Now().AddDate(0, 0, 5).Format("2006-01-02"), "reservation date")
	flag.StringVar(&start, "start", "7:00 PM", "start time")
	flag.IntVar(&racers, "racers", 20, "concurrent requests")
	flag.StringVar(&redisAddr, "redis", "", "Redis address; when set, report the cached table keys")
	flag.Parse()

	if _, err := uuid.Parse(business); err != nil {
		log.Fatalf("-business must be a UUID: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	results := make([]attempt, racers)
	gate := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			results[i] = book(client, baseURL, map[string]interface{}{
				"business_id":     business,
				"table_number":    table,
				"customer_name":   fmt.Sprintf("Racer %02d", i+1),
				"customer_number": fmt.Sprintf("+9477000%04d", i+1),
				"group_size":      2,
				"slot_type":       "casual",
				"start_time":      start,
				"end_date":        date,
			})
			results[i].racer = i + 1
		}(i)
	}
	close(gate)
	wg.Wait()

	byStatus := map[int]int{}
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("racer %02d  error     %v\n", r.racer, r.err)
			continue
		}
		byStatus[r.status]++
		fmt.Printf("racer %02d  HTTP %d  %-8v %s\n", r.racer, r.status, r.duration.Round(time.Millisecond), r.message)
	}

	codes := make([]int, 0, len(byStatus))
	for c := range byStatus {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	fmt.Println("\nSummary:")
	for _, c := range codes {
		fmt.Printf("  HTTP %d: %d\n", c, byStatus[c])
	}
	if byStatus[http.StatusCreated] == 1 {
		fmt.Println("  OK: exactly one booking won the slot")
	} else {
		fmt.Printf("  UNEXPECTED: %d bookings created\n", byStatus[http.StatusCreated])
	}

	if redisAddr != "" {
		reportCache(redisAddr, business)
	}
}

func book(client *http.Client, baseURL string, body map[string]interface{}) attempt {
	payload, err := json.Marshal(body)
	if err != nil {
		return attempt{err: err}
	}

	began := time.Now()
	resp, err := client.Post(baseURL+"/reservation/create", "application/json", bytes.NewReader(payload))
	if err != nil {
		return attempt{err: err, duration: time.Since(began)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return attempt{err: err, duration: time.Since(began)}
	}
	var envelope struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &envelope)

	return attempt{status: resp.StatusCode, message: envelope.Message, duration: time.Since(began)}
}

func reportCache(addr, business string) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := rdb.Keys(ctx, constants.BuildTablePatternForBusiness(business)).Result()
	if err != nil {
		fmt.Printf("\nRedis: %v\n", err)
		return
	}
	sort.Strings(keys)
	fmt.Printf("\nCached table keys for %s: %d\n", business, len(keys))
	for _, k := range keys {
		ttl, _ := rdb.TTL(ctx, k).Result()
		fmt.Printf("  %s (ttl %s)\n", k, ttl.Round(time.Second))
	}
}
