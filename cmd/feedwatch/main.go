// feedwatch follows one business's reservation feed and prints the table board
// every time it changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tablebook/pkg/feed"

	"github.com/google/uuid"
)

func main() {
	var endpoint, business string
	var date string
	flag.StringVar(&endpoint, "url", "ws://localhost:8080/ws/reservations", "feed endpoint")
	flag.StringVar(&business, "business", "", "business id to follow")
	flag.StringVar(&date, "date", "", "only show this day (YYYY-MM-DD)")
	flag.Parse()

	if _, err := uuid.Parse(business); err != nil {
		log.Fatalf("-business must be a UUID: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache *feed.Cache
	cache = feed.NewCache(feed.OnChange(func() { printBoard(cache, date) }))

	backoff := time.Second
	for ctx.Err() == nil {
		client, err := feed.Dial(ctx, endpoint, business, cache,
			feed.OnApplyError(func(err error) { log.Printf("feed: %v", err) }))
		if err != nil {
			log.Printf("connect failed: %v (retrying in %s)", err, backoff)
			if !sleep(ctx, backoff) {
				break
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		log.Printf("following %s", business)

		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-client.Done():
			if err := client.Err(); err != nil && !errors.Is(err, feed.ErrClosed) {
				log.Printf("connection lost: %v", err)
			}
		}
	}
}

func printBoard(cache *feed.Cache, date string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s  %d reservations\n", time.Now().Format("15:04:05"), cache.Len())
	fmt.Fprintf(&b, "%-6s %-10s %-8s %-8s %-5s %-10s %s\n", "TABLE", "DATE", "START", "END", "PAX", "STATUS", "GUEST")
	for _, r := range cache.List() {
		if date != "" && r.Date != date {
			continue
		}
		guest := r.CustomerName
		if r.CustomerUsername != "" {
			guest = "@" + r.CustomerUsername
		}
		fmt.Fprintf(&b, "%-6d %-10s %-8s %-8s %-5d %-10s %s\n",
			r.TableNumber, r.Date, r.StartTime, r.EndTime, r.GroupSize, r.Status, guest)
	}
	fmt.Print(b.String())
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
