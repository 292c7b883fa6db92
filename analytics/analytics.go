// Package analytics counts post reads without storing personal data.
//
// Client IPs are hashed with a per-installation salt and a read is counted
// at most once per post, visitor and day.
package analytics

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// salt holds the per-installation random salt for IP hashing, protected by sync.Once.
var salt struct {
	once  sync.Once
	value string
}

// InitSalt loads or generates a persistent salt for IP hashing.
// Must be called once at startup before any requests are served.
func InitSalt(store *Store) error {
	var initErr error
	salt.once.Do(func() {
		s, err := store.GetSetting("hash_salt")
		if err != nil {
			initErr = fmt.Errorf("read hash salt: %w", err)
			return
		}
		if s == "" {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				initErr = fmt.Errorf("generate salt: %w", err)
				return
			}
			s = hex.EncodeToString(b)
			if err := store.SetSetting("hash_salt", s); err != nil {
				initErr = fmt.Errorf("store hash salt: %w", err)
				return
			}
		}
		salt.value = s
	})
	return initErr
}

// HashIP creates a salted SHA-256 hash of an IP address.
func HashIP(ip string) string {
	h := sha256.New()
	h.Write([]byte(salt.value + ip))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// PostStat is the read count of one post.
type PostStat struct {
	Slug  string `json:"slug"`
	Reads int    `json:"reads"`
}

// DailyReads is the number of reads on one day (YYYY-MM-DD).
type DailyReads struct {
	Date  string `json:"date"`
	Reads int    `json:"reads"`
}

// Stats aggregates reads over a period.
type Stats struct {
	Period     string       `json:"period"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	TotalReads int          `json:"totalReads"`
	TopPosts   []PostStat   `json:"topPosts"`
	Daily      []DailyReads `json:"daily"`
}

var botMarkers = []string{
	"bot", "crawler", "spider", "crawl", "slurp", "scrape",
	"googlebot", "bingbot", "yandex", "baidu", "duckduckbot",
	"facebookexternalhit", "twitterbot", "linkedinbot",
	"ahrefsbot", "semrushbot", "mj12bot", "dotbot",
	"curl", "wget", "python-requests", "go-http-client",
}

// IsBot checks if the User-Agent is likely a bot, crawler or script.
func IsBot(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	ua = strings.ToLower(ua)
	for _, bot := range botMarkers {
		if strings.Contains(ua, bot) {
			return true
		}
	}
	return false
}

// parsePeriod maps a period name to a number of days. Unknown names fall
// back to "week".
func parsePeriod(period string) (string, int) {
	switch period {
	case "today":
		return period, 1
	case "month":
		return period, 30
	case "year":
		return period, 365
	default:
		return "week", 7
	}
}

// dayRange returns the first and last day (inclusive) of a period of days
// ending on now.
func dayRange(now time.Time, days int) (string, string) {
	now = now.UTC()
	from := now.AddDate(0, 0, -(days - 1))
	return from.Format(dayLayout), now.Format(dayLayout)
}

// fillDays returns one entry per day between from and to, zero-filling gaps.
func fillDays(sparse []DailyReads, from, to string) []DailyReads {
	start, err := time.Parse(dayLayout, from)
	if err != nil {
		return sparse
	}
	end, err := time.Parse(dayLayout, to)
	if err != nil {
		return sparse
	}
	counts := make(map[string]int, len(sparse))
	for _, d := range sparse {
		counts[d.Date] = d.Reads
	}
	var out []DailyReads
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		out = append(out, DailyReads{Date: key, Reads: counts[key]})
	}
	return out
}
