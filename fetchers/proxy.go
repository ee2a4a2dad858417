package fetchers

import (
	"bufio"
	"os"
	"strings"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
)

// Rotator hands out proxies round robin. A nil or empty Rotator hands out
// nothing.
type Rotator struct {
	proxies []string
	next    atomic.Uint32
}

func NewRotator(proxies ...string) *Rotator {
	return &Rotator{proxies: proxies}
}

func (r *Rotator) Next() string {
	if r == nil || len(r.proxies) == 0 {
		return ""
	}

	i := r.next.Add(1) - 1

	return r.proxies[int(i)%len(r.proxies)]
}

func (r *Rotator) pwProxy() *playwright.Proxy {
	u := r.Next()
	if u == "" {
		return nil
	}

	return &playwright.Proxy{Server: u}
}

// LoadProxies reads one proxy URL per line, skipping blanks and # comments.
func LoadProxies(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var ans []string

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ans = append(ans, line)
	}

	return ans, sc.Err()
}
