package browser

import (
	"context"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodTab drives one chromium tab through rod. All identity overrides are in
// place before the first navigation.
type rodTab struct {
	page *rod.Page
	fp   Fingerprint
	jars *JarStore

	respMu    sync.Mutex
	responses []string
	respWake  chan struct{}
	stopWatch context.CancelFunc

	origin string
}

// prepare applies the fingerprint and restores the target origin's cookie
// jar. Must complete before the first navigation.
func (t *rodTab) prepare(ctx context.Context, rng *rand.Rand, targetURL string) error {
	err := proto.NetworkSetUserAgentOverride{
		UserAgent:      t.fp.UserAgent,
		AcceptLanguage: t.fp.AcceptLanguage(),
		Platform:       t.fp.Platform,
	}.Call(t.page)
	if err != nil {
		return err
	}

	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: t.fp.Timezone}).Call(t.page); err != nil {
		return err
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             t.fp.ScreenWidth,
		Height:            t.fp.ScreenHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}).Call(t.page); err != nil {
		return err
	}

	if _, err := t.page.EvalOnNewDocument(t.fp.SpoofScript()); err != nil {
		return err
	}
	if _, err := t.page.EvalOnNewDocument(SeedStorageScript(rng)); err != nil {
		return err
	}

	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		t.origin = u.Scheme + "://" + u.Host
		t.restoreCookies(u)
	}

	t.startResponseWatch()
	return nil
}

func (t *rodTab) restoreCookies(u *url.URL) {
	if t.jars == nil {
		return
	}
	stored, err := t.jars.Load(u.Host)
	if err != nil || len(stored) == 0 {
		return
	}
	params := make([]*proto.NetworkCookieParam, 0, len(stored))
	for _, c := range stored {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  proto.TimeSinceEpoch(c.Expires.Unix()),
		})
	}
	if err := t.page.SetCookies(params); err != nil {
		log.Printf("[browser] restore cookies for %s: %v", u.Host, err)
	}
}

// startResponseWatch records every network response URL the tab observes so
// WaitResponse can match playlist fetches triggered by in-page players.
func (t *rodTab) startResponseWatch() {
	_ = proto.NetworkEnable{}.Call(t.page)
	t.respWake = make(chan struct{}, 1)

	watchCtx, cancel := context.WithCancel(context.Background())
	t.stopWatch = cancel

	go t.page.Context(watchCtx).EachEvent(func(ev *proto.NetworkResponseReceived) {
		t.respMu.Lock()
		t.responses = append(t.responses, ev.Response.URL)
		t.respMu.Unlock()
		select {
		case t.respWake <- struct{}{}:
		default:
		}
	})()
}

func (t *rodTab) Navigate(ctx context.Context, target, referer string) error {
	page := t.page.Context(ctx)
	if _, err := (proto.PageNavigate{URL: target, Referrer: referer}).Call(page); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (t *rodTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

func (t *rodTab) Eval(ctx context.Context, script string) (string, error) {
	res, err := t.page.Context(ctx).Eval(script)
	if err != nil {
		return "", err
	}
	return res.Value.String(), nil
}

func (t *rodTab) WaitResponse(ctx context.Context, substr string, timeout time.Duration) (string, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	seen := 0
	for {
		t.respMu.Lock()
		for ; seen < len(t.responses); seen++ {
			if strings.Contains(strings.ToLower(t.responses[seen]), substr) {
				found := t.responses[seen]
				t.respMu.Unlock()
				return found, true
			}
		}
		t.respMu.Unlock()

		select {
		case <-t.respWake:
		case <-deadline.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

func (t *rodTab) MoveMouse(x, y float64, steps int) error {
	if steps < 1 {
		steps = 1
	}
	return t.page.Mouse.MoveLinear(proto.NewPoint(x, y), steps)
}

func (t *rodTab) Click() error {
	return t.page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// Close flushes the origin cookie jar and tears the tab down.
func (t *rodTab) Close() {
	if t.stopWatch != nil {
		t.stopWatch()
	}
	t.flushCookies()
	if err := t.page.Close(); err != nil {
		log.Printf("[browser] close tab: %v", err)
	}
}

func (t *rodTab) flushCookies() {
	if t.jars == nil || t.origin == "" {
		return
	}
	cookies, err := t.page.Cookies(nil)
	if err != nil {
		return
	}
	stored := make([]StoredCookie, 0, len(cookies))
	for _, c := range cookies {
		var expires time.Time
		if c.Expires > 0 {
			expires = time.Unix(int64(c.Expires), 0)
		}
		stored = append(stored, StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	if err := t.jars.Save(t.origin, stored); err != nil {
		log.Printf("[browser] persist cookies for %s: %v", t.origin, err)
	}
}
