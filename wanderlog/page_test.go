package wanderlog

import (
	"errors"
	"sync"

	"github.com/playwright-community/playwright-go"
)

var errFake = errors.New("fake failure")

// fakePage records calls and answers them from plain funcs. A nil func means
// the call succeeds.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	url     string
	content string

	gotoFn      func(url string) error
	reloadFn    func() error
	loadStateFn func(state string) error
	selectorFn  func(sel string) error
	clickFn     func(sel string) error
	evaluateFn  func(expr string, args ...any) (any, error)
}

var _ Page = (*fakePage)(nil)

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.calls...)
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.record("goto:" + url)

	if p.gotoFn != nil {
		if err := p.gotoFn(url); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.url = url
	p.mu.Unlock()

	return nil, nil
}

func (p *fakePage) Reload(_ ...playwright.PageReloadOptions) (playwright.Response, error) {
	p.record("reload")

	if p.reloadFn != nil {
		return nil, p.reloadFn()
	}

	return nil, nil
}

func (p *fakePage) WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error {
	state := ""
	if len(options) > 0 && options[0].State != nil {
		state = string(*options[0].State)
	}

	p.record("load:" + state)

	if p.loadStateFn != nil {
		return p.loadStateFn(state)
	}

	return nil
}

func (p *fakePage) WaitForSelector(sel string, _ ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error) {
	p.record("selector:" + sel)

	if p.selectorFn != nil {
		return nil, p.selectorFn(sel)
	}

	return nil, nil
}

func (p *fakePage) Click(sel string, _ ...playwright.PageClickOptions) error {
	p.record("click:" + sel)

	if p.clickFn != nil {
		return p.clickFn(sel)
	}

	return nil
}

func (p *fakePage) Evaluate(expr string, args ...interface{}) (interface{}, error) {
	if p.evaluateFn != nil {
		return p.evaluateFn(expr, args...)
	}

	return nil, errFake
}

func (p *fakePage) Content() (string, error) {
	return p.content, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url
}

func (p *fakePage) WaitForTimeout(float64) {}
