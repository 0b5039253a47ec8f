package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/verify"
)

func intPtr(v int) *int { return &v }

// fakeReasoner answers from a table keyed by citation text
type fakeReasoner struct {
	mu       sync.Mutex
	verdicts map[string]verify.Verdict
	errs     map[string]error
	calls    []string

	delay   time.Duration
	hold    map[string]chan struct{} // Verify waits on these, ignoring ctx
	waitCtx bool                     // Verify blocks until ctx ends

	running atomic.Int32
	peak    atomic.Int32
}

func newFakeReasoner() *fakeReasoner {
	return &fakeReasoner{
		verdicts: map[string]verify.Verdict{
			"410 U.S. 113 (1973)": {
				IsValid:     true,
				CaseName:    "Roe v. Wade",
				Standing:    model.StandingOverruled,
				Explanation: "Overruled by Dobbs v. Jackson Women's Health Organization.",
				Confidence:  intPtr(96),
				Replacement: &model.Replacement{
					Name:     "Dobbs v. Jackson Women's Health Organization",
					Citation: "597 U.S. 215",
				},
			},
			"999 U.S. 999 (2024)": {
				IsValid:     false,
				Standing:    model.StandingUnknown,
				Explanation: "Volume 999 of the United States Reports does not exist.",
				Confidence:  intPtr(90),
			},
			"384 U.S. 436 (1966)": {
				IsValid:  true,
				CaseName: "Miranda v. Arizona",
				Standing: model.StandingGood,
			},
		},
		errs: map[string]error{},
		hold: map[string]chan struct{}{},
	}
}

func (f *fakeReasoner) Name() string { return "fake-reasoner" }

func (f *fakeReasoner) Verify(ctx context.Context, req verify.Request) (verify.Verdict, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, req.CitationText)
	hold := f.hold[req.CitationText]
	v, ok := f.verdicts[req.CitationText]
	err := f.errs[req.CitationText]
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if f.waitCtx {
		<-ctx.Done()
		return verify.Verdict{}, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return verify.Verdict{}, ctx.Err()
		}
	}

	if err != nil {
		return verify.Verdict{}, err
	}
	if !ok {
		v = verify.Verdict{IsValid: true, Standing: model.StandingGood, CaseName: "Case " + strings.Fields(req.CitationText)[0]}
	}
	return v, nil
}

func (f *fakeReasoner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeAuthority finds every citation unless err is set
type fakeAuthority struct {
	mu    sync.Mutex
	err   error
	calls []verify.AuthorityRequest
}

func (f *fakeAuthority) Name() string { return "fake-index" }

func (f *fakeAuthority) Lookup(ctx context.Context, req verify.AuthorityRequest) (verify.AuthorityVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return verify.AuthorityVerdict{}, f.err
	}
	return verify.AuthorityVerdict{
		Found:        true,
		CaseName:     "Index name for " + req.CitationText,
		CanonicalURI: "https://index.example/" + strings.ReplaceAll(req.CitationText, " ", "_"),
		RecordID:     "rec-1",
	}, nil
}

func (f *fakeAuthority) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testOptions() Options {
	return Options{
		Mode:                verify.ModeStandard,
		AuthorityEnabled:    true,
		AuthorityCredential: "secret-token",
		MaxConcurrent:       4,
		ReasonerTimeout:     5 * time.Second,
		AuthorityTimeout:    5 * time.Second,
		Debounce:            30 * time.Millisecond,
	}
}
