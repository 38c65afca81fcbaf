package behavior

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/browser/browsertest"
	"github.com/Sm36384/Phoenix/governor/internal/motion"
	"github.com/Sm36384/Phoenix/governor/internal/rhythm"
)

func newFlow(slept *[]time.Duration, opts ...Option) *Flow {
	r := rhythm.New(
		rhythm.WithRand(rand.New(rand.NewPCG(11, 12))),
		rhythm.WithSleeper(func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		}),
	)
	return New(r, nil, opts...)
}

func TestRun_Sequence(t *testing.T) {
	page := browsertest.NewPage()
	var slept []time.Duration
	f := newFlow(&slept)

	err := f.Run(context.Background(), page, "https://jobs.example.sg/", "https://jobs.example.sg/job/42")
	require.NoError(t, err)

	require.Equal(t, []string{"https://jobs.example.sg/", "https://jobs.example.sg/job/42"}, page.Visited)

	var scrolls int
	for _, s := range page.Scripts {
		if strings.Contains(s, "scrollTo") {
			scrolls++
		}
	}
	assert.GreaterOrEqual(t, scrolls, 8)
	assert.LessOrEqual(t, scrolls, 14)

	require.Len(t, page.Moves, motion.Steps+1)
	last := page.Moves[len(page.Moves)-1]
	assert.True(t, last[0] >= 128 && last[0] < 512, "x %v", last[0])
	assert.True(t, last[1] >= 20 && last[1] < 100, "y %v", last[1])

	assert.Contains(t, slept, Dwell)
}

func TestRun_ScrollReachesThirty(t *testing.T) {
	page := browsertest.NewPage()
	var lastY float64
	f := newFlow(nil)

	page.EvalFunc = func(js string, args ...any) (json.RawMessage, error) {
		if strings.Contains(js, "scrollTo") {
			lastY = args[0].(float64)
			return json.RawMessage("null"), nil
		}
		if strings.Contains(js, "scrollHeight") {
			return json.RawMessage("2000"), nil
		}
		return json.RawMessage(`{"width":1280,"height":800}`), nil
	}
	require.NoError(t, f.Run(context.Background(), page, "https://a/", "https://a/b"))
	assert.Equal(t, 600.0, lastY)
}

func TestRun_NavigateFailureAborts(t *testing.T) {
	page := browsertest.NewPage()
	page.NavigateErr = errors.New("net::ERR_TUNNEL_CONNECTION_FAILED")
	err := newFlow(nil).Run(context.Background(), page, "https://a/", "https://a/b")
	require.Error(t, err)
	assert.Empty(t, page.Moves)
}

func TestRun_NavigationErrorStage(t *testing.T) {
	page := browsertest.NewPage()
	page.LoadErrs = map[string]error{"https://a/b": context.DeadlineExceeded}

	err := newFlow(nil).Run(context.Background(), page, "https://a/", "https://a/b")
	var nav *NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, StageTarget, nav.Stage)
	assert.Equal(t, "https://a/b", nav.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_CheckAfterEachNavigation(t *testing.T) {
	page := browsertest.NewPage()
	var checked []string
	check := func(ctx context.Context, p browser.Page) error {
		u, _ := p.URL(ctx)
		checked = append(checked, u)
		return nil
	}

	require.NoError(t, newFlow(nil, WithCheck(check)).Run(context.Background(), page, "https://a/", "https://a/b"))
	assert.Equal(t, []string{"https://a/", "https://a/b"}, checked)
}

func TestRun_CheckStopsOnHome(t *testing.T) {
	page := browsertest.NewPage()
	halt := errors.New("blocked")
	check := func(ctx context.Context, p browser.Page) error {
		if u, _ := p.URL(ctx); u == "https://a/" {
			return halt
		}
		return nil
	}

	err := newFlow(nil, WithCheck(check)).Run(context.Background(), page, "https://a/", "https://a/b")
	require.ErrorIs(t, err, halt)
	assert.Equal(t, []string{"https://a/"}, page.Visited)
	assert.Empty(t, page.Scripts)
	assert.Empty(t, page.Moves)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newFlow(nil).Run(ctx, browsertest.NewPage(), "https://a/", "https://a/b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNavPoint_Band(t *testing.T) {
	src := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 500; i++ {
		p := NavPoint(src, 1000)
		require.True(t, p.X >= 100 && p.X < 400, "x %v", p.X)
		require.True(t, p.Y >= 20 && p.Y < 100, "y %v", p.Y)
	}
}
