package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feerecon/internal/model"
	"github.com/sells-group/feerecon/internal/resilience"
)

// scriptedCompleter replays replies in order.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	users   []string
}

func (s *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.users = append(s.users, user)
	if system != SystemPrompt {
		return "", errors.New("unexpected system prompt")
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return s.replies[len(s.replies)-1], nil
}

func testConfig() Config {
	return Config{
		Timeout:          time.Second,
		Backoff:          resilience.Backoff{Attempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond},
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	}
}

var twoReqs = []model.CalcRequest{
	{Hours: "8场（1.5*8）", Rate: "2小时以内150，每增加半小时25元，考务每场另加50"},
	{Hours: "4场（2+2+2+2）", Rate: "2小时以内50，每增加半小时10元"},
}

func TestLLM_Compute(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"[1600, 200]"}}
	o := NewLLM("test", c, testConfig())

	got, err := o.Compute(context.Background(), twoReqs)
	require.NoError(t, err)
	assert.Equal(t, []model.Amount{model.AmountOf(1600), model.AmountOf(200)}, got)
	require.Len(t, c.users, 1)
	assert.Contains(t, c.users[0], "8场（1.5*8）")
}

func TestLLM_Compute_Empty(t *testing.T) {
	c := &scriptedCompleter{}
	got, err := NewLLM("test", c, testConfig()).Compute(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, c.calls)
}

func TestLLM_Compute_RetriesTransient(t *testing.T) {
	c := &scriptedCompleter{
		errs:    []error{&resilience.StatusError{Service: "x", Code: 503}, nil},
		replies: []string{"", "[1600, 200]"},
	}
	got, err := NewLLM("test", c, testConfig()).Compute(context.Background(), twoReqs)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, c.calls)
}

func TestLLM_Compute_PermanentError(t *testing.T) {
	c := &scriptedCompleter{errs: []error{&resilience.StatusError{Service: "x", Code: 401}}}
	_, err := NewLLM("test", c, testConfig()).Compute(context.Background(), twoReqs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle: test complete")
	assert.Equal(t, 1, c.calls)
}

func TestLLM_Compute_MalformedReplyNotRetried(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"[1600]"}}
	_, err := NewLLM("test", c, testConfig()).Compute(context.Background(), twoReqs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
	assert.Equal(t, 1, c.calls)
}

func TestLLM_Compute_BreakerOpens(t *testing.T) {
	perm := &resilience.StatusError{Service: "x", Code: 400}
	c := &scriptedCompleter{errs: []error{perm, perm, perm}}
	o := NewLLM("test", c, testConfig())

	for i := 0; i < 2; i++ {
		_, err := o.Compute(context.Background(), twoReqs)
		require.Error(t, err)
	}
	_, err := o.Compute(context.Background(), twoReqs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, 2, c.calls)
}

func TestLLM_Compute_RateLimited(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"[1, 2]"}}
	cfg := testConfig()
	cfg.RequestsPerSecond = 20
	o := NewLLM("test", c, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := o.Compute(context.Background(), twoReqs)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
