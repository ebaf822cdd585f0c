package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyOracle struct {
	calls     int
	failUntil int
}

var errUnavailable = errors.New("model unavailable")

func (f *flakyOracle) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return "", errUnavailable
	}

	return "fn translated() {}", nil
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestGenerateWithRetry_RecoversAfterFailure(t *testing.T) {
	t.Parallel()

	flaky := &flakyOracle{failUntil: 2}

	text, err := GenerateWithRetry(context.Background(), flaky, "prompt", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "fn translated() {}", text)
	assert.Equal(t, 3, flaky.calls)
}

func TestGenerateWithRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	flaky := &flakyOracle{failUntil: 100}

	_, err := GenerateWithRetry(context.Background(), flaky, "prompt", 3, nil)
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 3, flaky.calls)
}

func TestGenerateWithRetry_ContextCancelStopsBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyOracle{failUntil: 100}

	_, err := GenerateWithRetry(ctx, flaky, "prompt", 5, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, flaky.calls, "no further attempts once the context is gone")
}
