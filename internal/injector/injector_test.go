package injector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
	"github.com/mvankamp/dictum/internal/portal"
)

// fakeKeyboard records tapped keysyms and optionally fails.
type fakeKeyboard struct {
	mu      sync.Mutex
	taps    []int32
	tapTime []time.Time
	failErr error
}

func (k *fakeKeyboard) PressKeysym(_ context.Context, keysym int32) error {
	return k.record(keysym)
}

func (k *fakeKeyboard) ReleaseKeysym(_ context.Context, keysym int32) error {
	return k.record(-keysym)
}

func (k *fakeKeyboard) TapKeysym(_ context.Context, keysym int32) error {
	return k.record(keysym)
}

func (k *fakeKeyboard) record(keysym int32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failErr != nil {
		return k.failErr
	}
	k.taps = append(k.taps, keysym)
	k.tapTime = append(k.tapTime, time.Now())
	return nil
}

func (k *fakeKeyboard) tapped() []int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int32(nil), k.taps...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func typeConfig(delayMS int) config.InjectionConfig {
	return config.InjectionConfig{TypingDelayMS: delayMS, Mode: config.InjectionModeType}
}

func collectEvents(t *testing.T, events <-chan fsm.Event, n int) []fsm.Event {
	t.Helper()
	out := make([]fsm.Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d (have %v)", len(out)+1, n, out)
		}
	}
	return out
}

func TestCharToKeysymMapping(t *testing.T) {
	tests := []struct {
		r    rune
		want int32
	}{
		{r: 'a', want: 0x61},
		{r: 'Z', want: 0x5a},
		{r: ' ', want: 0x20},
		{r: '\n', want: keysymReturn},
		{r: '\t', want: keysymTab},
		{r: '\r', want: 0},
		{r: 'é', want: 0xe9},
		{r: '€', want: 0x01000000 | 0x20ac},
		{r: '語', want: 0x01000000 | 0x8a9e},
		{r: 0x07, want: 0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("U+%04X", tc.r), func(t *testing.T) {
			require.Equal(t, tc.want, charToKeysym(tc.r))
		})
	}
}

func TestInjectorTypesTextAndEmitsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{}
	events := make(chan fsm.Event, 8)
	inj := New(ctx, kb, typeConfig(0), events, Hooks{}, discard())

	require.NoError(t, inj.Enqueue(ctx, "hi\n"))

	got := collectEvents(t, events, 2)
	require.Equal(t, []fsm.Event{fsm.EventTranscriptReady, fsm.EventInjectionDone}, got)
	require.Equal(t, []int32{0x68, 0x69, keysymReturn}, kb.tapped())
}

func TestInjectorSkipsCarriageReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{}
	events := make(chan fsm.Event, 8)
	inj := New(ctx, kb, typeConfig(0), events, Hooks{}, discard())

	require.NoError(t, inj.Enqueue(ctx, "a\r\nb"))
	collectEvents(t, events, 2)

	require.Equal(t, []int32{0x61, keysymReturn, 0x62}, kb.tapped())
}

func TestInjectorHonorsTypingDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{}
	events := make(chan fsm.Event, 8)
	inj := New(ctx, kb, typeConfig(20), events, Hooks{}, discard())

	require.NoError(t, inj.Enqueue(ctx, "abc"))
	collectEvents(t, events, 2)

	kb.mu.Lock()
	defer kb.mu.Unlock()
	require.Len(t, kb.tapTime, 3)
	for i := 1; i < len(kb.tapTime); i++ {
		require.GreaterOrEqual(t, kb.tapTime[i].Sub(kb.tapTime[i-1]), 20*time.Millisecond)
	}
}

func TestInjectorSerializesOverlappingEnqueues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{}
	events := make(chan fsm.Event, 16)
	inj := New(ctx, kb, typeConfig(0), events, Hooks{}, discard())

	require.NoError(t, inj.Enqueue(ctx, "aaa"))
	require.NoError(t, inj.Enqueue(ctx, "bbb"))

	collectEvents(t, events, 4)
	require.Equal(t, []int32{0x61, 0x61, 0x61, 0x62, 0x62, 0x62}, kb.tapped())
}

func TestInjectorPortalErrorStashesPendingAndEmitsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{failErr: &portal.Error{Op: "NotifyKeyboardKeysym", Err: errors.New("session dead")}}
	events := make(chan fsm.Event, 8)

	var stashed string
	hooks := Hooks{StashPending: func(text string) { stashed = text }}
	inj := New(ctx, kb, typeConfig(0), events, hooks, discard())

	require.NoError(t, inj.Enqueue(ctx, "lost text"))

	got := collectEvents(t, events, 2)
	require.Equal(t, []fsm.Event{fsm.EventTranscriptReady, fsm.EventError}, got)
	require.Equal(t, "lost text", stashed)
}

func TestInjectorLocalErrorRecordsAndCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb := &fakeKeyboard{failErr: errors.New("transient")}
	events := make(chan fsm.Event, 8)

	var recorded string
	hooks := Hooks{RecordError: func(msg string) { recorded = msg }}
	inj := New(ctx, kb, typeConfig(0), events, hooks, discard())

	require.NoError(t, inj.Enqueue(ctx, "x"))

	got := collectEvents(t, events, 2)
	require.Equal(t, []fsm.Event{fsm.EventTranscriptReady, fsm.EventInjectionDone}, got)
	require.Contains(t, recorded, "transient")
}

func TestTypeTextReturnsPortalErrorUnwrapped(t *testing.T) {
	ctx := context.Background()
	kb := &fakeKeyboard{failErr: &portal.Error{Op: "tap", Err: errors.New("gone")}}
	inj := &Injector{kb: kb, logger: discard()}

	err := inj.TypeText(ctx, "a")
	require.Error(t, err)
	require.True(t, portal.IsPortalError(err))
}
