package netcheck

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classkeeper/authsession/internal/errs"
)

func TestProber_IsOnline(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	p := NewProber(lis.Addr().String())
	require.True(t, p.IsOnline(context.Background()))

	lis.Close()
	p2 := NewProber(lis.Addr().String())
	p2.DialTimeout = 200 * time.Millisecond
	require.False(t, p2.IsOnline(context.Background()))
}

func TestProber_WaitForOnline_ImmediateSuccess(t *testing.T) {
	p := NewProber("probe.invalid:1")
	p.dial = func(context.Context, string, time.Duration) error { return nil }
	require.NoError(t, p.WaitForOnline(context.Background(), time.Second))
}

func TestProber_WaitForOnline_Timeout(t *testing.T) {
	p := NewProber("probe.invalid:1")
	p.Interval = 10 * time.Millisecond
	p.dial = func(context.Context, string, time.Duration) error { return errors.New("unreachable") }

	err := p.WaitForOnline(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, errs.ErrNoConnectivity)
}

func TestProber_WaitForOnline_RecoversMidWait(t *testing.T) {
	p := NewProber("probe.invalid:1")
	p.Interval = 10 * time.Millisecond
	attempts := 0
	p.dial = func(context.Context, string, time.Duration) error {
		attempts++
		if attempts < 3 {
			return errors.New("unreachable")
		}
		return nil
	}

	require.NoError(t, p.WaitForOnline(context.Background(), time.Second))
	require.GreaterOrEqual(t, attempts, 3)
}

func TestProber_WaitForOnline_ContextCancelled(t *testing.T) {
	p := NewProber("probe.invalid:1")
	p.Interval = 10 * time.Millisecond
	p.dial = func(context.Context, string, time.Duration) error { return errors.New("unreachable") }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := p.WaitForOnline(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
