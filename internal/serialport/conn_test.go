package serialport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestConn(t *testing.T) (*Conn, *TestablePort, *clockwork.FakeClock) {
	t.Helper()
	port := NewTestablePort()
	clock := clockwork.NewFakeClock()
	conn := NewConn(port, clock)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, port, clock
}

func TestConn_ReadLine_InOrder(t *testing.T) {
	conn, port, _ := newTestConn(t)
	port.AddReadData([]byte("START_SAVING:ABC\r\nDIM:2,2\n0,0,F800\n"))

	ctx := context.Background()
	for _, want := range []string{"START_SAVING:ABC", "DIM:2,2", "0,0,F800"} {
		got, err := conn.ReadLine(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConn_ReadLine_Timeout(t *testing.T) {
	conn, _, clock := newTestConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := conn.ReadLine(ctx, 10*time.Second)
		errc <- err
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-ctx.Done():
		t.Fatal("ReadLine did not time out")
	}
}

func TestConn_ReadLine_ContextCanceled(t *testing.T) {
	conn, _, _ := newTestConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.ReadLine(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConn_ReadLine_ReadError(t *testing.T) {
	conn, port, _ := newTestConn(t)
	port.FailRead(errors.New("device unplugged"))

	_, err := conn.ReadLine(context.Background(), time.Hour)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestConn_Drain_Waiting(t *testing.T) {
	conn, port, _ := newTestConn(t)
	port.AddReadData([]byte("stale\n"))
	ctx := context.Background()

	// wait until the scanner has the line ready to hand over
	require.Eventually(t, func() bool {
		n, err := conn.Drain(ctx, 0)
		return err == nil && n == 1
	}, time.Second, time.Millisecond)

	n, err := conn.Drain(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConn_Drain_SwallowsFrameTail(t *testing.T) {
	port := NewTestablePort()
	conn := NewConn(port, clockwork.NewRealClock())
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()

	// what is left of a frame after its round failed on a bad pixel
	port.AddReadData([]byte("1,1,FFFF\r\n2,2,FFFF\r\n0,1,FFFF\r\nEND_SAVING\r\n"))

	n, err := conn.Drain(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	port.AddReadData([]byte("START_SAVING:B\r\n"))
	line, err := conn.ReadLine(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "START_SAVING:B", line)
}

func TestConn_Drain_QuietWindowOnClock(t *testing.T) {
	conn, _, clock := newTestConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		n, _ := conn.Drain(ctx, 100*time.Millisecond)
		done <- n
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-ctx.Done():
		t.Fatal("Drain did not return after the quiet window")
	}
}

func TestConn_Drain_Cancelled(t *testing.T) {
	conn, _, _ := newTestConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.Drain(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConn_SendCommand(t *testing.T) {
	conn, port, _ := newTestConn(t)

	require.NoError(t, conn.SendCommand("CAPTURE_SIGNATURE"))
	require.NoError(t, conn.SendCommand("PING\n"))
	assert.Equal(t, "CAPTURE_SIGNATURE\nPING\n", port.Written())

	port.WriteError = errors.New("io error")
	assert.Error(t, conn.SendCommand("CAPTURE_SIGNATURE"))
}

func TestConn_Close_Once(t *testing.T) {
	port := NewTestablePort()
	port.CloseError = errors.New("busy")
	conn := NewConn(port, clockwork.NewFakeClock())

	err := conn.Close()
	require.Error(t, err)
	assert.Equal(t, err, conn.Close())

	closed, calls := port.IsClosed()
	assert.True(t, closed)
	assert.Equal(t, 1, calls)

	_, err = conn.ReadLine(context.Background(), time.Hour)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, conn.SendCommand("X"), ErrClosed)
}

func TestOpen(t *testing.T) {
	port := NewTestablePort()
	opener, modes := TestOpener(port, nil)

	conn, err := Open(opener, "/dev/ttyTEST", PortOptions{}, clockwork.NewFakeClock())
	require.NoError(t, err)
	defer conn.Close()

	require.Len(t, *modes, 1)
	assert.Equal(t, 115200, (*modes)[0].BaudRate)
	assert.Equal(t, serial.NoParity, (*modes)[0].Parity)
}

func TestOpen_Errors(t *testing.T) {
	opener, _ := TestOpener(nil, errors.New("no such device"))
	_, err := Open(opener, "/dev/missing", PortOptions{}, nil)
	assert.ErrorContains(t, err, "no such device")

	opener, modes := TestOpener(NewTestablePort(), nil)
	_, err = Open(opener, "/dev/ttyTEST", PortOptions{DataBits: 12}, nil)
	assert.Error(t, err)
	assert.Empty(t, *modes)
}
