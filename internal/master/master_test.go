// internal/master/master_test.go
package master

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/slave"
	"github.com/tamzrod/uartcat/internal/telegram"
	"github.com/tamzrod/uartcat/internal/transport"
)

var (
	counter  = registers.New[uint32](registers.User, registers.ReadWrite)
	setpoint = registers.New[int16](registers.User+4, registers.WriteOnly)
	position = registers.NewLogical[uint32](0x1000, registers.ReadOnly)
)

type harness struct {
	m      *Master
	slaves []*slave.Slave
	ring   *transport.Ring
	runErr chan error
}

// startChain runs a master and one slave per config over an in-memory ring.
// wrap may interpose on the master's link.
func startChain(t *testing.T, wrap func(io.ReadWriter) io.ReadWriter, cfgs ...slave.Config) *harness {
	t.Helper()

	// goroutines may outlive the test by a few microseconds; keep them quiet
	log := zaptest.NewLogger(t, zaptest.Level(zapcore.ErrorLevel))

	ring := transport.NewRing(len(cfgs))
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{ring: ring, runErr: make(chan error, 1)}

	for i, sc := range cfgs {
		sc.Log = log
		s, err := slave.New(sc)
		if err != nil {
			cancel()
			t.Fatalf("slave.New: %v", err)
		}
		h.slaves = append(h.slaves, s)
		hop := ring.Hops[i]
		go func() { _ = s.Run(ctx, hop.Up, hop.Down) }()
	}

	var link io.ReadWriter = ring.Master
	if wrap != nil {
		link = wrap(link)
	}
	m, err := New(link, Config{Timeout: 50 * time.Millisecond, Log: log})
	if err != nil {
		cancel()
		t.Fatalf("New: %v", err)
	}
	h.m = m
	go func() { h.runErr <- m.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = ring.Close()
	})
	return h
}

func stations(ids ...uint16) []slave.Config {
	out := make([]slave.Config, len(ids))
	for i, id := range ids {
		out[i] = slave.Config{Station: id, Registers: []registers.Descriptor{counter.Descriptor(), setpoint.Descriptor()}}
	}
	return out
}

// ---- link fakes ----

// gateLink blocks the first write until gate is closed.
type gateLink struct {
	io.ReadWriter
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (g *gateLink) Write(p []byte) (int, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.gate
	}
	return g.ReadWriter.Write(p)
}

// dropLink swallows the first drop writes.
type dropLink struct {
	io.ReadWriter
	drop atomic.Int32
}

func (d *dropLink) Write(p []byte) (int, error) {
	if d.drop.Add(-1) >= 0 {
		return len(p), nil
	}
	return d.ReadWriter.Write(p)
}

// holdLink delays the first telegram until the second is written.
type holdLink struct {
	io.ReadWriter
	mu   sync.Mutex
	n    int
	held []byte
}

func (h *holdLink) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.n++
	if h.n == 1 {
		h.held = append([]byte(nil), p...)
		return len(p), nil
	}
	if h.held != nil {
		buf := append(h.held, p...)
		h.held = nil
		if _, err := h.ReadWriter.Write(buf); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return h.ReadWriter.Write(p)
}

// corruptLink flips one trailer bit of the first telegram.
type corruptLink struct {
	io.ReadWriter
	once sync.Once
}

func (c *corruptLink) Write(p []byte) (int, error) {
	c.once.Do(func() {
		p = append([]byte(nil), p...)
		p[len(p)-1] ^= 0x01
	})
	return c.ReadWriter.Write(p)
}

// ---- tests ----

func TestReadWrite_FixedRoundTrip(t *testing.T) {
	h := startChain(t, nil, stations(1, 2, 3)...)
	ctx := context.Background()

	if err := Write(ctx, h.m, Station(2), counter, 0xCAFE); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(ctx, h.m, Station(2), counter)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != 0xCAFE {
		t.Fatalf("expected 0xCAFE, got %#x", got)
	}
	if v, _ := registers.Get(h.slaves[1].Registers(), counter); v != 0xCAFE {
		t.Fatalf("slave register holds %#x", v)
	}
	if v, _ := registers.Get(h.slaves[0].Registers(), counter); v != 0 {
		t.Fatalf("unaddressed slave changed to %#x", v)
	}
}

func TestDo_RepeatedReadsAgree(t *testing.T) {
	h := startChain(t, nil, stations(1, 2)...)
	_ = registers.Set(h.slaves[1].Registers(), counter, 0x01020304)

	for _, addr := range []telegram.Address{
		telegram.Fixed(2, counter.Offset),
		telegram.Positional(1, counter.Offset),
	} {
		var first Reply
		for i := 0; i < 2; i++ {
			rep, err := h.m.Do(context.Background(), Request{Dir: telegram.Read, Addr: addr, Data: make([]byte, 4)})
			if err != nil {
				t.Fatalf("%s read %d: %v", addr, i, err)
			}
			if rep.WKC != 1 {
				t.Fatalf("%s read %d: expected wkc 1, got %d", addr, i, rep.WKC)
			}
			if i == 0 {
				first = rep
				continue
			}
			if !bytes.Equal(rep.Data, first.Data) || !bytes.Equal(rep.Data, []byte{1, 2, 3, 4}) {
				t.Fatalf("%s: reads disagree: % x then % x", addr, first.Data, rep.Data)
			}
		}
	}
	if v, _ := registers.Get(h.slaves[1].Registers(), counter); v != 0x01020304 {
		t.Fatalf("reads changed the register to %#x", v)
	}
}

func TestExchange_ReturnsPreviousValue(t *testing.T) {
	h := startChain(t, nil, stations(1)...)
	_ = registers.Set(h.slaves[0].Registers(), counter, 5)

	old, err := Exchange(context.Background(), h.m, Position(0), counter, 6)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if old != 5 {
		t.Fatalf("expected previous 5, got %d", old)
	}
	if v, _ := registers.Get(h.slaves[0].Registers(), counter); v != 6 {
		t.Fatalf("expected 6 stored, got %d", v)
	}
}

func TestRead_MissingStationIsNoResponse(t *testing.T) {
	h := startChain(t, nil, stations(1, 2)...)

	if _, err := Read(context.Background(), h.m, Station(9), counter); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestRead_DuplicateStationIsConflict(t *testing.T) {
	h := startChain(t, nil, stations(1, 4, 1)...)

	if _, err := Read(context.Background(), h.m, Station(1), counter); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAccess_CheckedBeforeSending(t *testing.T) {
	h := startChain(t, nil, stations(1)...)

	if _, err := Read(context.Background(), h.m, Station(1), setpoint); !errors.Is(err, ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
	if err := Write(context.Background(), h.m, Station(1), registers.Address, 3); !errors.Is(err, ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
	if h.m.Stats().Cycles != 0 {
		t.Fatalf("expected no traffic, got %d cycles", h.m.Stats().Cycles)
	}
}

func TestDo_SlaveRejectionSurfaces(t *testing.T) {
	h := startChain(t, nil, stations(1)...)

	_, err := h.m.Do(context.Background(), Request{
		Dir:  telegram.Write,
		Addr: telegram.Fixed(1, registers.Address.Offset),
		Data: []byte{0, 9},
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestRead_BusySlaveIsRejectedNotMissing(t *testing.T) {
	h := startChain(t, nil, stations(1)...)
	regs := h.slaves[0].Registers()

	g := regs.Acquire()
	_, err := Read(context.Background(), h.m, Station(1), counter)
	g.Release()
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected while the guard is held, got %v", err)
	}

	code, err := Read(context.Background(), h.m, Station(1), registers.Error)
	if err != nil {
		t.Fatalf("Read error register: %v", err)
	}
	if code != registers.ErrorBusy {
		t.Fatalf("expected ErrorBusy, got %d", code)
	}
}

func TestIdentify_ReadsDeviceRegisters(t *testing.T) {
	cfgs := stations(7, 8)
	for i, model := range []string{"UC-IO8", "UC-AI4"} {
		dev, err := registers.NewDeviceInfo(model, "B", "1.4.0", "SN00"+string(rune('1'+i)))
		if err != nil {
			t.Fatalf("NewDeviceInfo: %v", err)
		}
		cfgs[i].Device = dev
	}
	h := startChain(t, nil, cfgs...)

	nodes, err := Identify(context.Background(), h.m)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Station != 7 || nodes[0].Device.Model.String() != "UC-IO8" || nodes[0].Device.Serial.String() != "SN001" {
		t.Fatalf("unexpected first node %d %s", nodes[0].Station, nodes[0].Device)
	}
	if nodes[1].Position != 1 || nodes[1].Station != 8 || nodes[1].Device.Model.String() != "UC-AI4" {
		t.Fatalf("unexpected second node %d %s", nodes[1].Station, nodes[1].Device)
	}
}

func TestEnumerate_ReturnsStationsInChainOrder(t *testing.T) {
	h := startChain(t, nil, stations(3, 1, 2)...)

	got, err := Enumerate(context.Background(), h.m)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("expected [3 1 2], got %v", got)
	}
}

func TestEnumerate_EmptyChain(t *testing.T) {
	h := startChain(t, nil)

	got, err := Enumerate(context.Background(), h.m)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty chain, got %v (%v)", got, err)
	}
}

func TestLogical_MergesPartialWindows(t *testing.T) {
	cfgs := []slave.Config{
		{Station: 1, Windows: []addressing.Window{{Logical: 0x1000, Offset: registers.User, Length: 2, Access: registers.ReadOnly}}},
		{Station: 2, Windows: []addressing.Window{{Logical: 0x1002, Offset: registers.User, Length: 2, Access: registers.ReadOnly}}},
	}
	h := startChain(t, nil, cfgs...)
	_, _ = h.slaves[0].Registers().WriteAt([]byte{0x12, 0x34}, registers.User)
	_, _ = h.slaves[1].Registers().WriteAt([]byte{0x56, 0x78}, registers.User)

	chain := []addressing.Identity{h.slaves[0].Identity(), h.slaves[1].Identity()}
	policy := Expected(chain, position)
	if policy != Exactly(2) {
		t.Fatalf("expected exactly(2), got %s", policy)
	}

	res, err := ReadLogical(context.Background(), h.m, position, policy)
	if err != nil {
		t.Fatalf("ReadLogical: %v", err)
	}
	if res.Value != 0x12345678 || res.WKC != 2 || !res.Complete {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := ReadLogical(context.Background(), h.m, position, Exactly(3)); !errors.Is(err, ErrCount) {
		t.Fatalf("expected ErrCount, got %v", err)
	}
}

func TestLogical_DisagreementIsAmbiguous(t *testing.T) {
	window := []addressing.Window{{Logical: 0x1000, Offset: registers.User, Length: 4, Access: registers.ReadOnly}}
	h := startChain(t, nil,
		slave.Config{Station: 1, Windows: window},
		slave.Config{Station: 2, Windows: window},
	)
	_, _ = h.slaves[0].Registers().WriteAt([]byte{0, 0, 0, 1}, registers.User)
	_, _ = h.slaves[1].Registers().WriteAt([]byte{0, 0, 0, 2}, registers.User)

	if _, err := ReadLogical(context.Background(), h.m, position, Any()); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestLogical_NoWindowIsNoResponse(t *testing.T) {
	h := startChain(t, nil, stations(1)...)

	res, err := ReadLogical(context.Background(), h.m, position, Any())
	if !errors.Is(err, ErrNoResponse) || res.WKC != 0 {
		t.Fatalf("expected ErrNoResponse with wkc 0, got %v %+v", err, res)
	}
}

func TestLogical_WriteReachesEverySlave(t *testing.T) {
	out := registers.NewLogical[uint16](0x2000, registers.WriteOnly)
	window := []addressing.Window{{Logical: 0x2000, Offset: registers.User, Length: 2, Access: registers.WriteOnly}}
	h := startChain(t, nil,
		slave.Config{Station: 1, Windows: window},
		slave.Config{Station: 2, Windows: window},
	)

	res, err := WriteLogical(context.Background(), h.m, out, 0x0102, Exactly(2))
	if err != nil {
		t.Fatalf("WriteLogical: %v", err)
	}
	if res.WKC != 2 {
		t.Fatalf("expected wkc 2, got %d", res.WKC)
	}
	for i, s := range h.slaves {
		got := make([]byte, 2)
		_, _ = s.Registers().ReadAt(got, registers.User)
		if got[0] != 1 || got[1] != 2 {
			t.Fatalf("slave %d holds % x", i, got)
		}
	}
}

func TestCycle_BatchesQueuedRequests(t *testing.T) {
	gl := &gateLink{entered: make(chan struct{}), gate: make(chan struct{})}
	h := startChain(t, func(rw io.ReadWriter) io.ReadWriter { gl.ReadWriter = rw; return gl }, stations(1)...)
	ctx := context.Background()

	errs := make(chan error, 11)
	read := func() {
		_, err := Read(ctx, h.m, Station(1), counter)
		errs <- err
	}

	go read()
	<-gl.entered

	for i := 0; i < 10; i++ {
		go read()
	}
	deadline := time.Now().Add(time.Second)
	for len(h.m.queue) < 10 {
		if time.Now().After(deadline) {
			t.Fatalf("requests never queued")
		}
		time.Sleep(time.Millisecond)
	}
	close(gl.gate)

	for i := 0; i < 11; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if st := h.m.Stats(); st.Cycles != 2 || st.Datagrams != 11 {
		t.Fatalf("expected 11 datagrams in 2 cycles, got %+v", st)
	}
}

func TestCycle_TimeoutFailsOnceAndEngineContinues(t *testing.T) {
	dl := &dropLink{}
	dl.drop.Store(1)
	h := startChain(t, func(rw io.ReadWriter) io.ReadWriter { dl.ReadWriter = rw; return dl }, stations(1)...)
	ctx := context.Background()

	if _, err := Read(ctx, h.m, Station(1), counter); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if _, err := Read(ctx, h.m, Station(1), counter); err != nil {
		t.Fatalf("expected engine to recover, got %v", err)
	}
	if h.m.Stats().Timeouts != 1 {
		t.Fatalf("expected one timeout, got %d", h.m.Stats().Timeouts)
	}
}

func TestCycle_LateTelegramIsDiscardedAsStale(t *testing.T) {
	hl := &holdLink{}
	h := startChain(t, func(rw io.ReadWriter) io.ReadWriter { hl.ReadWriter = rw; return hl }, stations(1)...)
	ctx := context.Background()
	_ = registers.Set(h.slaves[0].Registers(), counter, 77)

	if _, err := Read(ctx, h.m, Station(1), counter); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	got, err := Read(ctx, h.m, Station(1), counter)
	if err != nil || got != 77 {
		t.Fatalf("expected 77, got %d (%v)", got, err)
	}
	if h.m.Stats().Stale != 1 {
		t.Fatalf("expected one stale telegram, got %d", h.m.Stats().Stale)
	}
}

func TestCycle_CorruptionSurvivesTheChain(t *testing.T) {
	cl := &corruptLink{}
	h := startChain(t, func(rw io.ReadWriter) io.ReadWriter { cl.ReadWriter = rw; return cl }, stations(1, 2)...)
	ctx := context.Background()

	if _, err := Read(ctx, h.m, Station(2), counter); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout for corrupt telegram, got %v", err)
	}
	if _, err := Read(ctx, h.m, Station(2), counter); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if h.m.Stats().Corrupt != 1 {
		t.Fatalf("expected one corrupt telegram, got %d", h.m.Stats().Corrupt)
	}
	for i, s := range h.slaves {
		if s.Stats().Integrity != 1 {
			t.Fatalf("slave %d: expected one integrity error, got %d", i, s.Stats().Integrity)
		}
	}
}

func TestDo_CanceledCallerGetsCause(t *testing.T) {
	h := startChain(t, nil, stations(1)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Read(ctx, h.m, Station(1), counter); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := Read(context.Background(), h.m, Station(1), counter); err != nil {
		t.Fatalf("engine must keep serving, got %v", err)
	}
}

func TestRun_TransportFailureStopsEngine(t *testing.T) {
	h := startChain(t, nil, stations(1)...)

	_ = h.ring.Close()

	select {
	case err := <-h.runErr:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}

	if _, err := Read(context.Background(), h.m, Station(1), counter); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRead_NeverTornByApplicationWrites(t *testing.T) {
	h := startChain(t, nil, stations(1)...)
	regs := h.slaves[0].Registers()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := uint32(0xAAAAAAAA)
			if i%2 == 1 {
				v = 0x55555555
			}
			_ = registers.Set(regs, counter, v)
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	served := 0
	for i := 0; i < 200; i++ {
		v, err := Read(context.Background(), h.m, Station(1), counter)
		if err != nil {
			// the slave may miss the guard under contention and refuse
			if errors.Is(err, ErrRejected) {
				continue
			}
			t.Fatalf("read %d: %v", i, err)
		}
		served++
		if v != 0xAAAAAAAA && v != 0x55555555 && v != 0 {
			t.Fatalf("torn read %#08x", v)
		}
	}
	if served < 100 {
		t.Fatalf("expected at least 100 of 200 reads served, got %d", served)
	}
}

func TestCode_MapsErrorClasses(t *testing.T) {
	cases := []struct {
		err  error
		want uint16
	}{
		{nil, 0},
		{errors.New("x"), 1},
		{ErrTimeout, 3},
		{errors.Join(errors.New("ctx"), ErrAmbiguous), 7},
	}
	for _, c := range cases {
		if got := Code(c.err); got != c.want {
			t.Fatalf("Code(%v): expected %d, got %d", c.err, c.want, got)
		}
	}
}
