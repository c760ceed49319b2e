package irc

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	ncerr "minircd/internal/errors"
	"minircd/internal/metrics"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestClient("a")
	b, _ := newTestClient("b")

	r.Add(a)
	r.Add(b)
	r.Add(a) // duplicate pointer is ignored
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	if !r.Remove(a) {
		t.Error("Remove(a) = false, want true")
	}
	if registered(r, a) {
		t.Error("a still registered after Remove")
	}
	if !registered(r, b) {
		t.Error("b lost by Remove(a)")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RemoveAbsentIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestClient("a")
	b, _ := newTestClient("b")
	r.Add(a)

	if r.Remove(b) {
		t.Error("Remove of absent client reported true")
	}
	if r.Remove(b) {
		t.Error("second Remove of absent client reported true")
	}
	if r.Len() != 1 || !registered(r, a) {
		t.Error("registry corrupted by removing an absent client")
	}

	r.Remove(a)
	if r.Remove(a) {
		t.Error("removing twice reported true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_RemoveByIdentity(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestClient("same")
	b, _ := newTestClient("same")
	a.SetNick("twin")
	b.SetNick("twin")
	r.Add(a)
	r.Add(b)

	r.Remove(b)
	if !registered(r, a) || registered(r, b) {
		t.Error("Remove matched by value instead of identity")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestClient("a")
	r.Add(a)

	snap := r.Snapshot()
	b, _ := newTestClient("b")
	r.Add(b)

	if len(snap) != 1 || snap[0] != a {
		t.Errorf("snapshot changed after Add: %v", snap)
	}
}

func TestRegistry_BroadcastOneLinePerClient(t *testing.T) {
	r := NewRegistry(nil)
	const n = 5
	recs := make([]*recorder, n)
	for i := 0; i < n; i++ {
		c, rec := newTestClient(fmt.Sprintf("c%d", i))
		c.SetNick(fmt.Sprintf("nick%d", i))
		r.Add(c)
		recs[i] = rec
	}

	delivered, failures := r.Broadcast("sender", "hi there")
	if delivered != n || len(failures) != 0 {
		t.Fatalf("delivered=%d failures=%v, want %d/none", delivered, failures, n)
	}
	for i, rec := range recs {
		writes := rec.Writes()
		want := fmt.Sprintf(":sender PRIVMSG nick%d :hi there\r\n", i)
		if len(writes) != 1 || writes[0] != want {
			t.Errorf("client %d got %q, want [%q]", i, writes, want)
		}
	}
}

func TestRegistry_BroadcastEmpty(t *testing.T) {
	r := NewRegistry(nil)
	delivered, failures := r.Broadcast("x", "y")
	if delivered != 0 || failures != nil {
		t.Errorf("delivered=%d failures=%v", delivered, failures)
	}
}

func TestRegistry_BroadcastSurvivesFailingRecipient(t *testing.T) {
	collector := metrics.New()
	r := NewRegistry(collector)

	good1, rec1 := newTestClient("good1")
	bad := NewClient(failingWriter{}, "10.0.0.9:4000")
	good2, rec2 := newTestClient("good2")
	r.Add(good1)
	r.Add(bad)
	r.Add(good2)

	delivered, failures := r.Broadcast("s", "m")
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want 1", failures)
	}
	var ne *ncerr.NetworkError
	if !ncerr.As(failures[0], &ne) || ne.Op != "write" || ne.Addr != "10.0.0.9:4000" {
		t.Errorf("failure = %v, want write NetworkError for bad client", failures[0])
	}
	if !ncerr.Is(failures[0], errBrokenPipe) {
		t.Errorf("failure does not wrap the write error: %v", failures[0])
	}
	if len(rec1.Writes()) != 1 || len(rec2.Writes()) != 1 {
		t.Error("healthy recipients did not each get one line")
	}

	if collector.MessagesRelayed() != 2 || collector.RelayFailures() != 1 {
		t.Errorf("metrics relayed=%d failed=%d, want 2/1",
			collector.MessagesRelayed(), collector.RelayFailures())
	}
	wantBytes := int64(2 * len(FormatPrivmsg("s", "Anonymous", "m")))
	if collector.TotalBytesOut() != wantBytes {
		t.Errorf("bytes out = %d, want %d", collector.TotalBytesOut(), wantBytes)
	}
}

func TestRegistry_BroadcastSkipsClosedClient(t *testing.T) {
	r := NewRegistry(nil)
	live, liveRec := newTestClient("live")
	gone, goneRec := newTestClient("gone")
	r.Add(live)
	r.Add(gone)

	// A session that ended closes its client before the registry forgets
	// it; a broadcast that already took its snapshot must not write.
	gone.Close()

	delivered, failures := r.Broadcast("s", "m")
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if len(failures) != 1 || !ncerr.Is(failures[0], ncerr.ErrClientClosed) {
		t.Errorf("failures = %v, want one ErrClientClosed", failures)
	}
	if len(goneRec.Writes()) != 0 {
		t.Errorf("closed client received %q", goneRec.String())
	}
	if len(liveRec.Writes()) != 1 {
		t.Error("live client missed the message")
	}
}

func TestRegistry_ConcurrentAddRemoveBroadcast(t *testing.T) {
	r := NewRegistry(nil)
	stable, stableRec := newTestClient("stable")
	r.Add(stable)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c, _ := newTestClient(fmt.Sprintf("churn%d", i))
			r.Add(c)
			r.Remove(c)
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Broadcast("s", fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	if r.Len() != 1 || !registered(r, stable) {
		t.Fatalf("registry = %d clients, want only the stable one", r.Len())
	}
	if got := len(stableRec.Writes()); got != 20 {
		t.Errorf("stable client got %d lines, want 20", got)
	}
}

func TestRegistry_ConcurrentBroadcastsAllDelivered(t *testing.T) {
	r := NewRegistry(nil)
	a, recA := newTestClient("a")
	b, recB := newTestClient("b")
	a.SetNick("a")
	b.SetNick("b")
	r.Add(a)
	r.Add(b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.Broadcast("a", "from a") }()
	go func() { defer wg.Done(); r.Broadcast("b", "from b") }()
	wg.Wait()

	for name, rec := range map[string]*recorder{"a": recA, "b": recB} {
		got := rec.Writes()
		sort.Strings(got)
		want := []string{
			":a PRIVMSG " + name + " :from a\r\n",
			":b PRIVMSG " + name + " :from b\r\n",
		}
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("%s got %q, want %q", name, got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := FormatPrivmsg("alice!au", "bob", "hi :)"); got != ":alice!au PRIVMSG bob :hi :)\r\n" {
		t.Errorf("FormatPrivmsg = %q", got)
	}
	if got := FormatWelcome("minircd", "minircd"); got != ":minircd 001 Welcome to minircd\r\n" {
		t.Errorf("FormatWelcome = %q", got)
	}
}
