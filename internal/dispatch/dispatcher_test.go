package dispatch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chesschat/chesschat-bot/internal/engine"
	"github.com/chesschat/chesschat-bot/internal/msgcat"
	"github.com/chesschat/chesschat-bot/internal/msglog"
	"github.com/chesschat/chesschat-bot/internal/presenter"
	"github.com/chesschat/chesschat-bot/internal/registry"
	"github.com/chesschat/chesschat-bot/internal/relay"
	"github.com/chesschat/chesschat-bot/internal/render"
	"github.com/chesschat/chesschat-bot/internal/stats"
)

// outSink records everything the dispatcher sends, in order.
type outSink struct {
	mu     sync.Mutex
	texts  []string
	images int
}

func (o *outSink) sendMessage(_ context.Context, _ string, message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, message)
	return nil
}

func (o *outSink) sendImage(_ context.Context, _ string, png []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(png) > 0 {
		o.images++
	}
	return nil
}

func (o *outSink) all() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.texts, "\n")
}

func (o *outSink) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.texts)
}

func (o *outSink) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = nil
	o.images = 0
}

type fixture struct {
	disp   *Dispatcher
	reg    *registry.Registry
	ledger *stats.Ledger
	sink   *outSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, render.NewSVGBoardRenderer())
}

func newFixtureWith(t *testing.T, renderer render.BoardRenderer) *fixture {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	sink := &outSink{}
	reg := registry.New()
	ledger := stats.NewLedger()
	disp := New(
		reg,
		ledger,
		msglog.New(100),
		cat,
		renderer,
		presenter.New(sink.sendMessage, sink.sendImage),
		nil,
		"chessbot",
	)
	return &fixture{disp: disp, reg: reg, ledger: ledger, sink: sink}
}

func event(chat, sender, name, text string) *relay.Event {
	return &relay.Event{ChatID: chat, SenderID: sender, SenderName: name, Text: text}
}

func (f *fixture) send(t *testing.T, chat, sender, name, text string) {
	t.Helper()
	f.disp.HandleEvent(context.Background(), event(chat, sender, name, text))
}

func (f *fixture) expect(t *testing.T, substr string) {
	t.Helper()
	if !strings.Contains(f.sink.all(), substr) {
		t.Fatalf("replies missing %q:\n%s", substr, f.sink.all())
	}
}

func TestCreateJoinMoveDrawScenario(t *testing.T) {
	f := newFixture(t)

	f.send(t, "C1", "a", "Alice", "create white")
	f.expect(t, "Chess match created. Alice is playing as White.")

	f.send(t, "C1", "b", "Bob", "join")
	f.expect(t, "Alice (W) versus Bob (B)")
	f.expect(t, "Alice (White) to move.")
	if f.sink.images != 1 {
		t.Fatalf("expected one board image after join, got %d", f.sink.images)
	}

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "e4") // bare notation
	f.expect(t, "Bob (Black) to move.")
	if f.sink.images != 1 {
		t.Fatalf("expected board image after move, got %d", f.sink.images)
	}

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "offerdraw")
	f.expect(t, "Bob (Black) offers a draw.")

	// Bob's own next move cancels the outstanding offer with a notice.
	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "e5")
	f.expect(t, "Draw offer cancelled.")
	f.expect(t, "Alice (White) to move.")
}

func TestMoveKeywordAndNormalization(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.sink.reset()

	f.send(t, "C1", "a", "Alice", "/MOVE@ChessBot e4")
	f.expect(t, "Bob (Black) to move.")

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "Move e7 e5")
	f.expect(t, "Alice (White) to move.")
}

func TestPreconditionReplies(t *testing.T) {
	f := newFixture(t)

	f.send(t, "C1", "a", "Alice", "join")
	f.expect(t, "There is no chess match going on.")

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "move e4")
	f.expect(t, "There is no chess match going on.")

	f.send(t, "C1", "a", "Alice", "create white")
	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "show")
	f.expect(t, "Game still lacks another player.")

	// Draw and resignation commands are also premature before the join.
	for _, text := range []string{"offerdraw", "claimdraw", "resign"} {
		f.sink.reset()
		f.send(t, "C1", "a", "Alice", text)
		f.expect(t, "Game still lacks another player.")
	}
	if f.reg.Get("C1") == nil {
		t.Fatal("waiting session should survive premature commands")
	}

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "create black")
	f.expect(t, "There is already a chess match going on.")

	f.send(t, "C1", "b", "Bob", "join")
	f.sink.reset()
	f.send(t, "C1", "c", "Carol", "move e4")
	f.expect(t, "You are not involved in the chess match.")

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "move e5")
	f.expect(t, "It's not your turn.")

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "move Ke2")
	f.expect(t, "Ke2 is not a valid move.")

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "rejectdraw")
	f.expect(t, "There is no draw offer to reject.")

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "claimdraw")
	f.expect(t, "Current match situation does not warrant a draw.")
}

func TestCreateUsage(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"create", "create purple", "create white extra"} {
		f.sink.reset()
		f.send(t, "C1", "a", "Alice", text)
		f.expect(t, "Incorrect usage.")
	}
	if f.reg.Len() != 0 {
		t.Fatal("bad create mutated the registry")
	}
}

func TestBareChatterIgnored(t *testing.T) {
	f := newFixture(t)

	// No session at all: nothing comes back.
	f.send(t, "C1", "a", "Alice", "good morning everyone")
	f.send(t, "C1", "a", "Alice", "e4")
	if f.sink.count() != 0 {
		t.Fatalf("chatter drew replies: %s", f.sink.all())
	}

	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.sink.reset()

	// Live session, but the token is not a legal move: still silent.
	f.send(t, "C1", "a", "Alice", "hello")
	f.send(t, "C1", "c", "Carol", "nonsense")
	if f.sink.count() != 0 {
		t.Fatalf("chatter drew replies: %s", f.sink.all())
	}
}

func TestRejectDrawByOfferee(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.send(t, "C1", "a", "Alice", "offerdraw")

	// The offerer cannot reject their own offer.
	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "rejectdraw")
	f.expect(t, "There is no draw offer to reject.")

	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "rejectdraw")
	f.expect(t, "Draw offer cancelled by Bob (Black).")
}

func TestCheckmateConcludesMatch(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")

	f.send(t, "C1", "a", "Alice", "f3")
	f.send(t, "C1", "b", "Bob", "e5")
	f.send(t, "C1", "a", "Alice", "g4")
	f.sink.reset()
	f.send(t, "C1", "b", "Bob", "Qh4")

	f.expect(t, "Checkmate!")
	f.expect(t, "Black wins! Alice (W) versus Bob (B) : 0-1")
	if f.reg.Get("C1") != nil {
		t.Fatal("concluded session still registered")
	}
	if line, ok := f.ledger.StatsOf("b"); !ok || line.Wins != 1 {
		t.Fatalf("winner not credited: %+v ok=%v", line, ok)
	}
	if line, ok := f.ledger.StatsOf("a"); !ok || line.Losses != 1 {
		t.Fatalf("loser not debited: %+v ok=%v", line, ok)
	}

	// The chat is free for a fresh match.
	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "create black")
	f.expect(t, "Chess match created. Alice is playing as Black.")
}

// gateRenderer serves placeholder images and, once armed, parks the next
// render call until released. It lets a test hold a handler between the
// session unlock and the rest of its terminal sequence.
type gateRenderer struct {
	armed    atomic.Bool
	entered  chan struct{}
	released chan struct{}
}

func newGateRenderer() *gateRenderer {
	return &gateRenderer{entered: make(chan struct{}), released: make(chan struct{})}
}

func (g *gateRenderer) RenderPNG(context.Context, engine.Layout) ([]byte, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.released
	}
	return []byte("\x89PNG"), nil
}

// A match-ending move releases the session lock before rendering the final
// board. A command landing in that window must see the match as concluded:
// the outcome is attributed once and announced once.
func TestConcurrentResignDuringMateConclusion(t *testing.T) {
	gate := newGateRenderer()
	f := newFixtureWith(t, gate)

	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.send(t, "C1", "a", "Alice", "f3")
	f.send(t, "C1", "b", "Bob", "e5")
	f.send(t, "C1", "a", "Alice", "g4")

	gate.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.send(t, "C1", "b", "Bob", "Qh4")
	}()
	<-gate.entered

	// The mating handler is parked mid-render; the loser resigns before the
	// result has been attributed or announced.
	f.send(t, "C1", "a", "Alice", "resign")
	f.expect(t, "There is no chess match going on.")

	close(gate.released)
	<-done

	if line, ok := f.ledger.StatsOf("b"); !ok || line.Wins != 1 || line.Losses != 0 {
		t.Fatalf("winner attributed wrong: %+v", line)
	}
	if line, ok := f.ledger.StatsOf("a"); !ok || line.Losses != 1 || line.Wins != 0 {
		t.Fatalf("loser attributed wrong: %+v", line)
	}
	if got := strings.Count(f.sink.all(), "Black wins!"); got != 1 {
		t.Fatalf("result announced %d times:\n%s", got, f.sink.all())
	}
}

func TestResignConcludesMatch(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.sink.reset()

	// Resignation is allowed off turn.
	f.send(t, "C1", "b", "Bob", "resign")
	f.expect(t, "Bob (Black) resigns!")
	f.expect(t, "White wins! Alice (W) versus Bob (B) : 1-0")
	if f.reg.Get("C1") != nil {
		t.Fatal("concluded session still registered")
	}
}

func TestSoloPlay(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "a", "Alice", "join")
	f.expect(t, "Alice (W) versus Alice (B)")

	// One identity plays both sides; turn ownership always resolves to it.
	f.send(t, "C1", "a", "Alice", "e4")
	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "e5")
	f.expect(t, "Alice (White) to move.")

	// Solo draw offer is claimable by the same identity.
	f.send(t, "C1", "a", "Alice", "offerdraw")
	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "claimdraw")
	f.expect(t, "It's a draw! Alice (W) versus Alice (B) : 0.5-0.5")
	if line, ok := f.ledger.StatsOf("a"); !ok || line.Draws != 2 {
		t.Fatalf("solo draw should count both seats: %+v", line)
	}
}

func TestStatsCommand(t *testing.T) {
	f := newFixture(t)

	f.send(t, "C1", "a", "Alice", "stats")
	f.expect(t, "You have not completed any games with chessbot.")

	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C1", "b", "Bob", "join")
	f.send(t, "C1", "b", "Bob", "resign")

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "stats")
	f.expect(t, "Alice: 1 wins, 0 draws, 0 losses.")
}

func TestHelpAndStartSheets(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "/help")
	f.expect(t, "Allowed commands:")

	f.sink.reset()
	f.send(t, "C1", "a", "Alice", "start")
	f.expect(t, "chessbot")
}

func TestIndependentChats(t *testing.T) {
	f := newFixture(t)
	f.send(t, "C1", "a", "Alice", "create white")
	f.send(t, "C2", "a", "Alice", "create white")
	if f.reg.Len() != 2 {
		t.Fatalf("expected two live sessions, got %d", f.reg.Len())
	}
	f.send(t, "C1", "b", "Bob", "join")
	f.sink.reset()
	f.send(t, "C2", "c", "Carol", "show")
	f.expect(t, "Game still lacks another player.")
}
