package clearing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/xraph/clearing"
	"github.com/xraph/clearing/account"
	"github.com/xraph/clearing/credex"
	"github.com/xraph/clearing/day"
	"github.com/xraph/clearing/id"
	"github.com/xraph/clearing/loop"
	"github.com/xraph/clearing/ratefeed"
	"github.com/xraph/clearing/store"
	"github.com/xraph/clearing/store/memory"
	"github.com/xraph/clearing/types"
)

func testRates() ratefeed.Source {
	return ratefeed.NewStatic(map[string]map[string]float64{
		"USD": {"USD": 1, "EUR": 1.25, "GBP": 2, "ZAR": 0.05},
	})
}

// shiftingSource is a rate source whose quotes can be changed mid-test.
type shiftingSource struct {
	quotes map[string]float64
}

func (s *shiftingSource) Current(_ context.Context, _ string, _ []string) (map[string]float64, error) {
	out := make(map[string]float64, len(s.quotes))
	for denom, quote := range s.quotes {
		out[denom] = quote
	}
	return out, nil
}

func (s *shiftingSource) Historical(ctx context.Context, ref string, denoms []string, _ time.Time) (map[string]float64, error) {
	return s.Current(ctx, ref, denoms)
}

// flakyQueueStore fails credex enqueues on demand.
type flakyQueueStore struct {
	store.Store
	failEnqueue bool
}

func (s *flakyQueueStore) EnqueueCredex(ctx context.Context, credexID id.CredexID, acceptedAt time.Time) error {
	if s.failEnqueue {
		return clearing.ErrStoreNotReady
	}
	return s.Store.EnqueueCredex(ctx, credexID, acceptedAt)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine over a fresh memory store with a genesis
// day bootstrapped.
func newTestEngine(t *testing.T, opts ...clearing.Option) (*clearing.Engine, *memory.Store) {
	t.Helper()

	mem := memory.New()
	opts = append([]clearing.Option{
		clearing.WithRateSource(testRates()),
		clearing.WithLogger(quietLogger()),
	}, opts...)
	eng := clearing.New(mem, opts...)

	if err := eng.RunDailyRebasing(context.Background()); err != nil {
		t.Fatalf("bootstrap genesis: %v", err)
	}
	return eng, mem
}

func mustRegister(t *testing.T, eng *clearing.Engine, name string) *account.Account {
	t.Helper()

	a := &account.Account{
		Name:         name,
		Handle:       name,
		Type:         account.TypeHuman,
		DefaultDenom: "USD",
	}
	if err := eng.RegisterAccount(context.Background(), a); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return a
}

func mustIssueAccept(t *testing.T, eng *clearing.Engine, issuer, receiver id.AccountID, amount float64, due *time.Time) *credex.Credex {
	t.Helper()

	ctx := context.Background()
	c, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID:     issuer,
		ReceiverID:   receiver,
		Denomination: "USD",
		Amount:       amount,
		DueDate:      due,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err = eng.AcceptCredex(ctx, c.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return c
}

func daysFromNow(n int) *time.Time {
	d := time.Now().UTC().AddDate(0, 0, n)
	return &d
}

func TestTriangleLoopClears(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")
	c := mustRegister(t, eng, "carol")

	due := daysFromNow(7)
	ab := mustIssueAccept(t, eng, a.ID, b.ID, 10, due)
	bc := mustIssueAccept(t, eng, b.ID, c.ID, 10, due)
	ca := mustIssueAccept(t, eng, c.ID, a.ID, 10, due)

	if err := eng.RunQueueDrain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	for _, credexID := range []id.CredexID{ab.ID, bc.ID, ca.ID} {
		got, err := eng.GetCredex(ctx, credexID)
		if err != nil {
			t.Fatalf("get credex: %v", err)
		}
		if got.Status != credex.StatusCleared {
			t.Errorf("credex %s status = %s, want CLEARED", credexID, got.Status)
		}
		if got.OutstandingAmount != 0 {
			t.Errorf("credex %s outstanding = %v, want 0", credexID, got.OutstandingAmount)
		}
		if !got.ConservationOK() {
			t.Errorf("credex %s violates conservation", credexID)
		}
	}

	anchors, err := eng.ListLoopAnchors(ctx, loop.ListOpts{})
	if err != nil {
		t.Fatalf("list anchors: %v", err)
	}
	if len(anchors) != 1 {
		t.Fatalf("anchors = %d, want 1", len(anchors))
	}
	if !types.EqualWithin(anchors[0].ClearedAmount, 10) {
		t.Errorf("cleared amount = %v, want 10", anchors[0].ClearedAmount)
	}
	if len(anchors[0].Segments) != 3 {
		t.Errorf("anchor segments = %d, want 3", len(anchors[0].Segments))
	}
}

func TestBrokenChainNoMutation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")
	c := mustRegister(t, eng, "carol")

	ab := mustIssueAccept(t, eng, a.ID, b.ID, 10, daysFromNow(5))
	bc := mustIssueAccept(t, eng, b.ID, c.ID, 10, daysFromNow(3))

	if err := eng.RunQueueDrain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	for _, credexID := range []id.CredexID{ab.ID, bc.ID} {
		got, err := eng.GetCredex(ctx, credexID)
		if err != nil {
			t.Fatalf("get credex: %v", err)
		}
		if got.Status != credex.StatusActive {
			t.Errorf("credex %s status = %s, want ACTIVE", credexID, got.Status)
		}
		if !types.EqualWithin(got.OutstandingAmount, 10) {
			t.Errorf("credex %s outstanding = %v, want 10", credexID, got.OutstandingAmount)
		}
	}

	anchors, err := eng.ListLoopAnchors(ctx, loop.ListOpts{})
	if err != nil {
		t.Fatalf("list anchors: %v", err)
	}
	if len(anchors) != 0 {
		t.Errorf("anchors = %d, want 0", len(anchors))
	}
}

func TestPartialClearingConservation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	ab := mustIssueAccept(t, eng, a.ID, b.ID, 10, nil)
	ba := mustIssueAccept(t, eng, b.ID, a.ID, 6, nil)

	if err := eng.RunQueueDrain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	gotAB, _ := eng.GetCredex(ctx, ab.ID)
	gotBA, _ := eng.GetCredex(ctx, ba.ID)

	if gotBA.Status != credex.StatusCleared {
		t.Errorf("B->A status = %s, want CLEARED", gotBA.Status)
	}
	if gotAB.Status != credex.StatusActive {
		t.Errorf("A->B status = %s, want ACTIVE", gotAB.Status)
	}
	if !types.EqualWithin(gotAB.OutstandingAmount, 4) {
		t.Errorf("A->B outstanding = %v, want 4", gotAB.OutstandingAmount)
	}
	if !gotAB.ConservationOK() || !gotBA.ConservationOK() {
		t.Error("conservation violated after partial clearing")
	}
}

func TestSecuredIssueZeroCollateral(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	_, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID:     a.ID,
		ReceiverID:   b.ID,
		Denomination: "USD",
		Amount:       50,
		Secured:      true,
	})

	var authErr *clearing.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
	if authErr.Ceiling != 0 {
		t.Errorf("ceiling = %v, want 0", authErr.Ceiling)
	}
	if authErr.Requested != 50 {
		t.Errorf("requested = %v, want 50", authErr.Requested)
	}
}

func TestDrainSkippedDuringRebase(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")
	c := mustRegister(t, eng, "carol")

	mustIssueAccept(t, eng, a.ID, b.ID, 10, nil)
	mustIssueAccept(t, eng, b.ID, c.ID, 10, nil)
	mustIssueAccept(t, eng, c.ID, a.ID, 10, nil)

	activeDay, err := mem.GetActiveDayNode(ctx)
	if err != nil {
		t.Fatalf("active day: %v", err)
	}
	activeDay.RebasingInProgress = true
	if err := mem.UpdateDayNode(ctx, activeDay); err != nil {
		t.Fatalf("update day: %v", err)
	}

	if err := eng.RunQueueDrain(ctx); err != nil {
		t.Fatalf("drain during rebase should be a silent no-op, got %v", err)
	}

	queued, err := mem.ListQueuedCredexes(ctx, 100)
	if err != nil {
		t.Fatalf("list queued: %v", err)
	}
	if len(queued) != 3 {
		t.Errorf("queued credexes = %d, want 3 (untouched)", len(queued))
	}

	anchors, _ := eng.ListLoopAnchors(ctx, loop.ListOpts{})
	if len(anchors) != 0 {
		t.Errorf("anchors = %d, want 0", len(anchors))
	}
}

func TestAcceptFailsWhenEnqueueFails(t *testing.T) {
	mem := memory.New()
	flaky := &flakyQueueStore{Store: mem}
	eng := clearing.New(flaky,
		clearing.WithRateSource(testRates()),
		clearing.WithLogger(quietLogger()),
	)
	ctx := context.Background()
	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("bootstrap genesis: %v", err)
	}

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	c, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID: a.ID, ReceiverID: b.ID, Denomination: "USD", Amount: 10,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	flaky.failEnqueue = true
	if _, err := eng.AcceptCredex(ctx, c.ID); err == nil {
		t.Fatal("accept succeeded despite failed enqueue")
	}

	// The instrument must be back in pending, unqueued, and off the graph,
	// so nothing holds ACTIVE debt the drain can never reach.
	got, err := eng.GetCredex(ctx, c.ID)
	if err != nil {
		t.Fatalf("get credex: %v", err)
	}
	if got.Status != credex.StatusPendingOffer {
		t.Errorf("status = %s, want PENDING_OFFER", got.Status)
	}
	if got.AcceptedAt != nil {
		t.Error("acceptance time stamped on a reverted credex")
	}
	queued, _ := mem.ListQueuedCredexes(ctx, 10)
	if len(queued) != 0 {
		t.Errorf("queued = %d, want 0", len(queued))
	}
	if eng.Graph().Len() != 0 {
		t.Errorf("graph edges = %d, want 0", eng.Graph().Len())
	}

	// The acceptance still works once the queue recovers.
	flaky.failEnqueue = false
	if _, err := eng.AcceptCredex(ctx, c.ID); err != nil {
		t.Fatalf("accept after recovery: %v", err)
	}
	queued, _ = mem.ListQueuedCredexes(ctx, 10)
	if len(queued) != 1 {
		t.Errorf("queued = %d, want 1", len(queued))
	}
}

func TestTieBreakPrefersLongerCycle(t *testing.T) {
	// Two cycles close over the same anchor edge with the same due date.
	// Returns the anchor's outstanding on the shared edge when the
	// three-segment cycle was netted, which reveals the clearing order.
	run := func(t *testing.T) float64 {
		eng, _ := newTestEngine(t)
		ctx := context.Background()

		a := mustRegister(t, eng, "alice")
		b := mustRegister(t, eng, "bob")
		c := mustRegister(t, eng, "carol")

		due := daysFromNow(7)
		mustIssueAccept(t, eng, b.ID, a.ID, 5, due)
		mustIssueAccept(t, eng, b.ID, c.ID, 5, due)
		mustIssueAccept(t, eng, c.ID, a.ID, 5, due)
		ab := mustIssueAccept(t, eng, a.ID, b.ID, 10, due)

		if err := eng.RunLoopFinder(ctx, ab.ID); err != nil {
			t.Fatalf("loop finder: %v", err)
		}

		anchors, err := eng.ListLoopAnchors(ctx, loop.ListOpts{})
		if err != nil {
			t.Fatalf("list anchors: %v", err)
		}
		if len(anchors) != 2 {
			t.Fatalf("anchors = %d, want 2", len(anchors))
		}

		for _, anchor := range anchors {
			if len(anchor.Segments) != 3 {
				continue
			}
			for _, seg := range anchor.Segments {
				if seg.CredexID == ab.ID {
					return seg.OutstandingBefore
				}
			}
		}
		t.Fatal("no three-segment anchor touching the shared edge")
		return 0
	}

	// The three-segment cycle must be netted first, while the shared edge
	// still carries its full outstanding of 10.
	first := run(t)
	if !types.EqualWithin(first, 10) {
		t.Errorf("shared edge outstanding at long-cycle clearing = %v, want 10", first)
	}

	// Identical input must make the identical choice.
	second := run(t)
	if !types.EqualWithin(second, first) {
		t.Errorf("rerun cleared at %v, first run at %v", second, first)
	}
}

func TestAuthorizationMonotonicity(t *testing.T) {
	foundationID := id.NewAccountID()
	eng, _ := newTestEngine(t, clearing.WithFoundationAccount(foundationID))
	ctx := context.Background()

	foundation := &account.Account{
		ID:           foundationID,
		Name:         "foundation",
		Handle:       "foundation",
		Type:         account.TypeFoundation,
		DefaultDenom: "USD",
	}
	if err := eng.RegisterAccount(ctx, foundation); err != nil {
		t.Fatalf("register foundation: %v", err)
	}

	securer := &account.Account{
		Name:         "securer",
		Handle:       "securer",
		Type:         account.TypeCompany,
		DefaultDenom: "USD",
		AuditedBy:    foundationID,
	}
	if err := eng.RegisterAccount(ctx, securer); err != nil {
		t.Fatalf("register securer: %v", err)
	}
	issuer := mustRegister(t, eng, "issuer")

	secureInbound := func(amount float64) {
		c, err := eng.IssueCredex(ctx, clearing.IssueSpec{
			IssuerID:     securer.ID,
			ReceiverID:   issuer.ID,
			Denomination: "USD",
			Amount:       amount,
			Secured:      true,
		})
		if err != nil {
			t.Fatalf("secured issue: %v", err)
		}
		if _, err := eng.AcceptCredex(ctx, c.ID); err != nil {
			t.Fatalf("accept: %v", err)
		}
	}

	secureInbound(10)
	auth, err := eng.GetSecuredAuthorization(ctx, issuer.ID, "USD")
	if err != nil {
		t.Fatalf("authorization: %v", err)
	}
	if auth.Unbounded {
		t.Fatal("unaudited issuer must not be unbounded")
	}
	if !types.EqualWithin(auth.Securable, 10) {
		t.Errorf("ceiling = %v, want 10", auth.Securable)
	}
	if auth.SecurerID != securer.ID {
		t.Errorf("securer = %s, want %s", auth.SecurerID, securer.ID)
	}

	// More inbound collateral from the same securer never lowers the ceiling.
	secureInbound(5)
	raised, err := eng.GetSecuredAuthorization(ctx, issuer.ID, "USD")
	if err != nil {
		t.Fatalf("authorization: %v", err)
	}
	if raised.Securable < auth.Securable {
		t.Errorf("ceiling dropped from %v to %v", auth.Securable, raised.Securable)
	}
	if !types.EqualWithin(raised.Securable, 15) {
		t.Errorf("ceiling = %v, want 15", raised.Securable)
	}
}

func TestSingleActiveDay(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()

	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("rebase: %v", err)
	}

	days, err := mem.ListDayNodes(ctx, day.ListOpts{})
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("days = %d, want 3", len(days))
	}

	active := 0
	for _, d := range days {
		if d.Active {
			active++
		}
		if d.RebasingInProgress {
			t.Errorf("day %s still flagged rebasing", d.ID)
		}
	}
	if active != 1 {
		t.Errorf("active days = %d, want exactly 1", active)
	}
}

func TestRebasePreservesDisplayValue(t *testing.T) {
	foundationID := id.NewAccountID()
	eng, _ := newTestEngine(t, clearing.WithFoundationAccount(foundationID))
	ctx := context.Background()

	foundation := &account.Account{
		ID:           foundationID,
		Name:         "foundation",
		Handle:       "foundation",
		Type:         account.TypeFoundation,
		DefaultDenom: "USD",
	}
	if err := eng.RegisterAccount(ctx, foundation); err != nil {
		t.Fatalf("register foundation: %v", err)
	}

	// An audited participant pledging 2 USD makes the new CXX value 2.
	participant := &account.Account{
		Name:         "pat",
		Handle:       "pat",
		Type:         account.TypeHuman,
		DefaultDenom: "USD",
		PledgeAmount: 2,
		PledgeDenom:  "USD",
		AuditedBy:    foundationID,
	}
	if err := eng.RegisterAccount(ctx, participant); err != nil {
		t.Fatalf("register participant: %v", err)
	}
	other := mustRegister(t, eng, "olive")

	c := mustIssueAccept(t, eng, participant.ID, other.ID, 10, nil)
	// The memory store hands back the same *Credex it registered, so c
	// aliases the stored record; snapshot pre-rebase values now.
	storedBefore := c.OutstandingAmount
	displayBefore := c.OutstandingAmount / c.Multiplier

	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("rebase: %v", err)
	}

	got, err := eng.GetCredex(ctx, c.ID)
	if err != nil {
		t.Fatalf("get credex: %v", err)
	}
	displayAfter := got.OutstandingAmount / got.Multiplier
	if math.Abs(displayBefore-displayAfter) > types.Tolerance {
		t.Errorf("display value changed: %v -> %v", displayBefore, displayAfter)
	}
	if !got.ConservationOK() {
		t.Error("conservation violated after rescaling")
	}
	if types.EqualWithin(got.OutstandingAmount, storedBefore) {
		t.Error("stored amount unchanged, expected rescale")
	}

	activeDay, err := eng.GetActiveDay(ctx)
	if err != nil {
		t.Fatalf("active day: %v", err)
	}
	if !types.EqualWithin(activeDay.CXXValue, 2) {
		t.Errorf("CXX value = %v, want 2 (mean of one pledge)", activeDay.CXXValue)
	}

	// Both offset settlement credexes were issued and accepted.
	give, err := eng.ListCredexes(ctx, credex.ListOpts{IssuerID: participant.ID, Status: credex.StatusActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	foundGive := false
	for _, sc := range give {
		if sc.Type == credex.TypeOfferingGive && sc.ReceiverID == foundationID {
			foundGive = true
		}
	}
	if !foundGive {
		t.Error("missing pledge settlement credex to foundation")
	}

	receive, err := eng.ListCredexes(ctx, credex.ListOpts{IssuerID: foundationID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	foundReceive := false
	for _, sc := range receive {
		if sc.Type == credex.TypeOfferingReceive && sc.ReceiverID == participant.ID &&
			sc.Denomination == types.DenomCXX {
			foundReceive = true
		}
	}
	if !foundReceive {
		t.Error("missing CXX settlement credex to participant")
	}
}

func TestForeignInstrumentsRepricedOnRebase(t *testing.T) {
	quotes := &shiftingSource{quotes: map[string]float64{
		"USD": 1, "EUR": 1.25, "GBP": 2, "ZAR": 0.05,
	}}
	mem := memory.New()
	eng := clearing.New(mem,
		clearing.WithRateSource(quotes),
		clearing.WithLogger(quietLogger()),
	)
	ctx := context.Background()
	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("bootstrap genesis: %v", err)
	}

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	c, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID:     a.ID,
		ReceiverID:   b.ID,
		Denomination: "EUR",
		Amount:       10,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := eng.AcceptCredex(ctx, c.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !types.EqualWithin(c.Multiplier, 1.25) {
		t.Fatalf("issue-time multiplier = %v, want 1.25", c.Multiplier)
	}
	if !types.EqualWithin(c.OutstandingAmount, 12.5) {
		t.Fatalf("stored outstanding = %v, want 12.5", c.OutstandingAmount)
	}

	// The external EUR quote moves before the next rebase.
	quotes.quotes["EUR"] = 1.5
	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("rebase: %v", err)
	}

	// No confirmed participants, so the CXX value is unchanged; the
	// instrument is repriced to the new day's EUR rate with its face
	// value intact.
	got, err := eng.GetCredex(ctx, c.ID)
	if err != nil {
		t.Fatalf("get credex: %v", err)
	}
	if !types.EqualWithin(got.Multiplier, 1.5) {
		t.Errorf("multiplier = %v, want 1.5 (new day's EUR rate)", got.Multiplier)
	}
	if !types.EqualWithin(got.OutstandingAmount, 15) {
		t.Errorf("stored outstanding = %v, want 15", got.OutstandingAmount)
	}
	display := got.OutstandingAmount / got.Multiplier
	if math.Abs(display-10) > types.Tolerance {
		t.Errorf("display value = %v, want 10", display)
	}
	if !got.ConservationOK() {
		t.Error("conservation violated after repricing")
	}

	// The search graph mirrors the repriced amount.
	edge, ok := eng.Graph().Edge(a.ID.String(), c.ID.String())
	if !ok {
		t.Fatal("repriced credex missing from graph")
	}
	if !types.EqualWithin(edge.Outstanding, 15) {
		t.Errorf("graph outstanding = %v, want 15", edge.Outstanding)
	}
}

func TestRebaseResumesInterruptedRun(t *testing.T) {
	t.Run("reactivates successor after handover crash", func(t *testing.T) {
		eng, mem := newTestEngine(t)
		ctx := context.Background()

		a := mustRegister(t, eng, "alice")
		b := mustRegister(t, eng, "bob")
		c := mustIssueAccept(t, eng, a.ID, b.ID, 10, nil)

		// A crash between deactivating the old day and activating its
		// successor leaves no active day and a flagged mid-pipeline node.
		old, err := mem.GetActiveDayNode(ctx)
		if err != nil {
			t.Fatalf("active day: %v", err)
		}
		successor := day.New(old.Date.AddDate(0, 0, 1), 2, "USD",
			map[string]float64{"USD": 0.5, "EUR": 0.625, "GBP": 1, "ZAR": 0.025})
		successor.RebasingInProgress = true
		successor.RebaseStep = day.StepCreated
		successor.PrevID = old.ID
		if err := mem.CreateDayNode(ctx, successor); err != nil {
			t.Fatalf("create successor: %v", err)
		}
		old.Active = false
		old.NextID = successor.ID
		if err := mem.UpdateDayNode(ctx, old); err != nil {
			t.Fatalf("update old day: %v", err)
		}

		if err := eng.RunDailyRebasing(ctx); err != nil {
			t.Fatalf("resume: %v", err)
		}

		activeDay, err := eng.GetActiveDay(ctx)
		if err != nil {
			t.Fatalf("active day after resume: %v", err)
		}
		if activeDay.ID != successor.ID {
			t.Errorf("active day = %s, want resumed successor %s", activeDay.ID, successor.ID)
		}
		if activeDay.RebaseStep != day.StepDone || activeDay.RebasingInProgress {
			t.Errorf("cursor = %s flagged = %v, want done and cleared",
				activeDay.RebaseStep, activeDay.RebasingInProgress)
		}

		// Rescaled exactly once: USD goes from rate 1 to rate 0.5.
		got, err := eng.GetCredex(ctx, c.ID)
		if err != nil {
			t.Fatalf("get credex: %v", err)
		}
		if !types.EqualWithin(got.OutstandingAmount, 5) {
			t.Errorf("outstanding = %v, want 5 (single rescale)", got.OutstandingAmount)
		}
		if !types.EqualWithin(got.Multiplier, 0.5) {
			t.Errorf("multiplier = %v, want 0.5", got.Multiplier)
		}
	})

	t.Run("settled participants are not re-issued", func(t *testing.T) {
		foundationID := id.NewAccountID()
		eng, mem := newTestEngine(t, clearing.WithFoundationAccount(foundationID))
		ctx := context.Background()

		foundation := &account.Account{
			ID:           foundationID,
			Name:         "foundation",
			Handle:       "foundation",
			Type:         account.TypeFoundation,
			DefaultDenom: "USD",
		}
		if err := eng.RegisterAccount(ctx, foundation); err != nil {
			t.Fatalf("register foundation: %v", err)
		}
		participant := &account.Account{
			Name:         "pat",
			Handle:       "pat",
			Type:         account.TypeHuman,
			DefaultDenom: "USD",
			PledgeAmount: 2,
			PledgeDenom:  "USD",
			AuditedBy:    foundationID,
		}
		if err := eng.RegisterAccount(ctx, participant); err != nil {
			t.Fatalf("register participant: %v", err)
		}

		// A crash after settlement but before the final cursor write
		// leaves the active successor flagged at the settling step with
		// the participant already recorded as settled.
		old, err := mem.GetActiveDayNode(ctx)
		if err != nil {
			t.Fatalf("active day: %v", err)
		}
		successor := day.New(old.Date.AddDate(0, 0, 1), 2, "USD",
			map[string]float64{"USD": 0.5})
		successor.Active = true
		successor.RebasingInProgress = true
		successor.RebaseStep = day.StepSettling
		successor.PrevID = old.ID
		successor.MarkSettled(participant.ID.String())
		old.Active = false
		old.NextID = successor.ID
		if err := mem.UpdateDayNode(ctx, old); err != nil {
			t.Fatalf("update old day: %v", err)
		}
		if err := mem.CreateDayNode(ctx, successor); err != nil {
			t.Fatalf("create successor: %v", err)
		}

		if err := eng.RunDailyRebasing(ctx); err != nil {
			t.Fatalf("resume: %v", err)
		}

		activeDay, err := eng.GetActiveDay(ctx)
		if err != nil {
			t.Fatalf("active day after resume: %v", err)
		}
		if activeDay.RebaseStep != day.StepDone || activeDay.RebasingInProgress {
			t.Errorf("cursor = %s flagged = %v, want done and cleared",
				activeDay.RebaseStep, activeDay.RebasingInProgress)
		}

		issued, err := eng.ListCredexes(ctx, credex.ListOpts{IssuerID: participant.ID})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, sc := range issued {
			if sc.Type == credex.TypeOfferingGive {
				t.Errorf("settlement credex re-issued for an already settled participant")
			}
		}
	})
}

func TestOverdueDefaultsOnRebase(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	past := time.Now().UTC().Add(-24 * time.Hour)
	c := mustIssueAccept(t, eng, a.ID, b.ID, 10, &past)

	if err := eng.RunDailyRebasing(ctx); err != nil {
		t.Fatalf("rebase: %v", err)
	}

	got, err := eng.GetCredex(ctx, c.ID)
	if err != nil {
		t.Fatalf("get credex: %v", err)
	}
	if got.Status != credex.StatusDefaulted {
		t.Errorf("status = %s, want DEFAULTED", got.Status)
	}
	if got.OutstandingAmount != 0 {
		t.Errorf("outstanding = %v, want 0", got.OutstandingAmount)
	}
	if !types.EqualWithin(got.DefaultedAmount, got.InitialAmount) {
		t.Errorf("defaulted = %v, want %v", got.DefaultedAmount, got.InitialAmount)
	}
	if !got.ConservationOK() {
		t.Error("conservation violated after default")
	}

	// Defaulted debt can no longer participate in loops.
	if eng.Graph().Len() != 0 {
		t.Errorf("graph edges = %d, want 0", eng.Graph().Len())
	}
}

func TestDeclineAndCancel(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	offered, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID: a.ID, ReceiverID: b.ID, Denomination: "USD", Amount: 5,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := eng.DeclineCredex(ctx, offered.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got, _ := eng.GetCredex(ctx, offered.ID)
	if got.Status != credex.StatusDeclined {
		t.Errorf("status = %s, want DECLINED", got.Status)
	}
	if _, err := eng.AcceptCredex(ctx, offered.ID); !errors.Is(err, clearing.ErrCredexNotPending) {
		t.Errorf("accept after decline: err = %v, want ErrCredexNotPending", err)
	}

	withdrawn, err := eng.IssueCredex(ctx, clearing.IssueSpec{
		IssuerID: a.ID, ReceiverID: b.ID, Denomination: "USD", Amount: 5,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := eng.CancelCredex(ctx, withdrawn.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = eng.GetCredex(ctx, withdrawn.ID)
	if got.Status != credex.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestIssueValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustRegister(t, eng, "alice")
	b := mustRegister(t, eng, "bob")

	tests := []struct {
		name string
		spec clearing.IssueSpec
		want error
	}{
		{"missing issuer", clearing.IssueSpec{ReceiverID: b.ID, Denomination: "USD", Amount: 5}, nil},
		{"missing receiver", clearing.IssueSpec{IssuerID: a.ID, Denomination: "USD", Amount: 5}, nil},
		{"self issue", clearing.IssueSpec{IssuerID: a.ID, ReceiverID: a.ID, Denomination: "USD", Amount: 5}, clearing.ErrSelfIssue},
		{"zero amount", clearing.IssueSpec{IssuerID: a.ID, ReceiverID: b.ID, Denomination: "USD", Amount: 0}, clearing.ErrNonPositiveAmount},
		{"negative amount", clearing.IssueSpec{IssuerID: a.ID, ReceiverID: b.ID, Denomination: "USD", Amount: -3}, clearing.ErrNonPositiveAmount},
		{"unknown denom", clearing.IssueSpec{IssuerID: a.ID, ReceiverID: b.ID, Denomination: "XWX", Amount: 5}, clearing.ErrUnknownDenom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.IssueCredex(ctx, tt.spec)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want == nil {
				var vErr *clearing.ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("err = %v, want ValidationError", err)
				}
			}
		})
	}
}

func TestStartRunsBackgroundWorkers(t *testing.T) {
	mem := memory.New()
	eng := clearing.New(mem,
		clearing.WithRateSource(testRates()),
		clearing.WithLogger(quietLogger()),
		clearing.WithDrainInterval(5*time.Millisecond),
		clearing.WithRebaseInterval(5*time.Millisecond),
	)
	ctx := context.Background()

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The rebase worker bootstraps the genesis day on its first tick.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := eng.GetActiveDay(ctx); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rebase worker never bootstrapped a genesis day")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestLoopFinderTermination(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// A dense mesh of mutual debt; the drain must reach a fixpoint.
	accounts := make([]*account.Account, 4)
	names := []string{"n0", "n1", "n2", "n3"}
	for i := range accounts {
		accounts[i] = mustRegister(t, eng, names[i])
	}

	for i := range accounts {
		for j := range accounts {
			if i == j {
				continue
			}
			mustIssueAccept(t, eng, accounts[i].ID, accounts[j].ID, float64(1+((i+j)%3)), nil)
		}
	}

	done := make(chan error, 1)
	go func() { done <- eng.RunQueueDrain(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("queue drain did not terminate")
	}

	// No cycle may remain among the surviving active edges.
	remaining, err := eng.ListCredexes(ctx, credex.ListOpts{Status: credex.StatusActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, c := range remaining {
		if !c.ConservationOK() {
			t.Errorf("credex %s violates conservation", c.ID)
		}
		if cycles := eng.Graph().Cycles(c.IssuerID.String(), c.ID.String()); len(cycles) != 0 {
			t.Errorf("credex %s still closes %d cycles after fixpoint", c.ID, len(cycles))
		}
	}
}
