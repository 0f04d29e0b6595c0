// Package clearing provides a mutual-credit clearing ledger engine for Go
// applications.
//
// Members issue and accept IOU-like instruments ("credexes") denominated in
// arbitrary currencies. Accepted debt is periodically netted against closed
// cycles of obligation (credit loops), and every stored balance is rebased
// daily against a floating internal numeraire ("CXX") whose value is set by
// the participants' daily pledges.
//
// Clearing is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A ledger model with a hard conservation invariant on every instrument
//   - Credit-loop discovery and all-or-nothing netting over a live debt graph
//   - A daily rebasing pipeline with a persisted, resumable step cursor
//   - A queue orchestrator that serializes loop finding in acceptance order
//   - Collateral authorization with audited-trust and per-securer ceilings
//   - Pluggable lifecycle hooks, audit bridging, and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/clearing"
//	    "github.com/xraph/clearing/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := clearing.New(store)
//
//	// Start the engine (migrates, rebuilds the debt graph, begins workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Accounts register once and may declare a daily offering pledge:
//
//	acct := &account.Account{
//	    Name:         "Alice",
//	    Type:         account.TypeHuman,
//	    DefaultDenom: "USD",
//	}
//	err := eng.RegisterAccount(ctx, acct)
//
// Credexes are issued pending and become active debt on acceptance:
//
//	c, err := eng.IssueCredex(ctx, clearing.IssueSpec{
//	    IssuerID:     alice.ID,
//	    ReceiverID:   bob.ID,
//	    Denomination: "USD",
//	    Amount:       10,
//	})
//	c, err = eng.AcceptCredex(ctx, c.ID)
//
// Accepted credexes are queued; the background orchestrator drains the queue
// and nets any credit loops the new debt closes. Amounts are stored in CXX
// units with a per-instrument multiplier snapshotted at issue time, so the
// display value is always amount divided by multiplier.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	cdx_01h2xcejqtf2nbrexx3vqjhp41   // Credex ID
//	day_01h455vb4pex5vsknk084sn02q   // Day node ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package clearing
