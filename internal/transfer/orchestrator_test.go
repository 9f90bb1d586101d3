package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/dropDatabas3/quarterdeck/internal/audit"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/store/memory"
)

const (
	srvUUID    = "3f1c8a2e-9d54-4b6f-8a01-6c2d9e447f10"
	sourceNode = "node-src"
	targetNode = "node-dst"
)

type queuedStarter struct{ serverUUIDs []string }

func (q *queuedStarter) QueueStart(_ context.Context, uuid string) error {
	q.serverUUIDs = append(q.serverUUIDs, uuid)
	return nil
}

func newFixture(t *testing.T) (*Orchestrator, *memory.Store, *queuedStarter) {
	t.Helper()
	st := memory.New()
	st.SeedNode(repository.Node{ID: sourceNode, FQDN: "src.example.com", Scheme: "https", DaemonListen: 8080},
		repository.NodeConnection{TokenID: "ts", TokenSecret: "secret-src"})
	st.SeedNode(repository.Node{ID: targetNode, FQDN: "dst.example.com", Scheme: "https", DaemonListen: 8080},
		repository.NodeConnection{TokenID: "td", TokenSecret: "secret-dst"})
	st.SeedServer(repository.Server{UUID: srvUUID, Identifier: "3f1c8a2e", Name: "mc-1", OwnerID: "u1", NodeID: sourceNode, AllocationID: 10})
	st.SeedAllocation(repository.Allocation{ID: 10, NodeID: sourceNode, IP: "10.0.0.1", Port: 25565, ServerUUID: srvUUID})
	st.SeedAllocation(repository.Allocation{ID: 42, NodeID: targetNode, IP: "10.0.0.2", Port: 25565})
	st.SeedAllocation(repository.Allocation{ID: 43, NodeID: targetNode, IP: "10.0.0.2", Port: 25566})

	q := &queuedStarter{}
	o := New(st.Transfers(), st.Allocations(), st.Servers(), st.Nodes(), q, nil)
	return o, st, q
}

func TestInitiateClaimsAllocationsAndFlagsServer(t *testing.T) {
	t.Parallel()
	o, st, _ := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42, AdditionalAllocationIDs: []int64{43}})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if rec.Status != repository.TransferPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}
	if rec.SourceNodeID != sourceNode || rec.TargetNodeID != targetNode {
		t.Fatalf("nodes = %q -> %q", rec.SourceNodeID, rec.TargetNodeID)
	}

	for _, id := range []int64{42, 43} {
		a, err := st.Allocations().GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID(%d): %v", id, err)
		}
		if a.TransferID != rec.ID {
			t.Fatalf("allocation %d claim = %q, want %q", id, a.TransferID, rec.ID)
		}
	}

	srv, _ := st.Servers().GetByUUID(ctx, srvUUID)
	if srv.Status != repository.ServerStatusTransferring {
		t.Fatalf("server status = %q, want transferring", srv.Status)
	}
}

func TestInitiateRejectsSameNode(t *testing.T) {
	t.Parallel()
	o, _, _ := newFixture(t)

	_, err := o.Initiate(context.Background(), srvUUID, sourceNode, InitiateInput{AllocationID: 10})
	if !errors.Is(err, ErrSameNode) {
		t.Fatalf("err = %v, want ErrSameNode", err)
	}
}

func TestInitiateRejectsUnknownServerAndNode(t *testing.T) {
	t.Parallel()
	o, _, _ := newFixture(t)
	ctx := context.Background()

	if _, err := o.Initiate(ctx, "no-such-server", targetNode, InitiateInput{AllocationID: 42}); !repository.IsNotFound(err) {
		t.Fatalf("unknown server: err = %v, want NotFound", err)
	}
	if _, err := o.Initiate(ctx, srvUUID, "no-such-node", InitiateInput{AllocationID: 42}); !repository.IsNotFound(err) {
		t.Fatalf("unknown target node: err = %v, want NotFound", err)
	}
}

func TestSecondInitiateConflictsAndLeavesAllocationFree(t *testing.T) {
	t.Parallel()
	o, st, _ := newFixture(t)
	ctx := context.Background()

	if _, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42}); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}

	// El segundo intento pierde en el insert condicional: la allocation que
	// pedía no debe quedar tomada.
	_, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 43})
	if !errors.Is(err, ErrActiveTransfer) {
		t.Fatalf("err = %v, want ErrActiveTransfer", err)
	}
	a, _ := st.Allocations().GetByID(ctx, 43)
	if a.Claimed() {
		t.Fatalf("allocation 43 claimed after rejected initiate: server=%q transfer=%q", a.ServerUUID, a.TransferID)
	}
}

func TestConcurrentInitiateSingleWinner(t *testing.T) {
	t.Parallel()
	o, _, _ := newFixture(t)
	ctx := context.Background()

	errs := make(chan error, 2)
	for _, alloc := range []int64{42, 43} {
		go func(alloc int64) {
			_, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: alloc})
			errs <- err
		}(alloc)
	}

	var won, lost int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			won++
		case errors.Is(err, ErrActiveTransfer):
			lost++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one winner", won, lost)
	}
}

func TestInitiateRollsBackWhenAllocationBusy(t *testing.T) {
	t.Parallel()
	o, st, _ := newFixture(t)
	ctx := context.Background()

	st.SeedAllocation(repository.Allocation{ID: 44, NodeID: targetNode, IP: "10.0.0.2", Port: 25567, ServerUUID: "other-server"})

	_, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42, AdditionalAllocationIDs: []int64{44}})
	if !errors.Is(err, ErrAllocationBusy) {
		t.Fatalf("err = %v, want ErrAllocationBusy", err)
	}

	// La reserva parcial sobre 42 se deshizo y el registro quedó cancelado,
	// así que un initiate correcto vuelve a funcionar.
	a, _ := st.Allocations().GetByID(ctx, 42)
	if a.TransferID != "" {
		t.Fatalf("allocation 42 still claimed: %q", a.TransferID)
	}
	if _, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42}); err != nil {
		t.Fatalf("retry Initiate: %v", err)
	}
}

func TestCompleteReassignsServerAndQueuesStart(t *testing.T) {
	t.Parallel()
	o, st, q := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42, StartOnCompletion: true})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := o.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done, err := o.Complete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != repository.TransferCompleted {
		t.Fatalf("status = %q, want completed", done.Status)
	}

	srv, _ := st.Servers().GetByUUID(ctx, srvUUID)
	if srv.NodeID != targetNode || srv.AllocationID != 42 {
		t.Fatalf("server landed on node=%q alloc=%d", srv.NodeID, srv.AllocationID)
	}
	if srv.Status != repository.ServerStatusNormal {
		t.Fatalf("server status = %q, want normal", srv.Status)
	}

	newAlloc, _ := st.Allocations().GetByID(ctx, 42)
	if newAlloc.ServerUUID != srvUUID || newAlloc.TransferID != "" {
		t.Fatalf("target allocation: server=%q transfer=%q", newAlloc.ServerUUID, newAlloc.TransferID)
	}
	oldAlloc, _ := st.Allocations().GetByID(ctx, 10)
	if oldAlloc.ServerUUID != "" {
		t.Fatalf("source allocation not released: %q", oldAlloc.ServerUUID)
	}

	if len(q.serverUUIDs) != 1 || q.serverUUIDs[0] != srvUUID {
		t.Fatalf("queued starts = %v", q.serverUUIDs)
	}
}

func TestFailReleasesClaimsAndKeepsServerOnSource(t *testing.T) {
	t.Parallel()
	o, st, _ := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := o.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	failed, err := o.Fail(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != repository.TransferFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}

	srv, _ := st.Servers().GetByUUID(ctx, srvUUID)
	if srv.NodeID != sourceNode || srv.Status != repository.ServerStatusNormal {
		t.Fatalf("server node=%q status=%q after fail", srv.NodeID, srv.Status)
	}
	a, _ := st.Allocations().GetByID(ctx, 42)
	if a.Claimed() {
		t.Fatalf("allocation still claimed after fail")
	}

	// Con el transfer terminado, se puede iniciar otro.
	if _, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42}); err != nil {
		t.Fatalf("Initiate after fail: %v", err)
	}
}

type flakyServers struct {
	repository.ServerRepository
	failReassigns int
}

func (f *flakyServers) ReassignNode(ctx context.Context, uuid, nodeID string, allocationID int64) error {
	if f.failReassigns > 0 {
		f.failReassigns--
		return errors.New("storage unavailable")
	}
	return f.ServerRepository.ReassignNode(ctx, uuid, nodeID, allocationID)
}

// Un efecto que falla no puede dejar el registro terminal: el callback
// reintentado tiene que volver a aplicar los efectos pendientes.
func TestCompleteRetryReappliesEffectsAfterStoreFailure(t *testing.T) {
	t.Parallel()
	_, st, _ := newFixture(t)
	flaky := &flakyServers{ServerRepository: st.Servers(), failReassigns: 1}
	o := New(st.Transfers(), st.Allocations(), flaky, st.Nodes(), nil, nil)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := o.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := o.Complete(ctx, rec.ID); err == nil {
		t.Fatal("first Complete should surface the reassign failure")
	}
	cur, _ := st.Transfers().GetByID(ctx, rec.ID)
	if cur.Status != repository.TransferInProgress {
		t.Fatalf("status after failed effects = %q, want in_progress", cur.Status)
	}

	got, err := o.Complete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("retried Complete: %v", err)
	}
	if got.Status != repository.TransferCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	srv, _ := st.Servers().GetByUUID(ctx, srvUUID)
	if srv.NodeID != targetNode || srv.AllocationID != 42 {
		t.Fatalf("server = node %q alloc %d, want %q/42", srv.NodeID, srv.AllocationID, targetNode)
	}
	a, _ := st.Allocations().GetByID(ctx, 42)
	if a.ServerUUID != srvUUID || a.TransferID != "" {
		t.Fatalf("allocation 42 = server %q transfer %q, want committed", a.ServerUUID, a.TransferID)
	}
}

type flakyAllocations struct {
	repository.AllocationRepository
	failReleases int
}

func (f *flakyAllocations) ReleaseTransferClaims(ctx context.Context, transferID string) error {
	if f.failReleases > 0 {
		f.failReleases--
		return errors.New("storage unavailable")
	}
	return f.AllocationRepository.ReleaseTransferClaims(ctx, transferID)
}

func TestFailRetryReleasesClaimsAfterStoreFailure(t *testing.T) {
	t.Parallel()
	_, st, _ := newFixture(t)
	flaky := &flakyAllocations{AllocationRepository: st.Allocations(), failReleases: 1}
	o := New(st.Transfers(), flaky, st.Servers(), st.Nodes(), nil, nil)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if _, err := o.Fail(ctx, rec.ID); err == nil {
		t.Fatal("first Fail should surface the release failure")
	}
	cur, _ := st.Transfers().GetByID(ctx, rec.ID)
	if cur.Status != repository.TransferPending {
		t.Fatalf("status after failed effects = %q, want pending", cur.Status)
	}

	if _, err := o.Fail(ctx, rec.ID); err != nil {
		t.Fatalf("retried Fail: %v", err)
	}
	a, _ := st.Allocations().GetByID(ctx, 42)
	if a.Claimed() {
		t.Fatalf("allocation 42 still claimed: server=%q transfer=%q", a.ServerUUID, a.TransferID)
	}
}

func TestInitiateAuditsRequestingAdmin(t *testing.T) {
	t.Parallel()
	_, st, _ := newFixture(t)
	o := New(st.Transfers(), st.Allocations(), st.Servers(), st.Nodes(), nil, audit.NewStoreRecorder(st.AuditEvents()))
	ctx := context.Background()

	if _, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{Actor: "admin-1", AllocationID: 42}); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	for _, ev := range st.AuditLog() {
		if ev.Action == "server.transfer.initiate" {
			if ev.Actor != "admin-1" || ev.ActorType != "user" {
				t.Fatalf("event actor = %s/%s, want admin-1/user", ev.ActorType, ev.Actor)
			}
			return
		}
	}
	t.Fatal("no initiate event recorded")
}

func TestCancelFromPending(t *testing.T) {
	t.Parallel()
	o, st, _ := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	cancelled, err := o.Cancel(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != repository.TransferCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}
	a, _ := st.Allocations().GetByID(ctx, 42)
	if a.Claimed() {
		t.Fatalf("allocation still claimed after cancel")
	}
}

func TestRepeatedCallbackIsIdempotent(t *testing.T) {
	t.Parallel()
	o, st, q := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42, StartOnCompletion: true})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := o.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := o.Complete(ctx, rec.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// El daemon reintenta el callback: mismo resultado, sin efectos dobles.
	again, err := o.Complete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("repeat Complete: %v", err)
	}
	if again.Status != repository.TransferCompleted {
		t.Fatalf("status = %q", again.Status)
	}
	if len(q.serverUUIDs) != 1 {
		t.Fatalf("start queued %d times, want 1", len(q.serverUUIDs))
	}
	srv, _ := st.Servers().GetByUUID(ctx, srvUUID)
	if srv.NodeID != targetNode {
		t.Fatalf("server node = %q", srv.NodeID)
	}
}

func TestTransitionFromTerminalStateConflicts(t *testing.T) {
	t.Parallel()
	o, _, _ := newFixture(t)
	ctx := context.Background()

	rec, err := o.Initiate(ctx, srvUUID, targetNode, InitiateInput{AllocationID: 42})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := o.Cancel(ctx, rec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := o.Start(ctx, rec.ID); !IsConflict(err) {
		t.Fatalf("Start after cancel: err = %v, want Conflict", err)
	}
	if _, err := o.Complete(ctx, rec.ID); !IsConflict(err) {
		t.Fatalf("Complete after cancel: err = %v, want Conflict", err)
	}
}

func TestTransitionUnknownTransfer(t *testing.T) {
	t.Parallel()
	o, _, _ := newFixture(t)

	if _, err := o.Start(context.Background(), "missing"); !repository.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
