package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-dbn/internal/codec"
	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/logging"
	"github.com/danielpatrickdp/adaptive-dbn/internal/metrics"
	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
	"github.com/danielpatrickdp/adaptive-dbn/internal/state"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers
func stockNetwork(t *testing.T) *dbn.Network {
	t.Helper()
	n, err := netdef.StockExample().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return n
}

func rate(v float64) *float64 { return &v }

// dial serves srv on an in-memory listener and returns a client for it.
func dial(t *testing.T, srv *Server) *codec.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	g := grpc.NewServer()
	srv.Register(g)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		g.Stop()
		<-done
	})
	return codec.NewClientWithConn(conn)
}

func newStore(t *testing.T) (*state.Store, state.NetworkRecord) {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "dbn.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	rec, err := store.CreateInitial(netdef.StockExample())
	if err != nil {
		t.Fatalf("CreateInitial: %v", err)
	}
	return store, rec
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := status.Code(err); got != code {
		t.Fatalf("code = %v, want %v (err %v)", got, code, err)
	}
}

// #endregion helpers

// #region infer-tests
func TestInferOverGRPC(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	srv, err := New(stockNetwork(t), Options{Metrics: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := dial(t, srv)
	ctx := context.Background()

	ev := dbn.Evidence{
		{Variable: "MarketSentiment", Time: 1}: "Bearish",
		{Variable: "PriceMove", Time: 0}:       "Decrease",
	}
	got, err := c.Infer(ctx, "PriceMove", 1, ev)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	want := dbn.Distribution{{Value: "Increase", P: 0.3}, {Value: "Decrease", P: 0.7}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("distribution mismatch (-want +got):\n%s", diff)
	}

	_, err = c.Infer(ctx, "PriceMove", 1, dbn.Evidence{{Variable: "MarketSentiment", Time: 1}: "Bearish"})
	wantCode(t, err, codes.FailedPrecondition)

	_, err = c.Infer(ctx, "Volume", 0, nil)
	wantCode(t, err, codes.NotFound)

	if got := testutil.ToFloat64(m.InferTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InferTotal.WithLabelValues("missing_evidence")); got != 1 {
		t.Errorf("missing_evidence count = %v, want 1", got)
	}
}

func TestRootInferIgnoresEvidence(t *testing.T) {
	srv, _ := New(stockNetwork(t), Options{})
	c := dial(t, srv)

	got, err := c.Infer(context.Background(), "MarketSentiment", 42, nil)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got.Prob("Bullish") != 0.6 {
		t.Fatalf("expected prior 0.6, got %v", got)
	}
}

// #endregion infer-tests

// #region structure-tests
func TestParentsAndUnroll(t *testing.T) {
	srv, _ := New(stockNetwork(t), Options{})
	c := dial(t, srv)
	ctx := context.Background()

	parents, err := c.Parents(ctx, "PriceMove")
	if err != nil {
		t.Fatalf("Parents: %v", err)
	}
	want := []dbn.Parent{{Name: "MarketSentiment", Offset: 0}, {Name: "PriceMove", Offset: -1}}
	if diff := cmp.Diff(want, parents); diff != "" {
		t.Errorf("parents mismatch (-want +got):\n%s", diff)
	}

	slices, err := c.Unroll(ctx, 3)
	if err != nil {
		t.Fatalf("Unroll: %v", err)
	}
	if len(slices) != 3 || len(slices[2]) != 2 || slices[2][1] != (dbn.TimeKey{Variable: "PriceMove", Time: 2}) {
		t.Fatalf("unexpected unroll: %v", slices)
	}

	_, err = c.Unroll(ctx, -1)
	wantCode(t, err, codes.InvalidArgument)

	for _, count := range []int{codec.MaxUnrollSlices + 1, 1 << 50} {
		_, err = c.Unroll(ctx, count)
		wantCode(t, err, codes.InvalidArgument)
	}
}

// #endregion structure-tests

// #region update-tests
func TestUpdateInMemory(t *testing.T) {
	n := stockNetwork(t)
	srv, _ := New(n, Options{})
	c := dial(t, srv)
	ctx := context.Background()

	reply, err := c.Update(ctx, codec.UpdateRequest{
		Variable: "PriceMove",
		Parents:  dbn.Tuple{"Bullish", "Increase"},
		Value:    "Decrease",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if reply.Action != "commit" || reply.VersionID != "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	// default lr 0.1: 0.9*0.2 + 0.1 = 0.28
	table, _ := n.CPT("PriceMove")
	row, _ := table.Get(dbn.Tuple{"Bullish", "Increase"})
	if p := row.Prob("Decrease"); p < 0.2799999 || p > 0.2800001 {
		t.Fatalf("P(Decrease) = %v, want 0.28", p)
	}

	_, err = c.Update(ctx, codec.UpdateRequest{Variable: "PriceMove", Value: "Up", LearningRate: rate(2)})
	wantCode(t, err, codes.InvalidArgument)

	// an explicit zero is rejected, not replaced by the default
	table, _ = n.CPT("PriceMove")
	before, _ := table.Get(dbn.Tuple{"Bullish", "Increase"})
	_, err = c.Update(ctx, codec.UpdateRequest{
		Variable:     "PriceMove",
		Parents:      dbn.Tuple{"Bullish", "Increase"},
		Value:        "Decrease",
		LearningRate: rate(0),
	})
	wantCode(t, err, codes.InvalidArgument)
	table, _ = n.CPT("PriceMove")
	after, _ := table.Get(dbn.Tuple{"Bullish", "Increase"})
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rejected update changed the row (-before +after):\n%s", diff)
	}

	_, err = c.Update(ctx, codec.UpdateRequest{Variable: "Volume", Value: "High"})
	wantCode(t, err, codes.NotFound)
}

func TestUpdatePersistsAndSnapshots(t *testing.T) {
	store, initial := newStore(t)
	n, err := initial.Network()
	if err != nil {
		t.Fatalf("Network: %v", err)
	}
	srv, err := New(n, Options{Store: store, CommitEvery: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if srv.VersionID() != initial.VersionID {
		t.Fatalf("expected active version %s, got %s", initial.VersionID, srv.VersionID())
	}
	c := dial(t, srv)
	ctx := context.Background()

	obs := codec.UpdateRequest{Variable: "MarketSentiment", Value: "Bearish", LearningRate: rate(0.5)}
	for i := 0; i < 2; i++ {
		if _, err := c.Update(ctx, obs); err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}

	// a rejected update is still logged
	_, err = c.Update(ctx, codec.UpdateRequest{Variable: "Volume", Value: "High"})
	wantCode(t, err, codes.NotFound)

	versions, err := store.ListVersions(10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions after snapshot, got %d", len(versions))
	}
	head := versions[0]
	if head.ParentID != initial.VersionID || srv.VersionID() != head.VersionID {
		t.Fatalf("snapshot lineage wrong: head=%+v server=%s", head.NetworkRecord, srv.VersionID())
	}

	stored, err := head.Network()
	if err != nil {
		t.Fatalf("rebuild snapshot: %v", err)
	}
	prior, err := stored.Infer("MarketSentiment", 0, nil)
	if err != nil {
		t.Fatalf("Infer on snapshot: %v", err)
	}
	live, _ := n.Infer("MarketSentiment", 0, nil)
	if diff := cmp.Diff(live, prior); diff != "" {
		t.Errorf("snapshot differs from live network (-live +stored):\n%s", diff)
	}

	first, err := logging.ListUpdates(store.DB(), initial.VersionID, 10)
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 updates against the initial version, got %d", len(first))
	}
	after, _ := logging.ListUpdates(store.DB(), head.VersionID, 10)
	if len(after) != 1 || after[0].Decision != "reject" {
		t.Fatalf("expected one reject after the snapshot, got %+v", after)
	}
}

func TestFlush(t *testing.T) {
	store, initial := newStore(t)
	n, _ := initial.Network()
	srv, _ := New(n, Options{Store: store})
	c := dial(t, srv)

	if err := srv.Flush(); err != nil {
		t.Fatalf("Flush with nothing pending: %v", err)
	}
	if _, err := c.Update(context.Background(), codec.UpdateRequest{Variable: "MarketSentiment", Value: "Bullish"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := srv.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	current, err := store.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.VersionID == initial.VersionID || current.ParentID != initial.VersionID {
		t.Fatalf("expected a child of the initial version to be active, got %+v", current)
	}
}

// #endregion update-tests
