package solver

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"cvp-knife/internal/db"
	"cvp-knife/internal/logger"
	"cvp-knife/internal/notify"
	"cvp-knife/internal/problem"
	"cvp-knife/internal/recovery"
	"cvp-knife/internal/retry"
)

func testPool(t *testing.T, database db.Database) *Pool {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.Timeout = 30 * time.Second
	cfg.Retry = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	log := logger.NewWithZap(100, zaptest.NewLogger(t))
	return New(database, log, notify.New("", ""), cfg)
}

func traceSystem() *problem.System {
	return &problem.System{
		Name: "trace",
		Constraints: []problem.Constraint{
			{Expr: "a + b - 50"},
			{Expr: "a", Bounds: []problem.Integer{"0", "100"}},
			{Expr: "a - b - 10"},
			{Expr: "b", Bounds: []problem.Integer{"0", "100"}},
			{Expr: "2*a - 60"},
		},
	}
}

func waitStatus(t *testing.T, database db.Database, id int64, want db.Status) *db.SystemRecord {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := database.GetSystem(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSystem(%d): %v", id, err)
		}
		if rec.Status == want {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("system %d did not reach status %s", id, want)
	return nil
}

func TestSubmitAndSolve(t *testing.T) {
	database := db.NewMock()
	p := testPool(t, database)
	p.Start(context.Background())
	defer p.Stop()

	rec, err := p.Submit(context.Background(), traceSystem())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	solved := waitStatus(t, database, rec.ID, db.StatusSolved)
	if diff := cmp.Diff([]string{"30", "20"}, solved.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, solved.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}

	// Resubmitting returns the stored record without solving again
	again, err := p.Submit(context.Background(), traceSystem())
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != rec.ID || again.Status != db.StatusSolved {
		t.Errorf("resubmit returned %+v", again)
	}
	if st := p.Stats(); st.Solved != 1 || st.Workers != 2 || !st.Running {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSubmitFailure(t *testing.T) {
	database := db.NewMock()
	p := testPool(t, database)
	p.Start(context.Background())
	defer p.Stop()

	sys := &problem.System{
		Name:        "inconsistent",
		Constraints: []problem.Constraint{{Expr: "x - 3"}, {Expr: "x - 5"}},
	}
	rec, err := p.Submit(context.Background(), sys)
	if err != nil {
		t.Fatal(err)
	}
	failed := waitStatus(t, database, rec.ID, db.StatusFailed)
	if !strings.Contains(failed.Error, "scale") {
		t.Errorf("unexpected failure reason %q", failed.Error)
	}
	if st := p.Stats(); st.Failed != 1 {
		t.Errorf("Failed = %d, want 1", st.Failed)
	}
}

func TestSubmitValidation(t *testing.T) {
	p := testPool(t, db.NewMock())
	p.Start(context.Background())
	defer p.Stop()

	if _, err := p.Submit(context.Background(), &problem.System{Name: "empty"}); !errors.Is(err, problem.ErrEmpty) {
		t.Errorf("Submit(empty) = %v, want ErrEmpty", err)
	}
}

func TestSubmitStopped(t *testing.T) {
	p := testPool(t, db.NewMock())
	if _, err := p.Submit(context.Background(), traceSystem()); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit before Start = %v, want ErrStopped", err)
	}

	p.Start(context.Background())
	p.Stop()
	p.Stop()
	if p.Stats().Running {
		t.Error("pool still running after Stop")
	}
}

func TestStartRequeuesPending(t *testing.T) {
	database := db.NewMock()
	def := `{"name":"left","constraints":[{"expr":"x - 9"},{"expr":"x","bounds":[0,10]}]}`
	id, _, err := database.SaveSystem(context.Background(), &db.SystemRecord{Fingerprint: "0x0102", Name: "left", Definition: def})
	if err != nil {
		t.Fatal(err)
	}

	p := testPool(t, database)
	p.Start(context.Background())
	defer p.Stop()

	rec := waitStatus(t, database, id, db.StatusSolved)
	if diff := cmp.Diff([]string{"9"}, rec.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestSolveNow(t *testing.T) {
	p := testPool(t, db.NewMock())
	sys := traceSystem()
	sys.Format = "mapping"

	res, err := p.SolveNow(context.Background(), sys)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"a": "30", "b": "20"}, res.Mapping); diff != "" {
		t.Errorf("mapping (-want +got):\n%s", diff)
	}
}

const testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func sign(t *testing.T, msg string, k *big.Int) recovery.Signature {
	key, err := crypto.HexToECDSA(testPrivKey[2:])
	if err != nil {
		t.Fatal(err)
	}
	n := crypto.S256().Params().N
	rx, _ := crypto.S256().ScalarBaseMult(k.Bytes())
	r := new(big.Int).Mod(rx, n)
	z := new(big.Int).SetBytes(crypto.Keccak256([]byte(msg)))
	s := new(big.Int).Mul(r, key.D)
	s.Add(s, z)
	s.Mul(s, new(big.Int).ModInverse(k, n))
	s.Mod(s, n)
	return recovery.Signature{Z: z, R: r, S: s}
}

func TestRecover(t *testing.T) {
	database := db.NewMock()
	p := testPool(t, database)

	k := big.NewInt(987654321)
	sigs := []recovery.Signature{sign(t, "one", k), sign(t, "two", k)}
	key, err := p.Recover(context.Background(), sigs, 0)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if key.PrivateKey != testPrivKey || key.Method != MethodNonceReuse {
		t.Errorf("unexpected key %+v", key)
	}

	biased := []recovery.Signature{
		sign(t, "a", new(big.Int).SetUint64(0x9f3c_11aa_5d20_77e1)),
		sign(t, "b", new(big.Int).SetUint64(0x1b44_e0c2_93fd_0a5c)),
		sign(t, "c", new(big.Int).SetUint64(0x6e02_8f7b_c1d9_3346)),
		sign(t, "d", new(big.Int).SetUint64(0x3ad7_5c66_0e18_b9f0)),
	}
	key, err = p.Recover(context.Background(), biased, 64)
	if err != nil {
		t.Fatalf("Recover biased: %v", err)
	}
	if key.PrivateKey != testPrivKey || key.Method != MethodBiasedNonce {
		t.Errorf("unexpected key %+v", key)
	}

	keys, _ := database.GetRecoveredKeys(context.Background())
	if len(keys) != 1 || keys[0].NonceBits != 64 {
		t.Errorf("recovered keys not upserted: %+v", keys)
	}

	if _, err := p.Recover(context.Background(), sigs[:1], 0); !errors.Is(err, recovery.ErrNotEnoughSigs) {
		t.Errorf("Recover with one signature = %v", err)
	}
}
