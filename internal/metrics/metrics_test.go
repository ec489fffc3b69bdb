package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRecorder(t *testing.T) {
	r := NewRecorder()
	if r.Registry() == nil {
		t.Fatal("expected a registry")
	}
	if r.Registry() == prometheus.DefaultRegisterer {
		t.Error("recorder must not use the global registry")
	}
}

func TestRecordLogin(t *testing.T) {
	r := NewRecorder()
	r.RecordLogin("logged_in")
	r.RecordLogin("logged_in")
	r.RecordLogin("missing_handle")

	if got := counterValue(t, r.loginOutcomes, "logged_in"); got != 2 {
		t.Errorf("logged_in = %v, want 2", got)
	}
	if got := counterValue(t, r.loginOutcomes, "missing_handle"); got != 1 {
		t.Errorf("missing_handle = %v, want 1", got)
	}
}

func TestRecordWalletOpConcurrent(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordWalletOp("sign", ResultOK)
		}()
	}
	wg.Wait()

	if got := counterValue(t, r.walletOps, "sign", ResultOK); got != 50 {
		t.Errorf("sign/ok = %v, want 50", got)
	}
}

func TestSetRolesReplacesPrevious(t *testing.T) {
	r := NewRecorder()
	r.SetRoles([]string{"Visitor"})
	r.SetRoles([]string{"UserOfCyber", "UserOfDeschool"})

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	held := map[string]bool{}
	for _, f := range families {
		if f.GetName() != "deschool_account_role" {
			continue
		}
		for _, m := range f.GetMetric() {
			held[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue() == 1
		}
	}
	if held["Visitor"] || !held["UserOfCyber"] || !held["UserOfDeschool"] {
		t.Errorf("roles = %v", held)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordLogin("logged_in")
	r.ObserveRemote("loginVerify", 120*time.Millisecond)

	path := filepath.Join(t.TempDir(), "deschool.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`deschool_login_total{outcome="logged_in"} 1`,
		`deschool_remote_request_duration_seconds_count{operation="loginVerify"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.RecordLogin("x")
	r.RecordWalletOp("sign", ResultOK)
	r.ObserveRemote("op", time.Second)
	r.SetRoles([]string{"Visitor"})
	if err := r.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("nil recorder WriteTextfile: %v", err)
	}
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
}
