// Package metrics records login and wallet activity in a dedicated
// Prometheus registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deschool"

// Result label values.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Recorder holds the client's metrics.
type Recorder struct {
	registry *prometheus.Registry

	loginOutcomes  *prometheus.CounterVec
	walletOps      *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	roles          *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry so it does not
// interfere with the default global registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	loginOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	walletOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_operations_total",
		Help:      "Wallet operations by operation and result.",
	}, []string{"op", "result"})

	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_request_duration_seconds",
		Help:      "Service call latency by operation.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	roles := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "account_role",
		Help:      "1 for each login role currently held.",
	}, []string{"role"})

	reg.MustRegister(loginOutcomes, walletOps, remoteDuration, roles)

	return &Recorder{
		registry:       reg,
		loginOutcomes:  loginOutcomes,
		walletOps:      walletOps,
		remoteDuration: remoteDuration,
		roles:          roles,
	}
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordLogin counts one login attempt ending in outcome.
func (r *Recorder) RecordLogin(outcome string) {
	if r == nil {
		return
	}
	r.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordWalletOp counts one wallet operation with the given result label.
func (r *Recorder) RecordWalletOp(op, result string) {
	if r == nil {
		return
	}
	r.walletOps.WithLabelValues(op, result).Inc()
}

// ObserveRemote records the duration of one service call.
func (r *Recorder) ObserveRemote(operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.remoteDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetRoles marks exactly the given roles as held.
func (r *Recorder) SetRoles(roles []string) {
	if r == nil {
		return
	}
	r.roles.Reset()
	for _, role := range roles {
		r.roles.WithLabelValues(role).Set(1)
	}
}

// WriteTextfile writes the registry in the text exposition format to path,
// for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
