package monitoring

import (
	"net/http"
	"time"

	"github.com/mezonai/bitvm20/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TxRejectedReason string

var (
	TxAccountNotFound     TxRejectedReason = "account_not_found"
	TxInvalidNonce        TxRejectedReason = "invalid_nonce"
	TxNonceExhausted      TxRejectedReason = "nonce_exhausted"
	TxInsufficientBalance TxRejectedReason = "insufficient_funds"
	TxBalanceOverflow     TxRejectedReason = "balance_overflow"
	TxInvalidSignature    TxRejectedReason = "invalid_signature"
	TxOnHold              TxRejectedReason = "transaction_on_hold"
	TxRejectedUnknown     TxRejectedReason = "other"
)

type ledgerPromMetrics struct {
	receivedTxCount      prometheus.Counter
	rejectedTxCount      *prometheus.CounterVec
	committedTxCount     prometheus.Counter
	contextsGenerated    prometheus.Counter
	verifierRejections   *prometheus.CounterVec
	bundleBuildTime      prometheus.Histogram
	panicCount           prometheus.Counter
	pendingVerifierCount prometheus.Gauge
}

func newLedgerPromMetrics() *ledgerPromMetrics {
	return &ledgerPromMetrics{
		receivedTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bitvm20_tx_received_total",
				Help: "The total number of user transactions posted to the operator",
			},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitvm20_tx_rejected_total",
				Help: "The total number of transactions the operator refused",
			},
			[]string{"reason"},
		),
		committedTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bitvm20_tx_committed_total",
				Help: "The total number of transactions applied after verifier sign-off",
			},
		),
		contextsGenerated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bitvm20_exec_contexts_generated_total",
				Help: "The total number of execution contexts built by operator and verifiers",
			},
		),
		verifierRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bitvm20_verifier_rejections_total",
				Help: "The total number of broadcasts a verifier refused to sign",
			},
			[]string{"reason"},
		),
		bundleBuildTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "bitvm20_bundle_build_seconds",
				Help: "Time spent building one execution context bundle",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bitvm20_panic_total",
				Help: "The total number of recovered goroutine panics",
			},
		),
		pendingVerifierCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bitvm20_pending_verifiers",
				Help: "Verifiers that have not answered the current broadcast",
			},
		),
	}
}

var metrics = newLedgerPromMetrics()

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func IncreaseReceivedTxCount() {
	metrics.receivedTxCount.Inc()
}

func RecordRejectedTx(reason TxRejectedReason) {
	metrics.rejectedTxCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func IncreaseCommittedTxCount() {
	metrics.committedTxCount.Inc()
}

func AddContextsGenerated(n int) {
	metrics.contextsGenerated.Add(float64(n))
}

func RecordVerifierRejection(reason string) {
	metrics.verifierRejections.With(prometheus.Labels{
		"reason": reason,
	}).Inc()
}

func RecordBundleBuildTime(duration time.Duration) {
	metrics.bundleBuildTime.Observe(duration.Seconds())
}

func IncreasePanicCount() {
	metrics.panicCount.Inc()
}

func SetPendingVerifiers(n int) {
	metrics.pendingVerifierCount.Set(float64(n))
}
