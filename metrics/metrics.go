package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesIssued tracks challenges handed out per chain and provider
	ChallengesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_challenges_issued_total",
			Help: "Total number of sign-in challenges issued",
		},
		[]string{"chain", "provider"},
	)

	// Verifications tracks verification outcomes; result is "ok" or an error code
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_verifications_total",
			Help: "Total number of signature verifications by result",
		},
		[]string{"chain", "provider", "result"},
	)

	// VerifyLatency tracks time spent verifying a signed challenge
	VerifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletauth_verify_latency_seconds",
			Help:    "Signature verification latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	// UsersCreated counts accounts created by a first wallet sign-in
	UsersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletauth_users_created_total",
			Help: "Total number of users created on first sign-in",
		},
	)

	// WalletChanges tracks link and unlink operations
	WalletChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_wallet_changes_total",
			Help: "Total number of wallet link and unlink operations",
		},
		[]string{"operation"},
	)

	// HTTPRequests tracks API requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
