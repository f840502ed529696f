package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthorizationsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_authorizations_requested_total",
		Help: "Authorization requests created.",
	})
	ApprovalSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_authorization_approval_steps_total",
		Help: "Resolved approval steps by outcome.",
	}, []string{"outcome"}) // approved | denied
	AuthorizationsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_authorizations_finalized_total",
		Help: "Authorizations reaching a terminal or granted state.",
	}, []string{"status"}) // approved | denied | revoked | expired
	PermissionCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_permission_cache_lookups_total",
		Help: "Permission aggregator cache lookups.",
	}, []string{"result"}) // hit | miss
)
