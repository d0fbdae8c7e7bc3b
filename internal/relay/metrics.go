package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claj_connections_active",
		Help: "Currently connected peers.",
	})
	metricConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claj_connections_total",
		Help: "Peers accepted since start.",
	})
	metricRoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claj_rooms_active",
		Help: "Currently open rooms.",
	})
	metricRoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claj_rooms_created_total",
		Help: "Rooms created since start.",
	})
	metricRelayedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claj_relayed_packets_total",
		Help: "Game payloads forwarded, by direction.",
	}, []string{"direction"})
	metricRelayedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claj_relayed_bytes_total",
		Help: "Game payload bytes forwarded, by direction.",
	}, []string{"direction"})
	metricJoinsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claj_joins_denied_total",
		Help: "Join attempts denied, by reject reason.",
	}, []string{"reason"})
	metricRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claj_rate_limited_total",
		Help: "Requests dropped by a rate limiter.",
	})
	metricListRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claj_list_refreshes_total",
		Help: "Room list refresh polls started.",
	})
)
