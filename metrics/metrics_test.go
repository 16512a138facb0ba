package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/transport"
)

type fakeSource struct {
	stats    transport.Stats
	sessions int
}

func (f *fakeSource) Stats() transport.Stats { return f.stats }
func (f *fakeSource) Sessions() int          { return f.sessions }

func TestCollectorExportsSnapshot(t *testing.T) {
	source := &fakeSource{
		stats: transport.Stats{
			Received:        1200,
			Dropped:         7,
			Pings:           4,
			Decrypted:       1100,
			DecryptFailures: 2,
		},
		sessions: 3,
	}

	expected := `
# HELP udp_audio_decrypt_failures_total Payloads that failed authentication or decryption.
# TYPE udp_audio_decrypt_failures_total counter
udp_audio_decrypt_failures_total 2
# HELP udp_audio_packets_decrypted_total Payloads successfully decrypted.
# TYPE udp_audio_packets_decrypted_total counter
udp_audio_packets_decrypted_total 1100
# HELP udp_audio_packets_dropped_total Packets dropped: malformed, unroutable, undecryptable or queue overflow.
# TYPE udp_audio_packets_dropped_total counter
udp_audio_packets_dropped_total 7
# HELP udp_audio_packets_received_total Audio packets accepted and routed to a session.
# TYPE udp_audio_packets_received_total counter
udp_audio_packets_received_total 1200
# HELP udp_audio_probes_total Connectivity probe packets received.
# TYPE udp_audio_probes_total counter
udp_audio_probes_total 4
# HELP udp_audio_registered_sessions Sessions currently registered for UDP routing.
# TYPE udp_audio_registered_sessions gauge
udp_audio_registered_sessions 3
`
	require.NoError(t, testutil.CollectAndCompare(NewCollector(source), strings.NewReader(expected)))
}

func TestCollectorMetricCount(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(&fakeSource{}))

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 6, count, "every counter and the session gauge must be exported")
}

func TestServerServesScrapes(t *testing.T) {
	source := &fakeSource{stats: transport.Stats{Received: 5}, sessions: 1}
	srv := NewServer("127.0.0.1", 0, "/metrics", source)

	// The collector must be queryable through the server's registry even
	// without starting the listener.
	count, err := testutil.GatherAndCount(srv.Registry(),
		"udp_audio_packets_received_total", "udp_audio_registered_sessions")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
