package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/markets", "GET", "200"))

	RecordHTTPRequest("/api/markets", "GET", 200, 12.5)
	RecordHTTPRequest("/api/markets", "GET", 200, 3)

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/markets", "GET", "200"))
	assert.Equal(t, before+2, after)
}

func TestRecordIndexerRequest_NetworkErrorLabel(t *testing.T) {
	RecordIndexerRequest("perpetualMarkets", 0, 100)
	RecordIndexerRequest("perpetualMarkets", 503, 100)

	// две серии: status="error" и status="503"
	assert.GreaterOrEqual(t, testutil.CollectAndCount(IndexerRequestDuration), 2)
}

func TestRecordRiskCalculation(t *testing.T) {
	before := testutil.ToFloat64(RiskCalculations.WithLabelValues("liquidation_price", "invalid"))
	RecordRiskCalculation("liquidation_price", "invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(RiskCalculations.WithLabelValues("liquidation_price", "invalid")))
}

func TestSetStreamConnected(t *testing.T) {
	SetStreamConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(StreamConnection))

	SetStreamConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(StreamConnection))
}
