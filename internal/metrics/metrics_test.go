package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLedgerOperationCounts(t *testing.T) {
	before := testutil.ToFloat64(ledgerOperationsTotal.WithLabelValues("credit", ResultOK))
	LedgerOperation("credit", ResultOK)
	LedgerOperation("credit", ResultOK)
	after := testutil.ToFloat64(ledgerOperationsTotal.WithLabelValues("credit", ResultOK))
	assert.Equal(t, before+2, after)
}

func TestRefundRetryEnqueued(t *testing.T) {
	before := testutil.ToFloat64(refundRetriesEnqueued)
	RefundRetryEnqueued()
	assert.Equal(t, before+1, testutil.ToFloat64(refundRetriesEnqueued))
}
