package aws

import (
	"context"
	"log"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the API and the worker.
const (
	MetricOrdersCreated    = "OrdersCreated"
	MetricOrdersCancelled  = "OrdersCancelled"
	MetricPaymentsApproved = "PaymentsApproved"
	MetricPaymentsRejected = "PaymentsRejected"
	MetricCouponsRedeemed  = "CouponsRedeemed"
)

// Metrics publishes counters to CloudWatch. A nil *Metrics or one without a
// client is a no-op, so callers never have to check.
type Metrics struct {
	CW        CloudWatchAPI
	Namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics bound to namespace.
func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{CW: cw, Namespace: namespace, nowFunc: time.Now}
}

// Count records n occurrences of name. Failures are logged, never returned:
// a metrics outage must not fail an order.
func (m *Metrics) Count(ctx context.Context, name string, n float64) {
	if m == nil || m.CW == nil {
		return
	}
	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.Namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Timestamp:  sdkaws.Time(m.nowFunc()),
			Unit:       cwtypes.StandardUnitCount,
			Value:      sdkaws.Float64(n),
		}},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}
