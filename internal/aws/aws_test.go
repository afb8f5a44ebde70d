package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	last *sqs.SendMessageInput
	err  error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.last = in
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type mockCW struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCW) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestPublisher_Send(t *testing.T) {
	m := &mockSQS{}
	p := NewPublisher(m, "http://queue/payments")

	err := p.Send(context.Background(), map[string]string{"payment_id": "123"}, map[string]string{
		"payment_id":     "123",
		"correlation_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *m.last.QueueUrl != "http://queue/payments" {
		t.Fatalf("queue url mismatch: %s", *m.last.QueueUrl)
	}
	if *m.last.MessageBody != `{"payment_id":"123"}` {
		t.Fatalf("body mismatch: %s", *m.last.MessageBody)
	}
	if _, ok := m.last.MessageAttributes["correlation_id"]; ok {
		t.Fatalf("empty attribute should be skipped")
	}
	if v := m.last.MessageAttributes["payment_id"]; *v.StringValue != "123" {
		t.Fatalf("attribute mismatch: %+v", v)
	}
}

func TestPublisher_SendError(t *testing.T) {
	p := NewPublisher(&mockSQS{err: errors.New("boom")}, "q")
	if err := p.Send(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMetrics_Count(t *testing.T) {
	cw := &mockCW{}
	m := NewMetrics(cw, "Storefront")
	m.Count(context.Background(), MetricOrdersCreated, 1)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	if *cw.calls[0].Namespace != "Storefront" || *cw.calls[0].MetricData[0].MetricName != MetricOrdersCreated {
		t.Fatalf("unexpected datum: %+v", cw.calls[0])
	}

	// failures and nil receivers are swallowed
	NewMetrics(&mockCW{err: errors.New("down")}, "x").Count(context.Background(), "y", 1)
	var nilMetrics *Metrics
	nilMetrics.Count(context.Background(), "y", 1)
}
