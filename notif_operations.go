package netconf

import (
	"context"
	"fmt"
	"time"
)

// CreateSubscriptionOption is a optional arguments to [Session.CreateSubscription] method
type CreateSubscriptionOption interface {
	apply(req *subscriptionArgs)
}

type subscriptionArgs struct {
	stream    string
	filter    string
	startTime string
	stopTime  string
}

type stream string
type startTime time.Time
type stopTime time.Time
type subscriptionFilter string

func (o stream) apply(req *subscriptionArgs) {
	req.stream = string(o)
}
func (o startTime) apply(req *subscriptionArgs) {
	req.startTime = time.Time(o).Format(time.RFC3339)
}
func (o stopTime) apply(req *subscriptionArgs) {
	req.stopTime = time.Time(o).Format(time.RFC3339)
}
func (o subscriptionFilter) apply(req *subscriptionArgs) {
	req.filter = string(o)
}

func WithStreamOption(s string) CreateSubscriptionOption        { return stream(s) }
func WithStartTimeOption(st time.Time) CreateSubscriptionOption { return startTime(st) }
func WithStopTimeOption(et time.Time) CreateSubscriptionOption  { return stopTime(et) }
func WithFilterOption(filter string) CreateSubscriptionOption   { return subscriptionFilter(filter) }

// CreateSubscription issues the `<create-subscription>` operation as defined in [RFC5277 2.1.1]
// for initiating an event notification subscription that will send asynchronous event notifications to the initiator.
//
// This requires the device to support the [NotificationCapability] capability
//
// [RFC5277 2.1.1] https://www.rfc-editor.org/rfc/rfc5277.html#section-2.1.1
func (s *Session) CreateSubscription(ctx context.Context, opts ...CreateSubscriptionOption) error {
	if !s.serverCaps.Has(NotificationCapability) {
		return fmt.Errorf("server does not support notifications")
	}
	var args subscriptionArgs
	for _, opt := range opts {
		opt.apply(&args)
	}

	req, err := s.factory.NewCreateSubscriptionRequest(
		[]byte(args.stream),
		[]byte(args.filter),
		[]byte(args.startTime),
		[]byte(args.stopTime),
		ConstReference,
	)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}
