package notify

import (
	"context"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Multi fans out to several sinks. Delivery succeeds if any sink accepts.
type Multi struct {
	notifiers []Notifier
	alerters  []Alerter
}

// NewMulti builds a fan-out over sinks. Each sink is used as a Notifier,
// an Alerter, or both, depending on what it implements.
func NewMulti(sinks ...interface{}) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if n, ok := s.(Notifier); ok {
			m.notifiers = append(m.notifiers, n)
		}
		if a, ok := s.(Alerter); ok {
			m.alerters = append(m.alerters, a)
		}
	}
	return m
}

func (m *Multi) Notify(ctx context.Context, message, action string) (bool, error) {
	var (
		delivered bool
		errs      []error
	)
	for _, n := range m.notifiers {
		ok, err := n.Notify(ctx, message, action)
		if err != nil {
			errs = append(errs, err)
		}
		delivered = delivered || ok
	}
	return delivered, perrors.Join(errs...)
}

func (m *Multi) Alert(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Alert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return perrors.Join(errs...)
}
