package eventbus_test

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/eventbus"
)

type tenantCreated struct {
	Name string
}

type tenantArchived struct {
	Name string
}

func newBus() eventbus.EventBus {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return eventbus.New(log)
}

func TestPublish_DispatchesToMatchingHandlers(t *testing.T) {
	bus := newBus()

	var created []string
	bus.Subscribe(func(e tenantCreated) {
		created = append(created, e.Name)
	})
	bus.Subscribe(func(e tenantArchived) {
		t.Fatalf("archived handler should not fire, got %q", e.Name)
	})

	bus.Publish(tenantCreated{Name: "acme"})
	require.Equal(t, []string{"acme"}, created)
}

func TestPublishE_CollectsHandlerErrors(t *testing.T) {
	bus := newBus()

	wantErr := errors.New("projection out of date")
	bus.Subscribe(func(tenantCreated) error { return wantErr })
	bus.Subscribe(func(tenantCreated) error { return nil })

	err := bus.PublishE(tenantCreated{Name: "acme"})
	require.ErrorIs(t, err, wantErr)
}

func TestPublishE_NoSubscribers(t *testing.T) {
	bus := newBus()
	err := bus.PublishE(tenantCreated{Name: "acme"})
	require.ErrorIs(t, err, eventbus.ErrNoSubscribers)
}

func TestPublishE_InvalidReturnSignature(t *testing.T) {
	bus := newBus()
	bus.Subscribe(func(tenantCreated) string { return "not an error" })

	err := bus.PublishE(tenantCreated{Name: "acme"})
	require.ErrorIs(t, err, eventbus.ErrInvalidHandlerReturn)
}

func TestPublish_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := newBus()

	var reached bool
	bus.Subscribe(func(tenantCreated) { panic("boom") })
	bus.Subscribe(func(tenantCreated) { reached = true })

	bus.Publish(tenantCreated{Name: "acme"})
	require.True(t, reached)
}

func TestPublishE_PanicReportedAsError(t *testing.T) {
	bus := newBus()
	bus.Subscribe(func(tenantCreated) error { panic("boom") })

	err := bus.PublishE(tenantCreated{Name: "acme"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func TestSubscribe_InterfaceParameterMatchesImplementations(t *testing.T) {
	bus := newBus()

	var got error
	bus.Subscribe(func(e error) { got = e })

	want := errors.New("wrapped failure")
	bus.Publish(want)
	require.Equal(t, want, got)
}

func TestUnsubscribe_RemovesHandler(t *testing.T) {
	bus := newBus()

	var calls int
	handler := func(tenantCreated) { calls++ }
	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Unsubscribe(handler)
	require.Equal(t, 0, bus.SubscribersCount())

	bus.Publish(tenantCreated{Name: "acme"})
	require.Equal(t, 0, calls)
}

func TestClear_DropsAllHandlers(t *testing.T) {
	bus := newBus()
	bus.Subscribe(func(tenantCreated) {})
	bus.Subscribe(func(tenantArchived) {})
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}
