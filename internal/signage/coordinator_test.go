package signage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

func TestSetDisplayLandsInWaitingPayment(t *testing.T) {
	c := NewCoordinator()
	slot := c.SetDisplay(1, "data:image/png;base64,...", 5000)
	assert.Equal(t, domain.SignageWaitingPayment, slot.Status)

	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, domain.SignageWaitingPayment, got.Status)
}

func TestMarkPaidFromWaitingPayment(t *testing.T) {
	c := NewCoordinator()
	c.SetDisplay(1, "qr", 100)

	slot, ok := c.MarkPaid(1)
	assert.True(t, ok)
	assert.Equal(t, domain.SignagePaid, slot.Status)
}

// A paid slot cannot return to
// waiting_payment without an intervening set_display, and a duplicate or
// late MarkPaid on an absent/already-past slot is a no-op.
func TestMarkPaidIsNoOpWhenAbsent(t *testing.T) {
	c := NewCoordinator()
	_, ok := c.MarkPaid(99)
	assert.False(t, ok)
}

func TestMarkPaidDoesNotResurrectAckedSlot(t *testing.T) {
	c := NewCoordinator()
	c.SetDisplay(1, "qr", 100)
	c.MarkPaid(1)
	c.Ack(1)

	_, ok := c.MarkPaid(1)
	assert.False(t, ok, "a second payment callback must not move an acked slot backwards")

	slot, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, domain.SignageAcked, slot.Status)
}

func TestCancelOnlyRemovesWaitingPaymentSlot(t *testing.T) {
	c := NewCoordinator()
	c.SetDisplay(1, "qr", 100)
	c.MarkPaid(1)

	ok := c.Cancel(1)
	assert.False(t, ok, "cancel must not remove a slot already past waiting_payment")

	_, stillThere := c.Get(1)
	assert.True(t, stillThere)
}

func TestAckOnlyFromPaid(t *testing.T) {
	c := NewCoordinator()
	c.SetDisplay(1, "qr", 100)

	ok := c.Ack(1)
	assert.False(t, ok, "ack before a payment callback must be rejected")
}

func TestSetDisplayResetsAStaleSlot(t *testing.T) {
	c := NewCoordinator()
	c.SetDisplay(1, "qr-old", 100)
	c.MarkPaid(1)
	c.Ack(1)

	slot := c.SetDisplay(1, "qr-new", 200)
	assert.Equal(t, domain.SignageWaitingPayment, slot.Status)
	assert.Equal(t, "qr-new", slot.QRImage)
}

func TestCoordinatorConcurrentAccess(t *testing.T) {
	c := NewCoordinator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c.SetDisplay(n%5, "qr", 100)
			c.MarkPaid(n % 5)
		}(int64(i))
	}
	wg.Wait()
}
