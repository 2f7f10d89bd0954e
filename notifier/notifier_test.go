package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeDeliverer struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeDeliverer) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func newTestNotifier(t *testing.T, d deliverer) *Notifier {
	t.Helper()
	n, err := New(Config{
		ServerAddress:    "smtp.example.com",
		SenderAddress:    "bot@example.com",
		SenderCredential: "s3cret",
	}, nil)
	require.NoError(t, err)
	n.client = d
	return n
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{SenderAddress: "bot@example.com"}, nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(Config{ServerAddress: "smtp.example.com"}, nil)
	assert.ErrorIs(t, err, ErrConfig)

	n, err := New(Config{ServerAddress: "smtp.example.com", SenderAddress: "bot@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, n.cfg.Port)
}

func TestComposeRequiresSubjectAndBody(t *testing.T) {
	n := newTestNotifier(t, &fakeDeliverer{})

	_, err := n.Compose("me@example.com", "", "body")
	assert.ErrorIs(t, err, ErrInsufficientArguments)
	_, err = n.Compose("me@example.com", "subject", "")
	assert.ErrorIs(t, err, ErrInsufficientArguments)

	msg, err := n.Compose("me@example.com", "Price drop", "now 850.00")
	require.NoError(t, err)
	assert.Equal(t, []string{"Price drop"}, msg.GetGenHeader(mail.HeaderSubject))

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"me@example.com"}, rcpts)
}

func TestSend(t *testing.T) {
	d := &fakeDeliverer{}
	n := newTestNotifier(t, d)

	require.NoError(t, n.Send(context.Background(), "me@example.com", "Price drop", "now 850.00"))
	require.Len(t, d.sent, 1)

	from, err := d.sent[0].GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", from)
}

func TestSendPrebuiltMessage(t *testing.T) {
	d := &fakeDeliverer{}
	n := newTestNotifier(t, d)

	msg := mail.NewMsg()
	msg.Subject("Weekly summary")
	msg.SetBodyString(mail.TypeTextPlain, "nothing changed")

	require.NoError(t, n.SendMessage(context.Background(), "me@example.com", msg))
	require.Len(t, d.sent, 1)

	rcpts, err := d.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"me@example.com"}, rcpts)

	assert.ErrorIs(t, n.SendMessage(context.Background(), "me@example.com", nil), ErrInsufficientArguments)
}

func TestSendDeliveryFault(t *testing.T) {
	authErr := errors.New("535 authentication failed")
	n := newTestNotifier(t, &fakeDeliverer{err: authErr})

	err := n.Send(context.Background(), "me@example.com", "Price drop", "now 850.00")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, authErr)

	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "me@example.com", derr.To)
}
