package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientArguments is returned when neither a prebuilt message
	// nor both subject and body are provided.
	ErrInsufficientArguments = errors.New(`insufficient arguments: provide a message or both subject and body`)
	// ErrDelivery classifies authentication and transport failures.
	ErrDelivery = errors.New("delivery fault")
	// ErrConfig is returned for an unusable SMTP configuration.
	ErrConfig = errors.New("invalid smtp config")
)

// DeliveryError describes a message that could not be handed to the server.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("send mail to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDelivery, e.Err} }

// DefaultPort is the mail submission port (STARTTLS).
const DefaultPort = 587

// Config is the submission account. It is always supplied from outside.
type Config struct {
	ServerAddress    string
	Port             int // DefaultPort when 0
	SenderAddress    string
	SenderCredential string
	Timeout          time.Duration
}

type deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Notifier sends plain-text emails through an SMTP server.
type Notifier struct {
	cfg    Config
	client deliverer
	log    *zap.Logger
}

// New validates cfg and prepares an SMTP client. No connection is made
// until the first send.
func New(cfg Config, log *zap.Logger) (*Notifier, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ServerAddress == "" || cfg.SenderAddress == "" {
		return nil, fmt.Errorf("%w: server and sender address are required", ErrConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.SenderCredential != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SenderAddress),
			mail.WithPassword(cfg.SenderCredential),
		)
	}
	client, err := mail.NewClient(cfg.ServerAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &Notifier{cfg: cfg, client: client, log: log}, nil
}

// Compose builds a plain-text message from the configured sender to to.
func (n *Notifier) Compose(to, subject, body string) (*mail.Msg, error) {
	if subject == "" || body == "" {
		return nil, ErrInsufficientArguments
	}
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.SenderAddress); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// Send composes and delivers a message.
func (n *Notifier) Send(ctx context.Context, to, subject, body string) error {
	msg, err := n.Compose(to, subject, body)
	if err != nil {
		return err
	}
	return n.SendMessage(ctx, to, msg)
}

// SendMessage delivers a prebuilt message. The recipient and the sender
// are filled in only when the message does not carry them already.
func (n *Notifier) SendMessage(ctx context.Context, to string, msg *mail.Msg) error {
	if msg == nil {
		return ErrInsufficientArguments
	}
	if rcpts, err := msg.GetRecipients(); err != nil || len(rcpts) == 0 {
		if err := msg.To(to); err != nil {
			return fmt.Errorf("set recipient: %w", err)
		}
	}
	if _, err := msg.GetSender(false); err != nil {
		if err := msg.From(n.cfg.SenderAddress); err != nil {
			return fmt.Errorf("set sender: %w", err)
		}
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		n.log.Error("email delivery failed", zap.String("to", to), zap.Error(err))
		return &DeliveryError{To: to, Err: err}
	}
	n.log.Info("email sent", zap.String("to", to), zap.Strings("subject", msg.GetGenHeader(mail.HeaderSubject)))
	return nil
}
