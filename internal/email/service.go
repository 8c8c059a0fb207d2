package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/praxisboard/board-api/internal/config"
	"github.com/praxisboard/board-api/pkg/logger"
)

// Service sends transactional account mail over SMTP. Patient-facing
// follow-ups go through the configured webhook instead, not through here.
type Service struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewService(cfg config.SMTPConfig, log *logger.Logger) *Service {
	return &Service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: log,
	}
}

// SendWelcome mails the initial credentials notice to a freshly created
// account.
func (s *Service) SendWelcome(to, displayName string) error {
	name := displayName
	if name == "" {
		name = to
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your practice board account")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nan account has been created for you on the practice board. You can sign in with this email address.\n",
		name,
	))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send welcome mail: %w", err)
	}

	s.logger.Info("welcome mail sent", "to", to)
	return nil
}
