package lilac

import (
	"fmt"
	"os/exec"
	"strings"
)

// MailSender delivers reports to maintainers and the repository admin.
type MailSender interface {
	Send(to []string, subject, body string) error
}

// SendmailSender pipes RFC822 text into the local sendmail.
type SendmailSender struct {
	From string
	Exec *Executor
}

func (s *SendmailSender) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("mail without recipients: %s", subject)
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\n", s.From)
	fmt.Fprintf(&msg, "To: %s\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\n\n")
	msg.WriteString(body)

	cmd := exec.Command("sendmail", "-t", "-oi")
	cmd.Stdin = strings.NewReader(msg.String())
	if err := s.Exec.Run(cmd); err != nil {
		return fmt.Errorf("sendmail failed: %w", err)
	}
	return nil
}

// reportToMaintainers mails every maintainer of the recipe that has an
// email address; maintainers with only a handle are not mailed. Reporting is
// best effort: a mail failure is logged and swallowed so it never turns
// into a build failure.
func (c *Cycle) reportToMaintainers(r *Recipe, subject, body string) {
	if c.mail == nil || r == nil {
		return
	}
	var to []string
	for _, m := range r.Maintainers {
		if m.Email != "" {
			to = append(to, formatAddress(m))
		}
	}
	if len(to) == 0 {
		colWarn.Printf("%s: no maintainer addresses to report to\n", r.PkgBase)
		return
	}
	subject = fmt.Sprintf("[%s] %s", c.cfg.Get("repository.name"), subject)
	if err := c.mail.Send(to, subject, body); err != nil {
		colError.Printf("failed to mail maintainers of %s: %v\n", r.PkgBase, err)
	}
}

// reportRuntimeError mails the repository admin about a whole-cycle
// problem that is not attributable to a single package.
func (c *Cycle) reportRuntimeError(err error) {
	colError.Printf("runtime error: %v\n", err)
	if c.mail == nil {
		return
	}
	admin := c.cfg.Get("lilac.email")
	if admin == "" {
		return
	}
	subject := fmt.Sprintf("[%s] runtime error", c.cfg.Get("repository.name"))
	body := fmt.Sprintf("The build cycle hit an error not attributable to a single package:\n\n%v\n", err)
	if mailErr := c.mail.Send([]string{admin}, subject, body); mailErr != nil {
		colError.Printf("failed to mail admin: %v\n", mailErr)
	}
}

func formatAddress(m Maintainer) string {
	if m.Name != "" {
		return fmt.Sprintf("%s <%s>", m.Name, m.Email)
	}
	return m.Email
}
