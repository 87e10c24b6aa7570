package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

type consoleService struct {
	conf             *core.Config
	defaultFromEmail mail.Address
	subjPrefix       string
	out              *log.Logger
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService prints the messages instead of sending them. Used in DEV.
func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		conf:             conf,
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
		out:              log.New(os.Stdout, "EMAIL : ", log.LstdFlags),
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if _, err := svc.sendMessage(msg); err != nil {
				svc.out.Printf("%+v", err)
			}
		}(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) (bool, error) {
	if err := msg.Render(svc.conf); err != nil {
		return false, errors.Wrap(err, "rendering email")
	}
	if !(msg.HasRecipients() && msg.HasContent()) {
		return false, nil
	}
	body, err := svc.format(*msg)
	if err != nil {
		return false, err
	}
	if svc.out != nil {
		svc.out.Println(body)
	}
	return true, nil
}

func (svc consoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		if w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}}); err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}

	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock renders and records messages synchronously, without output.
type ConsoleServiceMock struct {
	consoleService
	mu           sync.Mutex
	SentMessages []core.EmailMessage
}

var _ core.EmailService = (*ConsoleServiceMock)(nil)

func NewConsoleServiceMock(conf *core.Config) *ConsoleServiceMock {
	return &ConsoleServiceMock{
		consoleService: consoleService{
			conf:             conf,
			defaultFromEmail: conf.DefaultFromEmail(),
			subjPrefix:       "[" + conf.AppName + "] ",
		},
	}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		sent, err := svc.sendMessage(msg)
		if err != nil {
			panic(err)
		}
		if sent {
			svc.mu.Lock()
			svc.SentMessages = append(svc.SentMessages, *msg)
			svc.mu.Unlock()
		}
	}
}

func (svc *ConsoleServiceMock) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.SentMessages...)
}
