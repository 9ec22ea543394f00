package event

import (
	"fmt"
	"log"
	"os"

	"github.com/pricegrid/taskcore/internal/task"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailNotifier sends an alert email when a task fails. All other lifecycle
// events are ignored.
type EmailNotifier struct {
	NoopListener

	recipient string
}

func NewEmailNotifier(recipient string) *EmailNotifier {
	return &EmailNotifier{recipient: recipient}
}

func (n *EmailNotifier) OnTaskFailed(info task.Info, err error) {
	subject := fmt.Sprintf("Task %q failed", info.Name)
	body := fmt.Sprintf("Task %s (%s) failed: %v", info.ID, info.Name, err)

	fromName := os.Getenv("FROM_NAME")
	fromAddress := os.Getenv("FROM_ADDRESS")
	from := mail.NewEmail(fromName, fromAddress)
	to := mail.NewEmail("", n.recipient)
	email := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(os.Getenv("EMAIL_API_KEY"))

	response, sendErr := client.Send(email)
	if sendErr != nil {
		log.Printf("failed to send failure alert for task %s: %v", info.ID, sendErr)
		return
	}
	if response.StatusCode >= 400 {
		log.Printf("sendgrid error for task %s: status %d", info.ID, response.StatusCode)
		return
	}

	log.Printf("Failure alert sent to %s for task %s (status: %d)", n.recipient, info.ID, response.StatusCode)
}
