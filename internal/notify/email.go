package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/safeher/safeher-backend/internal/models"
)

const emailChannel = "email"

// EmailNotifier delivers alerts through the Resend transactional email
// API. Each Notify call makes exactly one attempt with its own network
// timeout, so one slow recipient cannot hold up the rest of a dispatch.
type EmailNotifier struct {
	apiKey string
	from   string
	url    string
	client *http.Client
}

func NewEmailNotifier(apiKey, from, url string, timeout time.Duration) *EmailNotifier {
	return &EmailNotifier{
		apiKey: apiKey,
		from:   from,
		url:    url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (n *EmailNotifier) Channel() string {
	return emailChannel
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailResponse struct {
	ID string `json:"id"`
}

func (n *EmailNotifier) Notify(ctx context.Context, contact models.Contact, alert AlertContext) Outcome {
	outcome := Outcome{
		ContactID: contact.ID,
		Channel:   emailChannel,
	}

	if !contact.Notifiable() {
		outcome.Err = "contact has no email address"
		return outcome
	}

	payload := emailRequest{
		From:    n.from,
		To:      []string{*contact.Email},
		Subject: fmt.Sprintf("EMERGENCY ALERT from %s", alert.UserName),
		HTML:    renderBody(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		outcome.Err = fmt.Sprintf("encoding request: %v", err)
		return outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		outcome.Err = fmt.Sprintf("creating request: %v", err)
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		outcome.Err = fmt.Sprintf("sending email: %v", err)
		return outcome
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Err = fmt.Sprintf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
		return outcome
	}

	var result emailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		outcome.Err = fmt.Sprintf("decoding response: %v", err)
		return outcome
	}

	outcome.Succeeded = true
	return outcome
}

func renderBody(alert AlertContext) string {
	var b bytes.Buffer

	fmt.Fprintf(&b, `<h1>EMERGENCY ALERT</h1>`)
	fmt.Fprintf(&b, `<h2>%s needs help!</h2>`, alert.UserName)
	fmt.Fprintf(&b, `<p>This is an emergency SOS alert. %s has triggered their safety alert and may need immediate assistance.</p>`, alert.UserName)
	fmt.Fprintf(&b, `<p><strong>Location:</strong> %s</p>`, alert.Location.Text())
	if link := alert.Location.MapsLink(); link != "" {
		fmt.Fprintf(&b, `<p><a href="%s">View on Google Maps</a></p>`, link)
	}
	fmt.Fprintf(&b, `<ol><li>Try to contact %s immediately</li><li>If no response, consider calling emergency services (911)</li><li>Go to their location if safe to do so</li></ol>`, alert.UserName)
	fmt.Fprintf(&b, `<p>Alert sent at: %s<br>You received this because you are listed as a trusted contact.</p>`, alert.TriggeredAt.UTC().Format(time.RFC3339))

	return b.String()
}
