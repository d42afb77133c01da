package email

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured = errors.New("email service not configured")
	ErrSendFailed    = errors.New("failed to send email")
)

// ResendClient sends transactional mail through the Resend API.
type ResendClient struct {
	apiKey string
	from   string
}

func NewResendClient(apiKey, from string) *ResendClient {
	return &ResendClient{apiKey: apiKey, from: from}
}

func (c *ResendClient) IsConfigured() bool {
	return c.apiKey != "" && c.from != ""
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (c *ResendClient) SendEmail(to, subject, htmlContent string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	reqBody := sendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlContent,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", "https://api.resend.com/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status code %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// SendReceipt mails a purchase receipt for an activated subscription.
func (c *ResendClient) SendReceipt(to, planType string, amountCents int, currency string) error {
	subject := "Your PhotoFix Pro receipt"
	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f4f4f4;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 40px 0;">
                <table role="presentation" style="width: 600px; background-color: #ffffff; border-radius: 8px;">
                    <tr>
                        <td style="padding: 40px; text-align: center;">
                            <h1 style="margin: 0; color: #333333; font-size: 24px;">Thanks for upgrading!</h1>
                            <p style="color: #666666; font-size: 16px;">Your %s Pro plan is now active.</p>
                            <p style="color: #333333; font-size: 20px; font-weight: bold;">%d.%02d %s</p>
                            <p style="color: #999999; font-size: 14px;">You now get 100 AI edits per day plus access to every Pro operation.</p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`, planType, amountCents/100, amountCents%100, currency)

	return c.SendEmail(to, subject, htmlContent)
}
