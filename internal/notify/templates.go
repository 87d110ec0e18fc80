package notify

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"pounds": FormatPounds,
}

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(funcs).Parse(`Hi {{.PurchaserName}},

Thank you for your order. You have bought {{.NumTickets}} ticket{{if ne .NumTickets 1}}s{{end}} for {{.Conference}}.

{{if .TicketForSelf}}Your ticket: {{.TicketForSelf}}
{{end}}
{{if .TicketsForOthers}}We have emailed invitations to claim the other tickets to:
{{range .TicketsForOthers}}    {{.EmailAddr}} ({{.Descr}})
{{end}}{{end}}

Total paid: {{pounds .TotalInclVAT}} (including VAT of {{pounds .VAT}})

You can view your receipt at:

    {{.ReceiptURL}}

~ The {{.Conference}} team
`))

var invitationTmpl = template.Must(template.New("invitation").Parse(`Hello!

{{if .PurchaserName}}{{.PurchaserName}} has purchased you a ticket for {{.Conference}}.{{else}}You have been assigned a ticket for {{.Conference}}.{{end}}

Please click here to claim your ticket:

    {{.ClaimURL}}

We look forward to seeing you in Cardiff!

~ The {{.Conference}} team
`))

var blankLines = regexp.MustCompile(`\n\n\n+`)

type OtherTicket struct {
	EmailAddr string
	Descr     string
}

type ConfirmationData struct {
	Conference       string
	OrderID          string
	PurchaserName    string
	NumTickets       int
	TicketForSelf    string
	TicketsForOthers []OtherTicket
	TotalInclVAT     int64
	VAT              int64
	ReceiptURL       string
}

type InvitationData struct {
	Conference    string
	TicketID      string
	PurchaserName string
	ClaimURL      string
}

// OrderConfirmation renders the email sent to the purchaser once paid.
func OrderConfirmation(data ConfirmationData) (subject, body string, err error) {
	body, err = render(confirmationTmpl, data)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%s order confirmation (%s)", data.Conference, data.OrderID), body, nil
}

// Invitation renders the email inviting someone to claim a ticket. An empty
// PurchaserName gives the wording for staff-issued free tickets.
func Invitation(data InvitationData) (subject, body string, err error) {
	body, err = render(invitationTmpl, data)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%s ticket invitation (%s)", data.Conference, data.TicketID), body, nil
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(buf.String(), "\n\n")) + "\n", nil
}

// FormatPounds renders pence as "£150.00".
func FormatPounds(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s£%d.%02d", sign, pence/100, pence%100)
}
