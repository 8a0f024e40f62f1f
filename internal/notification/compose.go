package notification

import (
	"bytes"
	"fmt"
	"html"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// Role identifies the recipient of a message
type Role string

const (
	RoleBidder Role = "bidder"
	RoleAdmin  Role = "admin"
)

// Message is one composed email
type Message struct {
	Role    Role
	To      string
	Subject string
	HTML    string
}

var (
	bidderTemplates = map[Kind]*template.Template{
		KindCreated: template.Must(template.New("created").Parse(
			`<p>You have successfully placed a new bid of <b>{{.Amount}}</b> for "{{.Title}}".</p>` +
				`<p>We will notify you of any updates.</p><p>Thank you,</p><p>{{.Team}}</p>`)),
		KindUpdated: template.Must(template.New("updated").Parse(
			`<p>Your bid for "{{.Title}}" has been updated from <b>{{.PreviousAmount}}</b> to <b>{{.Amount}}</b>.</p>` +
				`<p>Thank you,</p><p>{{.Team}}</p>`)),
		KindWithdrawn: template.Must(template.New("withdrawn").Parse(
			`<p>Your bid of <b>{{.Amount}}</b> for "{{.Title}}" has been successfully withdrawn.</p>` +
				`<p>If you did not initiate this, please contact us immediately.</p><p>Thank you,</p><p>{{.Team}}</p>`)),
	}

	adminTemplate = template.Must(template.New("admin").Parse(
		`<p>An action occurred on a bid:</p><ul>` +
			`<li><b>Bid ID:</b> {{.BidID}}</li>` +
			`<li><b>Opportunity:</b> {{.Title}}</li>` +
			`<li><b>Bid Amount:</b> {{.Amount}}</li>` +
			`<li><b>Bidder Email:</b> {{.BidderEmail}}</li>` +
			`<li><b>Action:</b> {{.Action}}</li>` +
			`</ul>{{.BidderBody}}`))

	subjectPrefixes = map[Kind]string{
		KindCreated:   "New Bid Placed",
		KindUpdated:   "Bid Updated",
		KindWithdrawn: "Bid Withdrawn",
	}
)

type messageData struct {
	BidID          string
	Title          string
	Amount         string
	PreviousAmount string
	BidderEmail    string
	Action         string
	Team           string
	BidderBody     template.HTML
}

// Composer renders the bidder confirmation and the administrator summary of a change
type Composer struct {
	brand      string
	adminTag   string
	adminEmail string
	text       *bluemonday.Policy
	markup     *bluemonday.Policy
}

// NewComposer creates a Composer. brand signs the bidder messages, adminTag
// prefixes administrator subjects.
func NewComposer(brand, adminTag, adminEmail string) *Composer {
	return &Composer{
		brand:      brand,
		adminTag:   adminTag,
		adminEmail: adminEmail,
		text:       bluemonday.StrictPolicy(),
		markup:     bluemonday.UGCPolicy(),
	}
}

// Compose builds the two messages for ev. It returns nothing for ignored changes.
func (c *Composer) Compose(ev Event, bidderEmail string) ([]Message, error) {
	kind := ev.Kind()
	tmpl, ok := bidderTemplates[kind]
	if !ok {
		return nil, nil
	}

	bid := ev.Current()
	title := c.plain(bid.OpportunityTitle)
	if title == "" {
		title = bid.OpportunityID
	}

	data := messageData{
		BidID:       ev.BidID,
		Title:       title,
		Amount:      money(bid.Amount),
		BidderEmail: bidderEmail,
		Action:      kind.Action(),
		Team:        c.brand + " Team",
	}
	if kind == KindUpdated {
		data.PreviousAmount = money(ev.Before.Amount)
	}

	var bidderBody bytes.Buffer
	if err := tmpl.Execute(&bidderBody, data); err != nil {
		return nil, fmt.Errorf("render %s message: %w", kind, err)
	}
	data.BidderBody = template.HTML(bidderBody.String())

	var adminBody bytes.Buffer
	if err := adminTemplate.Execute(&adminBody, data); err != nil {
		return nil, fmt.Errorf("render admin summary: %w", err)
	}

	subject := fmt.Sprintf("%s: %s", subjectPrefixes[kind], title)
	return []Message{
		{
			Role:    RoleBidder,
			To:      bidderEmail,
			Subject: subject,
			HTML:    c.markup.Sanitize(bidderBody.String()),
		},
		{
			Role:    RoleAdmin,
			To:      c.adminEmail,
			Subject: fmt.Sprintf("[%s Admin] %s by %s", c.adminTag, subject, bidderEmail),
			HTML:    c.markup.Sanitize(adminBody.String()),
		},
	}, nil
}

// plain strips any markup from user-supplied text
func (c *Composer) plain(s string) string {
	return html.UnescapeString(c.text.Sanitize(s))
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
