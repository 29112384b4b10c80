package registry

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Session is the server-issued form state captured from the landing page
// together with the enumerations published on it. It is immutable once
// acquired and is shared by every concurrent year collection.
type Session struct {
	ViewState          string
	ViewStateGenerator string
	EventValidation    string
	// Regions are the municipality ids in page order.
	Regions []string
	// Filters are the property-category ids the data query is restricted to.
	Filters []string
}

// FilterParam is the comma-joined category list sent with every data query.
func (s Session) FilterParam() string {
	return strings.Join(s.Filters, ",")
}

// AcquireSession loads the landing page once and captures the session state
// needed by every later request.
func (c *Client) AcquireSession(ctx context.Context) (Session, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(defaultHeaders).
		SetHeader("Origin", c.origin).
		SetHeader("Referer", c.referer()).
		Get("/")
	if err != nil {
		c.tel.ReportBroken(report_client_acquire_session, err)
		return Session{}, &SessionError{Err: err}
	}
	if res.IsError() {
		err = fmt.Errorf("landing page status %d", res.StatusCode())
		c.tel.ReportBroken(report_client_acquire_session, err)
		return Session{}, &SessionError{Err: err}
	}

	session, err := ParseSession(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_acquire_session, err)
		return Session{}, &SessionError{Err: err}
	}

	c.tel.ReportDebug(
		"acquired session",
		"regions", len(session.Regions),
		"filters", session.FilterParam(),
	)
	return session, nil
}

// ParseSession extracts the session from the landing page markup.
func ParseSession(page []byte) (Session, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return Session{}, err
	}

	var session Session
	tokens := []struct {
		id  string
		dst *string
	}{
		{id: "__VIEWSTATE", dst: &session.ViewState},
		{id: "__VIEWSTATEGENERATOR", dst: &session.ViewStateGenerator},
		{id: "__EVENTVALIDATION", dst: &session.EventValidation},
	}
	for _, token := range tokens {
		value, exists := doc.Find(fmt.Sprintf("input#%s", token.id)).First().Attr("value")
		if !exists {
			return Session{}, fmt.Errorf("landing page is missing %s", token.id)
		}
		*token.dst = value
	}

	selector := doc.Find("select").First()
	if selector.Length() == 0 {
		return Session{}, fmt.Errorf("landing page has no region selector")
	}
	selector.Find("option").Each(func(i int, option *goquery.Selection) {
		// the first option is the "choose a municipality" placeholder
		if i == 0 {
			return
		}
		session.Regions = append(session.Regions, option.AttrOr("value", ""))
	})
	if len(session.Regions) == 0 {
		return Session{}, fmt.Errorf("region selector has no options")
	}

	fieldset := doc.Find("fieldset").Eq(2)
	definitions := fieldset.Find("dd")
	if definitions.Length() < 3 {
		return Session{}, fmt.Errorf("property category fieldset not found")
	}
	// every option of the three category groups, concatenated in page order
	for i := 0; i < 3; i++ {
		inputs := definitions.Eq(i).Find("span").First().Find("input")
		if inputs.Length() == 0 {
			return Session{}, fmt.Errorf("property category group %d has no options", i)
		}
		var missing bool
		inputs.Each(func(_ int, input *goquery.Selection) {
			value, exists := input.Attr("value")
			if !exists {
				missing = true
				return
			}
			session.Filters = append(session.Filters, value)
		})
		if missing {
			return Session{}, fmt.Errorf("property category group %d has an option without a value", i)
		}
	}

	return session, nil
}
