package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type formField struct {
	key   string
	value string
}

// encodeForm serializes fields in the given order, percent-encoding every
// value with no safe characters and leaving a trailing separator. The
// server's partial postback handler is sensitive to this exact shape.
func encodeForm(fields []formField) string {
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f.key)
		sb.WriteByte('=')
		sb.WriteString(strings.ReplaceAll(url.QueryEscape(f.value), "+", "%20"))
		sb.WriteByte('&')
	}
	return sb.String()
}

// regionPostback builds the partial page postback that selects region within
// the date range and asks the server to populate the sub-region selector.
func regionPostback(session Session, start, end, region string) string {
	return encodeForm([]formField{
		// the script manager target is sent already escaped
		{key: "ctl04", value: "ctl17%7COpstina"},
		{key: "__EVENTTARGET", value: "Opstina"},
		{key: "__EVENTARGUMENT", value: ""},
		{key: "__LASTFOCUS", value: ""},
		{key: "__VIEWSTATE", value: session.ViewState},
		{key: "__VIEWSTATEGENERATOR", value: session.ViewStateGenerator},
		{key: "__EVENTVALIDATION", value: session.EventValidation},
		{key: "DatumPocetak", value: start},
		{key: "DatumZavrsetak", value: end},
		{key: "Opstina", value: region},
		{key: "KatastarskaOpstina", value: "-1"},
		{key: "__ASYNCPOST", value: "true"},
	})
}

// ResolveSubRegions returns the cadastral municipality ids of region in the
// order the server lists them.
func (c *Client) ResolveSubRegions(ctx context.Context, session Session, start, end, region string) ([]string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(postbackHeaders).
		SetHeader("Origin", c.origin).
		SetHeader("Referer", c.referer()).
		SetBody(regionPostback(session, start, end, region)).
		Post("/")
	if err != nil {
		c.tel.ReportBroken(report_client_resolve_sub_regions, err, "region", region)
		return nil, &RegionResolutionError{Region: region, Err: err}
	}
	if res.IsError() {
		err = fmt.Errorf("status %d", res.StatusCode())
		c.tel.ReportBroken(report_client_resolve_sub_regions, err, "region", region)
		return nil, &RegionResolutionError{Region: region, Err: err}
	}

	subRegions, err := ParseSubRegions(res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_resolve_sub_regions, err, "region", region)
		return nil, &RegionResolutionError{Region: region, Err: err}
	}
	return subRegions, nil
}

// ParseSubRegions reads the option values of the sub-region selector out of a
// partial page update.
func ParseSubRegions(delta []byte) ([]string, error) {
	segments, err := parseDelta(string(delta))
	if err != nil {
		return nil, err
	}
	err = deltaError(segments)
	if err != nil {
		return nil, err
	}

	for _, segment := range segments {
		if segment.Type != "updatePanel" {
			continue
		}
		node, err := html.Parse(strings.NewReader(segment.Content))
		if err != nil {
			return nil, fmt.Errorf("parse panel %s: %w", segment.ID, err)
		}
		selector := goquery.NewDocumentFromNode(node).Find(`select[name="KatastarskaOpstina"]`).First()
		if selector.Length() == 0 {
			continue
		}

		subRegions := []string{}
		selector.Find("option").Each(func(_ int, option *goquery.Selection) {
			subRegions = append(subRegions, option.AttrOr("value", ""))
		})
		return subRegions, nil
	}
	return nil, fmt.Errorf("sub-region selector not found")
}
