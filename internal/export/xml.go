package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/FranksOps/companyfinder/internal/record"
)

type xmlCompanies struct {
	XMLName   xml.Name     `xml:"companies"`
	Count     int          `xml:"count,attr"`
	Companies []xmlCompany `xml:"company"`
}

// xmlCompany omits absent fields rather than writing empty elements.
type xmlCompany struct {
	CompanyName string  `xml:"companyName"`
	SearchQuery string  `xml:"searchQuery"`
	ResultTitle *string `xml:"resultTitle,omitempty"`
	LinkedinURL *string `xml:"linkedinUrl,omitempty"`
	Timestamp   string  `xml:"timestamp"`
}

func writeXML(records []record.Record, path string) error {
	doc := xmlCompanies{Count: len(records)}
	for _, r := range records {
		doc.Companies = append(doc.Companies, xmlCompany{
			CompanyName: r.CompanyName(),
			SearchQuery: r.SearchQuery(),
			ResultTitle: ptr(r.ResultTitle().Get()),
			LinkedinURL: ptr(r.LinkedinURL().Get()),
			Timestamp:   r.Timestamp().Format(record.TimeFormat),
		})
	}
	return writeXMLDoc(path, "xml", doc)
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link,omitempty"`
	Description string  `xml:"description"`
	Category    string  `xml:"category"`
	GUID        rssGUID `xml:"guid"`
	PubDate     string  `xml:"pubDate"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// writeRSS writes an RSS 2.0 feed with one item per record. Items link to
// the company page when one was found.
func writeRSS(records []record.Record, path string, now time.Time) error {
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:         "LinkedIn company pages",
			Link:          "https://www.linkedin.com/",
			Description:   fmt.Sprintf("LinkedIn company page lookups for %d companies", len(records)),
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
		},
	}

	for _, r := range records {
		item := rssItem{
			Title:       r.CompanyName(),
			Description: "No LinkedIn company page found",
			Category:    "missing",
			PubDate:     r.Timestamp().Format(time.RFC1123Z),
		}
		if u, ok := r.LinkedinURL().Get(); ok {
			item.Link = u
			item.Category = "matched"
			item.Description = r.ResultTitle().OrElse(u)
			item.GUID = rssGUID{IsPermaLink: true, Value: u}
		} else {
			item.GUID = rssGUID{Value: r.SearchQuery()}
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}
	return writeXMLDoc(path, "rss", doc)
}

func writeXMLDoc(path, format string, doc any) error {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export: %s: %w", format, err)
	}
	out := append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("export: %s: %w", format, err)
	}
	return nil
}

func ptr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
