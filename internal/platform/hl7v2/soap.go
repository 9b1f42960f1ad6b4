package hl7v2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/ehr/fits/internal/domain/forecast"
)

const (
	// SOAPAction is sent with every submitSingleMessage call.
	SOAPAction = `"http://tempuri.org/ExecuteHL7Message"`

	soapContentType = "text/xml; charset=utf-8"

	// maxReplySize bounds how much of a reply body is read.
	maxReplySize = 4 << 20
)

// ErrNoMessage is returned when a reply envelope does not contain an HL7
// message header.
var ErrNoMessage = errors.New("hl7v2: reply contains no HL7 message")

// ErrReplyTooLarge is returned when a reply body exceeds the read limit.
var ErrReplyTooLarge = errors.New("hl7v2: reply too large")

// Transport carries one HL7 message to the target and returns its reply.
type Transport interface {
	Send(ctx context.Context, sw forecast.Software, message string) (string, error)
}

var envelope = template.Must(template.New("soap").Funcs(template.FuncMap{"xml": escapeXML}).Parse(
	`<?xml version='1.0' encoding='UTF-8'?>` +
		`<Envelope xmlns="http://www.w3.org/2003/05/soap-envelope"><Header /><Body>` +
		`<submitSingleMessage xmlns="urn:cdc:iisb:2011">` +
		`<username>{{xml .UserID}}</username>` +
		`<password>{{xml .Password}}</password>` +
		`<facilityID>{{xml .FacilityID}}</facilityID>` +
		`<hl7Message>{{xml .Message}}</hl7Message>` +
		`</submitSingleMessage></Body></Envelope>`))

type envelopeData struct {
	UserID     string
	Password   string
	FacilityID string
	Message    string
}

// SOAPTransport posts HL7 messages in the CDC IIS submitSingleMessage
// envelope.
type SOAPTransport struct {
	client *http.Client
}

// NewSOAPTransport returns a transport using client, or
// http.DefaultClient when client is nil.
func NewSOAPTransport(client *http.Client) *SOAPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &SOAPTransport{client: client}
}

// BuildEnvelope wraps message and the software credentials.
func BuildEnvelope(sw forecast.Software, message string) (string, error) {
	var buf bytes.Buffer
	err := envelope.Execute(&buf, envelopeData{
		UserID:     sw.UserID,
		Password:   sw.Password,
		FacilityID: sw.FacilityID,
		Message:    message,
	})
	if err != nil {
		return "", fmt.Errorf("hl7v2: build envelope: %w", err)
	}
	return buf.String(), nil
}

// Send performs one POST and returns the HL7 text found in the reply.
func (t *SOAPTransport) Send(ctx context.Context, sw forecast.Software, message string) (string, error) {
	body, err := BuildEnvelope(sw, message)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sw.ServiceURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("hl7v2: create request: %w", err)
	}
	req.Header.Set("Content-Type", soapContentType)
	req.Header.Set("SOAPAction", SOAPAction)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hl7v2: post to %s: %w", sw.ServiceURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize+1))
	if err != nil {
		return "", fmt.Errorf("hl7v2: read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("hl7v2: %s returned status %d", sw.ServiceURL, resp.StatusCode)
	}
	if len(raw) > maxReplySize {
		return "", fmt.Errorf("%w: more than %d bytes", ErrReplyTooLarge, maxReplySize)
	}
	return ExtractMessage(string(raw))
}

// ExtractMessage pulls the HL7 message out of a reply envelope. Lines are
// rejoined with \r, the text from the first "MSH|" up to the next closing
// tag is kept and entity escapes are reversed.
func ExtractMessage(body string) (string, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.Join(strings.Split(body, "\n"), "\r")

	start := strings.Index(body, "MSH|")
	if start < 0 {
		return "", ErrNoMessage
	}
	msg := body[start:]
	if end := strings.Index(msg, "</"); end >= 0 {
		msg = msg[:end]
	}
	msg = strings.TrimSuffix(msg, "]]>")
	return unescapeXML(msg), nil
}

var (
	xmlEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
)

func escapeXML(s string) string   { return xmlEscaper.Replace(s) }
func unescapeXML(s string) string { return xmlUnescaper.Replace(s) }
