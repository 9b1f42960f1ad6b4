package hl7v2

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const soapReplyTemplate = `<?xml version='1.0' encoding='UTF-8'?>` +
	`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<submitSingleMessageResponse xmlns="urn:cdc:iisb:2011"><return>%s</return></submitSingleMessageResponse>` +
	`</soap:Body></soap:Envelope>`

// Handler exposes the IIS simulator over HTTP.
type Handler struct {
	sim *IISSimulator
}

// NewHandler creates a handler for sim.
func NewHandler(sim *IISSimulator) *Handler {
	return &Handler{sim: sim}
}

// RegisterRoutes registers the simulator endpoints on the provided group.
//
//	POST /iis/soap     - submitSingleMessage SOAP endpoint
//	POST /hl7v2/parse  - Parse an HL7v2 message to JSON
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/iis/soap", h.SubmitSingleMessage)
	g.POST("/hl7v2/parse", h.ParseMessage)
}

// SubmitSingleMessage handles POST /iis/soap. The reply message is returned
// escaped inside a submitSingleMessageResponse envelope.
func (h *Handler) SubmitSingleMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxReplySize))
	if err != nil {
		return c.String(http.StatusBadRequest, "failed to read request body")
	}

	text, err := ExtractMessage(string(body))
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	msg, err := Parse([]byte(text))
	if err != nil {
		return c.String(http.StatusBadRequest, "failed to parse HL7v2 message: "+err.Error())
	}

	reply := h.sim.Handle(c.Request().Context(), msg)
	out := escapeXML(string(SerializeMessage(reply)))
	return c.Blob(http.StatusOK, soapContentType, []byte(fmt.Sprintf(soapReplyTemplate, out)))
}

// segmentJSON is the JSON representation of a parsed segment.
type segmentJSON struct {
	Name   string      `json:"name"`
	Fields []fieldJSON `json:"fields"`
}

// fieldJSON is the JSON representation of a parsed field.
type fieldJSON struct {
	Value      string     `json:"value"`
	Components []string   `json:"components,omitempty"`
	Repeats    [][]string `json:"repeats,omitempty"`
}

// ParseMessage handles POST /hl7v2/parse. It reads raw HL7v2 from the
// request body and returns parsed JSON, which helps when inspecting what a
// connector sent.
func (h *Handler) ParseMessage(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	if len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request body is empty",
		})
	}

	msg, err := Parse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to parse HL7v2 message: " + err.Error(),
		})
	}

	segments := make([]segmentJSON, len(msg.Segments))
	for i, seg := range msg.Segments {
		fields := make([]fieldJSON, len(seg.Fields))
		for j, f := range seg.Fields {
			fields[j] = fieldJSON{
				Value:      f.Value,
				Components: f.Components,
				Repeats:    f.Repeats,
			}
		}
		segments[i] = segmentJSON{
			Name:   seg.Name,
			Fields: fields,
		}
	}

	result := map[string]interface{}{
		"type":         msg.Type,
		"controlId":    msg.ControlID,
		"version":      msg.Version,
		"timestamp":    msg.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		"sendingApp":   msg.SendingApp,
		"sendingFac":   msg.SendingFac,
		"receivingApp": msg.ReceivingApp,
		"receivingFac": msg.ReceivingFac,
		"patientId":    msg.PatientID(),
		"segments":     segments,
	}

	return c.JSON(http.StatusOK, result)
}
