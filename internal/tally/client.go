// Package tally implements the ingestion engine that copies accounting data
// from a Tally ERP instance into a relational analytics warehouse: the
// HTTP/XML source client, the voucher parser, and the master-data parser.
//
// Usage:
//
//	cfg := config.MustLoad()
//	client := tally.NewClient(cfg.Tally, tally.WithLogger(logger))
//
//	ctx := context.Background()
//	raw, err := client.FetchVouchers(ctx, from, to, "")
//	if err != nil {
//	    log.Error("failed to fetch vouchers", "error", err)
//	}
package tally

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
)

// Request types understood by the Tally gateway.
const (
	requestExportData = "Export Data"
)

// Report identifiers. Voucher fetches MUST use "Voucher Register" — Tally's
// "Day Book" report ignores SVFROMDATE/SVTODATE and would silently break the
// date-windowed driver and its client-side filter. No DayBook-fetching
// method exists in this package.
const (
	reportVoucherRegister = "Voucher Register"
	reportAllMasters      = "All Masters"
	reportLedgers         = "List of Ledgers"
	reportStockGroups     = "List of Stock Groups"
	reportStockItems      = "List of Stock Items"
	reportUnits           = "List of Units"
	reportCompanies       = "List of Companies"
)

// MasterKind selects which master collection FetchMasters retrieves.
type MasterKind string

const (
	MasterKindAll         MasterKind = "all_masters"
	MasterKindLedgers     MasterKind = "ledgers"
	MasterKindStockGroups MasterKind = "stock_groups"
	MasterKindStockItems  MasterKind = "stock_items"
	MasterKindUnits       MasterKind = "units"
)

func (k MasterKind) reportName() string {
	switch k {
	case MasterKindLedgers:
		return reportLedgers
	case MasterKindStockGroups:
		return reportStockGroups
	case MasterKindStockItems:
		return reportStockItems
	case MasterKindUnits:
		return reportUnits
	default:
		return reportAllMasters
	}
}

// Envelope is the top-level Tally TDL XML request/response document:
// ENVELOPE/HEADER/BODY.
type Envelope struct {
	XMLName xml.Name `xml:"ENVELOPE"`
	Header  Header   `xml:"HEADER"`
	Body    Body     `xml:"BODY"`
}

// Header carries the request kind.
type Header struct {
	Version      int    `xml:"VERSION,omitempty"`
	TallyRequest string `xml:"TALLYREQUEST"`
	Type         string `xml:"TYPE,omitempty"`
	ID           string `xml:"ID,omitempty"`
}

// Body carries the request description; responses are consumed as raw text
// and handed to the voucher/master parsers rather than unmarshaled here.
type Body struct {
	ExportData *ExportData `xml:"EXPORTDATA,omitempty"`
}

// ExportData describes an Export Data request.
type ExportData struct {
	RequestDesc RequestDesc `xml:"REQUESTDESC"`
}

// RequestDesc names the report and its static variables.
type RequestDesc struct {
	StaticVariables StaticVariables `xml:"STATICVARIABLES"`
	ReportName      string          `xml:"REPORTNAME"`
}

// StaticVariables carries the SV* request-scoped configuration variables.
type StaticVariables struct {
	ExportFormat string `xml:"SVEXPORTFORMAT"`
	Company      string `xml:"SVCURRENTCOMPANY,omitempty"`
	FromDate     string `xml:"SVFROMDATE,omitempty"`
	ToDate       string `xml:"SVTODATE,omitempty"`
	ExplodeFlag  string `xml:"EXPLODEFLAG,omitempty"`
}

// envelopeStatus is used only to read back the STATUS element directly under
// ENVELOPE and error text from a response; the actual record payload is handled by the voucher/master
// parsers operating on the raw response text.
type envelopeStatus struct {
	XMLName    xml.Name `xml:"ENVELOPE"`
	Status     *string  `xml:"STATUS"`
	LineError  string   `xml:"LINEERROR"`
	Error      string   `xml:"BODY>DATA>ERROR"`
}

// Client is the Tally source client: renders request envelopes, POSTs them
// to Tally, validates the response envelope, and returns raw response text.
type Client struct {
	cfg        config.TallyConfig
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Client from Tally connection configuration.
func NewClient(cfg config.TallyConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		logger:  slog.Default(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchVouchers renders the Voucher Register envelope for [from, to] and
// POSTs it. Dates are rendered DD-MMM-YYYY.
func (c *Client) FetchVouchers(ctx context.Context, from, to time.Time, company string) (string, error) {
	if company == "" {
		company = c.cfg.Company
	}

	envelope := c.buildEnvelope(reportVoucherRegister, company, func(sv *StaticVariables) {
		sv.FromDate = formatTallyDate(from)
		sv.ToDate = formatTallyDate(to)
		sv.ExplodeFlag = "Yes"
	})

	return c.post(ctx, envelope, c.cfg.VoucherTimeout)
}

// FetchMasters renders and posts a master-data export envelope for the given
// kind.
func (c *Client) FetchMasters(ctx context.Context, kind MasterKind, company string) (string, error) {
	if company == "" {
		company = c.cfg.Company
	}

	envelope := c.buildEnvelope(kind.reportName(), company, func(sv *StaticVariables) {
		sv.ExplodeFlag = "Yes"
	})

	return c.post(ctx, envelope, c.cfg.MasterTimeout)
}

// Ping verifies Tally is reachable by requesting the company list.
func (c *Client) Ping(ctx context.Context) error {
	envelope := c.buildEnvelope(reportCompanies, "", nil)
	_, err := c.post(ctx, envelope, c.cfg.MasterTimeout)
	return err
}

// Post sends a caller-built envelope XML document and returns the raw
// response text. Exported so callers needing a custom envelope can still go
// through retry/validation.
func (c *Client) Post(ctx context.Context, envelopeXML string, timeout time.Duration) (string, error) {
	return c.postRaw(ctx, envelopeXML, timeout)
}

func (c *Client) buildEnvelope(reportName, company string, configure func(*StaticVariables)) string {
	sv := StaticVariables{
		ExportFormat: "$$SysName:XML",
		Company:      company,
	}
	if configure != nil {
		configure(&sv)
	}

	env := Envelope{
		Header: Header{
			TallyRequest: requestExportData,
			Type:         "Data",
			ID:           reportName,
		},
		Body: Body{
			ExportData: &ExportData{
				RequestDesc: RequestDesc{
					StaticVariables: sv,
					ReportName:      reportName,
				},
			},
		},
	}

	out, err := xml.Marshal(env)
	if err != nil {
		// Envelope marshaling can only fail on programmer error (unsupported
		// field types); the document shape above is fixed, so this is unreachable
		// in practice. Fall back to a minimal literal envelope rather than panic.
		return fmt.Sprintf(`<ENVELOPE><HEADER><TALLYREQUEST>%s</TALLYREQUEST></HEADER></ENVELOPE>`, requestExportData)
	}

	return xml.Header + string(out)
}

func (c *Client) post(ctx context.Context, envelopeXML string, timeout time.Duration) (string, error) {
	return c.postRaw(ctx, envelopeXML, timeout)
}

// postRaw performs the HTTP round trip with retry and exponential backoff:
// min 1s, max 30s backoff, up to MaxRetries attempts. HTTP 4xx/5xx
// responses and network errors are retried identically; a
// logical STATUS!=1 rejection is never retried.
func (c *Client) postRaw(ctx context.Context, envelopeXML string, timeout time.Duration) (string, error) {
	var lastErr error

	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := backoffDuration(attempt, c.cfg.RetryMinBackoff, c.cfg.RetryMaxBackoff)
			c.logger.Debug("retrying tally request",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", unreachable(ctx.Err().Error())
			case <-time.After(backoff):
			}
		}

		body, err := c.doRequest(ctx, envelopeXML, timeout)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

func (c *Client) doRequest(ctx context.Context, envelopeXML string, timeout time.Duration) (string, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, bytes.NewBufferString(envelopeXML))
	if err != nil {
		return "", unreachable(err.Error())
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", unreachable(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", protocolError(fmt.Sprintf("HTTP %d %s", resp.StatusCode, resp.Status))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unreachable(fmt.Sprintf("reading response body: %v", err))
	}

	body := string(raw)
	if err := validateStatus(body); err != nil {
		return "", err
	}

	return body, nil
}

// validateStatus reads the STATUS element directly under ENVELOPE: absent
// STATUS is treated as success (older Tally builds); STATUS present and not
// "1" is a logical rejection carrying LINEERROR/ERROR text. A STATUS nested
// deeper in the document (e.g. under HEADER) is not examined.
func validateStatus(body string) error {
	var env envelopeStatus
	if err := xml.Unmarshal([]byte(body), &env); err != nil {
		// A body that does not parse as an ENVELOPE is not rejected here: it
		// is returned as is, and the voucher/master parsers report the
		// failure when they cannot unmarshal the document.
		return nil
	}

	if env.Status == nil {
		return nil
	}

	status := strings.TrimSpace(*env.Status)
	if status == "" || status == "1" {
		return nil
	}

	msg := env.LineError
	if msg == "" {
		msg = env.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("STATUS=%s", status)
	}
	return logicalError(msg)
}

func backoffDuration(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := min * time.Duration(1<<uint(attempt-1))
	if d > max {
		d = max
	}
	return d
}

// formatTallyDate renders a time.Time as DD-MMM-YYYY.
func formatTallyDate(t time.Time) string {
	return t.Format("02-Jan-2006")
}

// ParseTallyDate parses the three tolerated source date formats:
// YYYYMMDD, YYYY-MM-DD, DD-MMM-YYYY.
func ParseTallyDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"20060102", "2006-01-02", "02-Jan-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("tally: unparsable date %q", s)
}

// FormatTallyDate is exported for callers building their own envelopes.
func FormatTallyDate(t time.Time) string {
	return formatTallyDate(t)
}

// parseAmount strips thousands separators, treats "(x)" as negation, and
// defaults unparsable values to 0.0.
func parseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}

	s = strings.ReplaceAll(s, ",", "")
	// Strip any trailing unit annotation, e.g. "35000 / Nos" on a rate field
	// that ends up routed through here.
	if idx := strings.IndexAny(s, " /"); idx != -1 {
		s = s[:idx]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		v = -v
	}
	return v
}
