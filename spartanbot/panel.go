package spartanbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	panelAPIBasePath = "/api/application"

	// listAllPageSize is the page size used when walking an entire
	// collection, and is the maximum the panel accepts.
	listAllPageSize = 100

	// findUserSearchPageSize bounds the candidate set when resolving a
	// user by email.
	findUserSearchPageSize = 100
)

// ErrGuildNotConfigured indicates no panel credentials have been linked
// for a guild.
var ErrGuildNotConfigured = errors.New("no panel configuration for guild")

// PanelCredentials is the per-guild API endpoint and key, loaded from the
// database and passed with every call. The client itself is stateless.
type PanelCredentials struct {
	BaseURL string `json:"api_url"`
	APIKey  string `json:"api_key" log:"[redacted]"`
}

// TransportError wraps a network-level failure (dial, timeout, broken
// read) talking to the panel.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("panel request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx HTTP response from the panel.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("panel returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("panel returned HTTP %d", e.StatusCode)
}

// PanelError is a well-formed panel response with success=false.
type PanelError struct {
	Message string
}

func (e *PanelError) Error() string {
	if e.Message == "" {
		return "panel returned success: false"
	}
	return fmt.Sprintf("panel error: %s", e.Message)
}

// NotFoundError indicates a lookup that matched nothing, including an
// email search that returned only near-misses.
type NotFoundError struct {
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no exact match found for %q", e.Identifier)
}

// RemotePage is the panel's pagination envelope.
type RemotePage[T any] struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	Total       int `json:"total"`
	From        int `json:"from"`
	To          int `json:"to"`
	Data        []T `json:"data"`
}

type panelEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PanelAdminRole is the panel-side admin role attached to a user, when
// they have one.
type PanelAdminRole struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// PanelUser is a user account on the billing panel.
type PanelUser struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	DiscordID string          `json:"discord_id"`
	AdminRole *PanelAdminRole `json:"admin_role"`
	CreatedAt string          `json:"created_at"`
}

// RoleName returns the admin role name when one is attached, falling
// back to the plain role string.
func (u PanelUser) RoleName() string {
	if u.AdminRole != nil && u.AdminRole.Name != "" {
		return u.AdminRole.Name
	}
	return u.Role
}

// PanelProduct is the product a service was provisioned from.
type PanelProduct struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PanelServiceOwner is the account a service belongs to.
type PanelServiceOwner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PanelService is a provisioned service on the billing panel.
type PanelService struct {
	ID           int64              `json:"id"`
	ServiceName  string             `json:"service_name"`
	Status       string             `json:"status"`
	Price        json.Number        `json:"price"`
	BillingCycle string             `json:"billing_cycle"`
	DueDate      string             `json:"due_date"`
	UpdatedAt    string             `json:"updated_at"`
	Product      *PanelProduct      `json:"product"`
	Owner        *PanelServiceOwner `json:"owner"`
}

// OwnerLabel returns the best display string for the service owner.
func (s PanelService) OwnerLabel() string {
	if s.Owner == nil {
		return "Unknown"
	}
	if s.Owner.Email != "" {
		return s.Owner.Email
	}
	if s.Owner.Name != "" {
		return s.Owner.Name
	}
	return "Unknown"
}

// UserUpdate carries the fields to change on a panel user. Empty fields
// are omitted from the request entirely.
type UserUpdate struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Password string `json:"password,omitempty" log:"[redacted]"`
	Notes    string `json:"notes,omitempty"`
}

func (u UserUpdate) isEmpty() bool {
	return u == UserUpdate{}
}

// ServiceOperation names a lifecycle or billing mutation on a service.
type ServiceOperation string

const (
	ServiceOpSuspend   ServiceOperation = "suspend"
	ServiceOpUnsuspend ServiceOperation = "unsuspend"
	ServiceOpTerminate ServiceOperation = "terminate"
	ServiceOpActivate  ServiceOperation = "activate"

	// ServiceOpDelete is routed to the terminate endpoint. The panel has
	// no dedicated delete route.
	ServiceOpDelete ServiceOperation = "delete"
)

type serviceRoute struct {
	method string
	suffix string
}

var serviceOpRoutes = map[ServiceOperation]serviceRoute{
	ServiceOpSuspend:   {http.MethodPost, "suspend"},
	ServiceOpUnsuspend: {http.MethodPost, "unsuspend"},
	ServiceOpTerminate: {http.MethodPost, "terminate"},
	ServiceOpActivate:  {http.MethodPost, "activate"},
	ServiceOpDelete:    {http.MethodPost, "terminate"},
}

// PanelClient is a stateless typed client for the panel application API.
// Credentials are supplied per call, so a single client serves every
// linked guild.
type PanelClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewPanelClient creates a PanelClient from the given config, logging to
// the provided handler.
func NewPanelClient(cfg *PanelConfig, handler slog.Handler) *PanelClient {
	if cfg == nil {
		cfg = &PanelConfig{}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(
			rate.Limit(cfg.RequestsPerSecond),
			cfg.RequestsPerSecond,
		)
	}
	logger := slog.New(handler).With(loggerNameKey, "panel_client")
	return &PanelClient{
		httpClient: &http.Client{Timeout: cfg.panelRequestTimeout()},
		limiter:    limiter,
		logger:     logger,
	}
}

// do executes a panel API request and decodes the response envelope into
// out, when out is non-nil.
func (c *PanelClient) do(
	ctx context.Context,
	creds PanelCredentials,
	method string,
	path string,
	query url.Values,
	body any,
	out any,
) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Err: err}
		}
	}

	endpoint := strings.TrimRight(creds.BaseURL, "/") + panelAPIBasePath + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	rv, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	data, err := io.ReadAll(rv.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	c.logger.DebugContext(
		ctx,
		"panel request",
		"method", method,
		"path", path,
		"status", rv.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if rv.StatusCode < http.StatusOK ||
		rv.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{StatusCode: rv.StatusCode}
		var envelope panelEnvelope
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil {
			statusErr.Message = envelope.Message
		}
		return statusErr
	}

	var envelope panelEnvelope
	if err = json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("error decoding panel response: %w", err)
	}
	if !envelope.Success {
		return &PanelError{Message: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err = json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("error decoding panel response data: %w", err)
		}
	}
	return nil
}

// ListUsers fetches a page of panel users, optionally filtered by a
// search term.
func (c *PanelClient) ListUsers(
	ctx context.Context,
	creds PanelCredentials,
	page int,
	perPage int,
	search string,
) (*RemotePage[PanelUser], error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if search != "" {
		query.Set("search", search)
	}
	var result RemotePage[PanelUser]
	if err := c.do(
		ctx, creds, http.MethodGet, "/users", query, nil, &result,
	); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUser fetches a single panel user by ID.
func (c *PanelClient) GetUser(
	ctx context.Context,
	creds PanelCredentials,
	userID int64,
) (*PanelUser, error) {
	var user PanelUser
	if err := c.do(
		ctx,
		creds,
		http.MethodGet,
		fmt.Sprintf("/users/%d", userID),
		nil,
		nil,
		&user,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUser resolves a user by identifier. An all-digits identifier is
// treated as a panel user ID and fetched directly. Anything else is
// treated as an email: the panel's substring search narrows candidates,
// then only an exact case-insensitive email match is accepted.
func (c *PanelClient) FindUser(
	ctx context.Context,
	creds PanelCredentials,
	identifier string,
) (*PanelUser, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, &NotFoundError{Identifier: identifier}
	}

	if userID, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return c.GetUser(ctx, creds, userID)
	}

	page, err := c.ListUsers(ctx, creds, 1, findUserSearchPageSize, identifier)
	if err != nil {
		return nil, err
	}
	for i := range page.Data {
		if strings.EqualFold(page.Data[i].Email, identifier) {
			return &page.Data[i], nil
		}
	}
	return nil, &NotFoundError{Identifier: identifier}
}

// UpdateUser applies the non-empty fields of the update to a panel user
// and returns the updated record.
func (c *PanelClient) UpdateUser(
	ctx context.Context,
	creds PanelCredentials,
	userID int64,
	update UserUpdate,
) (*PanelUser, error) {
	var user PanelUser
	if err := c.do(
		ctx,
		creds,
		http.MethodPut,
		fmt.Sprintf("/users/%d", userID),
		nil,
		update,
		&user,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAllUsers walks every page of the user collection at the panel's
// maximum page size, concatenating the results. Any page error aborts
// the walk.
func (c *PanelClient) ListAllUsers(
	ctx context.Context,
	creds PanelCredentials,
) ([]PanelUser, error) {
	var users []PanelUser
	page := 1
	for {
		result, err := c.ListUsers(ctx, creds, page, listAllPageSize, "")
		if err != nil {
			return nil, fmt.Errorf("error fetching users page %d: %w", page, err)
		}
		users = append(users, result.Data...)
		if result.CurrentPage >= result.LastPage {
			return users, nil
		}
		page = result.CurrentPage + 1
	}
}

// TestConnection probes the panel with a minimal user query, returning
// the reported total user count and the round-trip time.
func (c *PanelClient) TestConnection(
	ctx context.Context,
	creds PanelCredentials,
) (int, time.Duration, error) {
	started := time.Now()
	result, err := c.ListUsers(ctx, creds, 1, 1, "")
	elapsed := time.Since(started)
	if err != nil {
		return 0, elapsed, err
	}
	return result.Total, elapsed, nil
}

// ListServices fetches a page of services, optionally filtered by the
// owner's email and/or status.
func (c *PanelClient) ListServices(
	ctx context.Context,
	creds PanelCredentials,
	page int,
	perPage int,
	userEmail string,
	status string,
) (*RemotePage[PanelService], error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	if userEmail != "" {
		query.Set("user_email", userEmail)
	}
	if status != "" {
		query.Set("status", status)
	}
	var result RemotePage[PanelService]
	if err := c.do(
		ctx, creds, http.MethodGet, "/services", query, nil, &result,
	); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetService fetches a single service by ID.
func (c *PanelClient) GetService(
	ctx context.Context,
	creds PanelCredentials,
	serviceID int64,
) (*PanelService, error) {
	var service PanelService
	if err := c.do(
		ctx,
		creds,
		http.MethodGet,
		fmt.Sprintf("/services/%d", serviceID),
		nil,
		nil,
		&service,
	); err != nil {
		return nil, err
	}
	return &service, nil
}

// MutateService applies a lifecycle operation to a service and returns
// the updated record, when the panel sends one back (the terminate
// endpoint used for deletes may not).
func (c *PanelClient) MutateService(
	ctx context.Context,
	creds PanelCredentials,
	serviceID int64,
	op ServiceOperation,
) (*PanelService, error) {
	route, ok := serviceOpRoutes[op]
	if !ok {
		return nil, fmt.Errorf("unknown service operation %q", op)
	}
	var service PanelService
	if err := c.do(
		ctx,
		creds,
		route.method,
		fmt.Sprintf("/services/%d/%s", serviceID, route.suffix),
		nil,
		nil,
		&service,
	); err != nil {
		return nil, err
	}
	return &service, nil
}

// SetServicePrice updates a service's recurring price.
func (c *PanelClient) SetServicePrice(
	ctx context.Context,
	creds PanelCredentials,
	serviceID int64,
	price float64,
) (*PanelService, error) {
	var service PanelService
	if err := c.do(
		ctx,
		creds,
		http.MethodPut,
		fmt.Sprintf("/services/%d/pricing", serviceID),
		nil,
		map[string]float64{"price": price},
		&service,
	); err != nil {
		return nil, err
	}
	return &service, nil
}

// SetServiceDueDate updates a service's next due date. The date must
// already be in the panel's expected timestamp format (see
// normalizeDueDate).
func (c *PanelClient) SetServiceDueDate(
	ctx context.Context,
	creds PanelCredentials,
	serviceID int64,
	dueDate string,
) (*PanelService, error) {
	var service PanelService
	if err := c.do(
		ctx,
		creds,
		http.MethodPut,
		fmt.Sprintf("/services/%d/due-date", serviceID),
		nil,
		map[string]string{"due_date": dueDate},
		&service,
	); err != nil {
		return nil, err
	}
	return &service, nil
}

var dueDateInputPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// normalizeDueDate validates the YYYY-MM-DD shape of a due date input
// and expands it to the end-of-day timestamp the panel expects. Only the
// shape is checked; the panel is the authority on calendar validity.
func normalizeDueDate(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !dueDateInputPattern.MatchString(input) {
		return "", fmt.Errorf(
			"invalid date format %q, expected YYYY-MM-DD", input,
		)
	}
	return input + "T23:59:59.000000Z", nil
}

// parsePriceInput validates a price modal input.
func parsePriceInput(input string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", input)
	}
	if price < 0 {
		return 0, fmt.Errorf("price cannot be negative")
	}
	return price, nil
}
