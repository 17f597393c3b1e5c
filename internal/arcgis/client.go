// Package arcgis implements contracts.RemoteClient over the ArcGIS sharing REST API.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/audit"
)

// DefaultHost is the ArcGIS Online sharing endpoint.
const DefaultHost = "https://www.arcgis.com/sharing/rest"

const (
	defaultTimeout    = 5 * time.Minute
	tokenExpiryMins   = 120
	maxErrorBodyBytes = 512
)

// Options configures a Client.
type Options struct {
	Host       string
	Username   string
	Password   string
	Referer    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is an authenticated connection to the sharing API.
// It holds no mutable state after construction and is safe for concurrent use.
type Client struct {
	host     string
	username string
	token    string
	http     *http.Client
}

// Connect authenticates with username and password and returns a Client.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	c := newClient(opts, "")
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("arcgis connect: username and password are required: %w", contracts.ErrInvalidInput)
	}
	referer := opts.Referer
	if referer == "" {
		referer = c.host
	}

	form := url.Values{}
	form.Set("username", opts.Username)
	form.Set("password", opts.Password)
	form.Set("referer", referer)
	form.Set("client", "referer")
	form.Set("expiration", strconv.Itoa(tokenExpiryMins))

	var out struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := c.postForm(ctx, "generateToken", "/generateToken", form, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &contracts.RemoteError{Op: "generateToken", Message: "no token in response"}
	}
	c.token = out.Token
	audit.Log("authenticated", "host", c.host, "user", opts.Username)
	return c, nil
}

// NewClient returns a Client using an already issued token.
func NewClient(opts Options, token string) *Client {
	return newClient(opts, token)
}

func newClient(opts Options, token string) *Client {
	host := strings.TrimRight(opts.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		host:     host,
		username: opts.Username,
		token:    token,
		http:     hc,
	}
}

// apiError is the error envelope the sharing API returns, usually with HTTP 200.
type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// CreateAsset uploads req.File as a new item owned by the user.
func (c *Client) CreateAsset(ctx context.Context, req contracts.ItemRequest) (*contracts.CreatedItem, error) {
	if req.File == nil {
		return nil, &contracts.RemoteError{Op: "addItem", Message: "no file to upload"}
	}
	fields := map[string]string{
		"title": req.Title,
		"type":  req.Type,
		"tags":  strings.Join(req.Tags, ","),
	}
	var out struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	endpoint := "/content/users/" + url.PathEscape(c.username) + "/addItem"
	if err := c.postMultipart(ctx, "addItem", endpoint, fields, req.FileName, req.File, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.ID == "" {
		return nil, &contracts.RemoteError{Op: "addItem", Message: "item was not created: " + req.Title}
	}
	return &contracts.CreatedItem{ID: out.ID}, nil
}

// Analyze infers publish parameters for an uploaded item.
func (c *Client) Analyze(ctx context.Context, itemID, fileType string) (*contracts.Analysis, error) {
	form := url.Values{}
	form.Set("itemId", itemID)
	form.Set("filetype", fileType)

	var out struct {
		PublishParameters map[string]any `json:"publishParameters"`
	}
	if err := c.postForm(ctx, "analyze", "/content/features/analyze", form, &out); err != nil {
		return nil, err
	}
	if out.PublishParameters == nil {
		return nil, &contracts.RemoteError{Op: "analyze", Message: "no publish parameters for item " + itemID}
	}
	return &contracts.Analysis{PublishParameters: out.PublishParameters}, nil
}

// PublishService publishes an uploaded item as a hosted feature service.
func (c *Client) PublishService(ctx context.Context, req contracts.PublishRequest) (*contracts.PublishResult, error) {
	params, err := json.Marshal(req.PublishParameters)
	if err != nil {
		return nil, &contracts.RemoteError{Op: "publish", Message: "encoding publish parameters: " + err.Error()}
	}
	form := url.Values{}
	form.Set("itemId", req.ItemID)
	form.Set("filetype", req.FileType)
	form.Set("publishParameters", string(params))

	var out struct {
		Services []struct {
			ServiceItemID string    `json:"serviceItemId"`
			ServiceURL    string    `json:"serviceurl"`
			Type          string    `json:"type"`
			Success       *bool     `json:"success"`
			Error         *apiError `json:"error"`
		} `json:"services"`
	}
	endpoint := "/content/users/" + url.PathEscape(c.username) + "/publish"
	if err := c.postForm(ctx, "publish", endpoint, form, &out); err != nil {
		return nil, err
	}

	result := &contracts.PublishResult{}
	for _, s := range out.Services {
		if s.Error != nil {
			return nil, &contracts.RemoteError{Op: "publish", Code: s.Error.Code, Message: s.Error.Message, Details: s.Error.Details}
		}
		if s.Success != nil && !*s.Success {
			return nil, &contracts.RemoteError{Op: "publish", Message: "service was not published for item " + req.ItemID}
		}
		result.Services = append(result.Services, contracts.PublishedService{
			ServiceItemID: s.ServiceItemID,
			ServiceURL:    s.ServiceURL,
			Type:          s.Type,
		})
	}
	return result, nil
}

// ShareItem shares an item with groups, the organization and/or everyone.
func (c *Client) ShareItem(ctx context.Context, req contracts.ShareRequest) (*contracts.ShareResult, error) {
	form := url.Values{}
	form.Set("groups", strings.Join(req.Groups, ","))
	form.Set("everyone", strconv.FormatBool(req.Everyone))
	form.Set("org", strconv.FormatBool(req.Org))

	var out struct {
		ItemID        string   `json:"itemId"`
		NotSharedWith []string `json:"notSharedWith"`
	}
	endpoint := "/content/items/" + url.PathEscape(req.ItemID) + "/share"
	if err := c.postForm(ctx, "share", endpoint, form, &out); err != nil {
		return nil, err
	}
	if len(out.NotSharedWith) > 0 {
		return nil, &contracts.RemoteError{Op: "share", Message: "item " + req.ItemID + " was not shared with some groups", Details: out.NotSharedWith}
	}
	return &contracts.ShareResult{ItemID: out.ItemID, NotSharedWith: out.NotSharedWith}, nil
}

// CreateGroup creates a group and returns its id.
func (c *Client) CreateGroup(ctx context.Context, req contracts.GroupRequest) (string, error) {
	form := url.Values{}
	form.Set("title", req.Title)
	form.Set("access", req.Access)
	form.Set("description", req.Description)
	form.Set("tags", strings.Join(req.Tags, ","))

	var out struct {
		Success bool `json:"success"`
		Group   struct {
			ID string `json:"id"`
		} `json:"group"`
	}
	if err := c.postForm(ctx, "createGroup", "/community/createGroup", form, &out); err != nil {
		return "", err
	}
	if !out.Success || out.Group.ID == "" {
		return "", &contracts.RemoteError{Op: "createGroup", Message: "group was not created: " + req.Title}
	}
	return out.Group.ID, nil
}

func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values, out any) error {
	form.Set("f", "json")
	if c.token != "" {
		form.Set("token", c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &contracts.RemoteError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

// postMultipart streams file as a multipart upload alongside fields.
func (c *Client) postMultipart(ctx context.Context, op, endpoint string, fields map[string]string, fileName string, file io.Reader, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, c.token, fileName, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return &contracts.RemoteError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = c.do(op, req, out)
	pr.Close()
	return err
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, token, fileName string, file io.Reader) error {
	fields["f"] = "json"
	if token != "" {
		fields["token"] = token
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &contracts.RemoteError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &contracts.RemoteError{Op: op, Status: resp.StatusCode, Message: "reading response: " + err.Error()}
	}
	if resp.StatusCode >= 400 {
		return &contracts.RemoteError{Op: op, Status: resp.StatusCode, Message: snippet(body, resp.Status)}
	}

	var env struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &contracts.RemoteError{Op: op, Status: resp.StatusCode, Message: "invalid JSON response: " + snippet(body, err.Error())}
	}
	if env.Error != nil {
		return &contracts.RemoteError{
			Op:      op,
			Status:  resp.StatusCode,
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Details: env.Error.Details,
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &contracts.RemoteError{Op: op, Status: resp.StatusCode, Message: "decoding response: " + err.Error()}
	}
	return nil
}

func snippet(body []byte, fallback string) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return fallback
	}
	if len(s) > maxErrorBodyBytes {
		n := maxErrorBodyBytes
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "..."
	}
	return s
}
