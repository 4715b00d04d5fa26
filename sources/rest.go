package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/attrsync/attrsync/types"
)

// errNotFound is internal to the REST clients; public lookups translate
// it to (nil, nil).
var errNotFound = errors.New("not found")

// RESTConfig configures an HTTP-backed source client.
type RESTConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

type restClient struct {
	base  string
	token string
	http  *http.Client
}

func newRESTClient(cfg RESTConfig) restClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return restClient{base: cfg.BaseURL, token: cfg.Token, http: client}
}

func (c restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 400:
		return &StatusError{
			Code:       resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Op:         method + " " + path,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// RESTCloudDirectory is an HTTP implementation of CloudDirectoryClient.
type RESTCloudDirectory struct {
	restClient
}

// NewRESTCloudDirectory creates a cloud identity directory client.
func NewRESTCloudDirectory(cfg RESTConfig) *RESTCloudDirectory {
	return &RESTCloudDirectory{newRESTClient(cfg)}
}

func (c *RESTCloudDirectory) ListDevices(ctx context.Context, pageSize int, pageToken string) (types.DevicePage, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}

	var page types.DevicePage
	if err := c.do(ctx, http.MethodGet, "/devices?"+q.Encode(), nil, &page); err != nil {
		return types.DevicePage{}, err
	}
	return page, nil
}

func (c *RESTCloudDirectory) GetDevice(ctx context.Context, id string) (*types.DeviceIdentity, error) {
	var device types.DeviceIdentity
	err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &device)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *RESTCloudDirectory) GetDeviceByName(ctx context.Context, displayName string) (*types.DeviceIdentity, error) {
	q := url.Values{}
	q.Set("display_name", displayName)

	var page types.DevicePage
	err := c.do(ctx, http.MethodGet, "/devices?"+q.Encode(), nil, &page)
	if errors.Is(err, errNotFound) || (err == nil && len(page.Devices) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page.Devices[0], nil
}

func (c *RESTCloudDirectory) GetExtensionAttribute(ctx context.Context, deviceID, name string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	path := "/devices/" + url.PathEscape(deviceID) + "/attributes/" + url.PathEscape(name)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out.Value, nil
}

func (c *RESTCloudDirectory) SetExtensionAttribute(ctx context.Context, deviceID, name, value string) (*string, error) {
	var out struct {
		Value *string `json:"value"`
	}
	path := "/devices/" + url.PathEscape(deviceID) + "/attributes/" + url.PathEscape(name)
	body := map[string]string{"value": value}
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// RESTDirectory is an HTTP implementation of DirectoryClient, fronting
// the on-prem directory service.
type RESTDirectory struct {
	restClient
}

// NewRESTDirectory creates a directory-service client.
func NewRESTDirectory(cfg RESTConfig) *RESTDirectory {
	return &RESTDirectory{newRESTClient(cfg)}
}

func (c *RESTDirectory) GetComputerAttribute(ctx context.Context, computerName, attribute string) (string, error) {
	if computerName == "" {
		return "", fmt.Errorf("computer name is required")
	}

	var out struct {
		Value string `json:"value"`
	}
	path := "/computers/" + url.PathEscape(computerName) + "/attributes/" + url.PathEscape(attribute)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if errors.Is(err, errNotFound) {
		// Attribute not present is not an error.
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out.Value, nil
}

// RESTEndpoint is an HTTP implementation of EndpointClient, fronting
// the endpoint-management service.
type RESTEndpoint struct {
	restClient
}

// NewRESTEndpoint creates an endpoint-management client.
func NewRESTEndpoint(cfg RESTConfig) *RESTEndpoint {
	return &RESTEndpoint{newRESTClient(cfg)}
}

func (c *RESTEndpoint) GetDeviceByExternalID(ctx context.Context, externalID string) (*types.ManagedDevice, error) {
	q := url.Values{}
	q.Set("external_id", externalID)
	return c.findDevice(ctx, q)
}

func (c *RESTEndpoint) GetDeviceByName(ctx context.Context, name string) (*types.ManagedDevice, error) {
	q := url.Values{}
	q.Set("name", name)
	return c.findDevice(ctx, q)
}

func (c *RESTEndpoint) findDevice(ctx context.Context, q url.Values) (*types.ManagedDevice, error) {
	var out struct {
		Devices []types.ManagedDevice `json:"devices"`
	}
	err := c.do(ctx, http.MethodGet, "/managed-devices?"+q.Encode(), nil, &out)
	if errors.Is(err, errNotFound) || (err == nil && len(out.Devices) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out.Devices[0], nil
}

func (c *RESTEndpoint) GetHardwareInfo(ctx context.Context, deviceID string) (map[string]string, error) {
	var out map[string]string
	path := "/managed-devices/" + url.PathEscape(deviceID) + "/hardware"
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if errors.Is(err, errNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
