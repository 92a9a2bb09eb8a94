package solidfire

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/circuitbreaker"
)

const (
	// defaultAPIVersion is used when a call does not pin a version
	defaultAPIVersion = "1.0"

	// Error names the driver matches on. Anything else passes through.
	ErrNameVolumeIDDoesNotExist = "xVolumeIDDoesNotExist"
	ErrNameDuplicateUsername    = "xDuplicateUsername"
)

// RequestError is a typed failure returned by the cluster for a single
// JSON-RPC call. The original code and message are preserved so callers
// can match or propagate them unchanged.
type RequestError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Method  string `json:"-"`
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d): %s", e.Method, e.Name, e.Code, e.Message)
}

// IsVolumeNotFound reports whether the error means the referenced volume
// does not exist on the cluster.
func (e *RequestError) IsVolumeNotFound() bool {
	return e.Name == ErrNameVolumeIDDoesNotExist
}

// IsDuplicateAccount reports whether the error means the account name is
// already taken (the AddAccount race during concurrent bootstraps).
func (e *RequestError) IsDuplicateAccount() bool {
	return e.Name == ErrNameDuplicateUsername
}

// Client issues named calls against the SolidFire cluster management API.
// The interface allows different implementations: HTTPS, mock.
type Client interface {
	// IssueRequest performs one JSON-RPC call and returns the raw result
	// object. version selects the API endpoint; "" means the default.
	IssueRequest(method string, params map[string]interface{}, version string) (json.RawMessage, error)

	GetAccountByName(username string) (*Account, error)
	AddAccount(username string) (int64, error)
	GetClusterInfo() (*ClusterInfo, error)
	ListVolumeAccessGroups() ([]VolumeAccessGroup, error)
	CreateVolumeAccessGroup(name string, initiators []string) (int64, error)
	AddInitiatorsToVolumeAccessGroup(vagID int64, initiators []string) error
	ListVolumesForAccount(accountID int64) ([]Volume, error)
	CreateVolume(opts CreateVolumeOptions) (int64, error)
	AddVolumesToVolumeAccessGroup(vagID int64, volumeIDs []int64) error
	DeleteVolume(volumeID int64) error
	ModifyVolume(volumeID int64, totalSize int64) error
	ListISCSISessions() ([]ISCSISession, error)
}

// ClientConfig holds configuration for creating a cluster client
type ClientConfig struct {
	// Endpoint is the full endpoint string:
	// https://<login>:<password>@<mvip>[:<port>]/json-rpc/<version>
	Endpoint string

	// Timeout for a single HTTP request (default 30s)
	Timeout time.Duration

	// TLSInsecureSkipVerify skips certificate verification. SolidFire
	// clusters commonly run self-signed management certificates.
	TLSInsecureSkipVerify bool

	// RateLimit caps requests per second against the management endpoint.
	// Zero disables limiting.
	RateLimit float64

	// RateBurst is the burst size when RateLimit is set (default 1)
	RateBurst int

	// EnableCircuitBreaker wraps requests in an endpoint circuit breaker
	// so a dead cluster fails fast instead of consuming connect timeouts.
	EnableCircuitBreaker bool

	// OnCall, when set, is invoked after every JSON-RPC call with the
	// method name and outcome. Used to feed metrics.
	OnCall func(method string, err error)
}

// rpcClient implements Client over HTTPS JSON-RPC
type rpcClient struct {
	endpoint   *EndpointConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.EndpointBreaker
	onCall     func(method string, err error)
	requestID  int64
}

// NewClient creates a new SolidFire cluster client from an endpoint string.
func NewClient(config ClientConfig) (Client, error) {
	endpoint, err := ParseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.TLSInsecureSkipVerify,
		},
	}

	c := &rpcClient{
		endpoint: endpoint,
		onCall:   config.OnCall,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
		klog.V(4).Infof("Cluster request rate limiting enabled (%.1f req/s, burst %d)", config.RateLimit, burst)
	}

	if config.EnableCircuitBreaker {
		c.breaker = circuitbreaker.NewEndpointBreaker(circuitbreaker.Settings{Name: endpoint.MVIP})
		klog.V(4).Infof("Cluster endpoint circuit breaker enabled for %s", endpoint.MVIP)
	}

	return c, nil
}

// rpcRequest is the JSON-RPC request envelope
type rpcRequest struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
	ID     int64                  `json:"id"`
}

// rpcResponse is the JSON-RPC response envelope. Exactly one of Result
// and Error is set.
type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RequestError   `json:"error"`
}

// IssueRequest performs one JSON-RPC call against the cluster.
func (c *rpcClient) IssueRequest(method string, params map[string]interface{}, version string) (json.RawMessage, error) {
	if c.breaker == nil {
		return c.issueRequest(method, params, version)
	}

	var result json.RawMessage
	var reqErr error
	err := c.breaker.Execute(func() error {
		result, reqErr = c.issueRequest(method, params, version)
		// Cluster-level request failures are not endpoint failures; only
		// transport errors trip the breaker.
		if _, ok := reqErr.(*RequestError); ok {
			return nil
		}
		return reqErr
	})
	if err != nil && reqErr == nil {
		// Breaker rejected the call without running it
		return nil, err
	}
	return result, reqErr
}

func (c *rpcClient) issueRequest(method string, params map[string]interface{}, version string) (result json.RawMessage, err error) {
	if c.onCall != nil {
		defer func() { c.onCall(method, err) }()
	}

	if version == "" {
		version = defaultAPIVersion
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	reqBody, err := json.Marshal(rpcRequest{
		Method: method,
		Params: params,
		ID:     atomic.AddInt64(&c.requestID, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/json-rpc/%s", c.endpoint.URL, version)
	klog.V(5).Infof("Issuing %s to %s: %s", method, url, string(reqBody))

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.endpoint.Login, c.endpoint.Password)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s request failed: HTTP %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if decoded.Error != nil {
		decoded.Error.Method = method
		klog.V(4).Infof("Cluster rejected %s: %v", method, decoded.Error)
		return nil, decoded.Error
	}

	klog.V(5).Infof("%s response: %s", method, string(decoded.Result))
	return decoded.Result, nil
}

// GetAccountByName looks up an account by its deterministic name.
func (c *rpcClient) GetAccountByName(username string) (*Account, error) {
	result, err := c.IssueRequest("GetAccountByName", map[string]interface{}{
		"username": username,
	}, "")
	if err != nil {
		return nil, err
	}

	var out struct {
		Account Account `json:"account"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode GetAccountByName result: %w", err)
	}
	return &out.Account, nil
}

// AddAccount creates an account and returns its ID.
func (c *rpcClient) AddAccount(username string) (int64, error) {
	result, err := c.IssueRequest("AddAccount", map[string]interface{}{
		"username":   username,
		"attributes": map[string]interface{}{},
	}, "")
	if err != nil {
		return 0, err
	}

	var out struct {
		AccountID int64 `json:"accountID"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to decode AddAccount result: %w", err)
	}
	return out.AccountID, nil
}

// GetClusterInfo returns the cluster endpoint description.
func (c *rpcClient) GetClusterInfo() (*ClusterInfo, error) {
	result, err := c.IssueRequest("GetClusterInfo", nil, "")
	if err != nil {
		return nil, err
	}

	var out struct {
		ClusterInfo ClusterInfo `json:"clusterInfo"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode GetClusterInfo result: %w", err)
	}
	return &out.ClusterInfo, nil
}

// ListVolumeAccessGroups returns all access groups on the cluster.
func (c *rpcClient) ListVolumeAccessGroups() ([]VolumeAccessGroup, error) {
	result, err := c.IssueRequest("ListVolumeAccessGroups", nil, "7.0")
	if err != nil {
		return nil, err
	}

	var out struct {
		VolumeAccessGroups []VolumeAccessGroup `json:"volumeAccessGroups"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode ListVolumeAccessGroups result: %w", err)
	}
	return out.VolumeAccessGroups, nil
}

// CreateVolumeAccessGroup creates a group seeded with the given initiators.
func (c *rpcClient) CreateVolumeAccessGroup(name string, initiators []string) (int64, error) {
	result, err := c.IssueRequest("CreateVolumeAccessGroup", map[string]interface{}{
		"name":       name,
		"initiators": initiators,
	}, "7.0")
	if err != nil {
		return 0, err
	}

	var out struct {
		VolumeAccessGroupID int64 `json:"volumeAccessGroupID"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to decode CreateVolumeAccessGroup result: %w", err)
	}
	return out.VolumeAccessGroupID, nil
}

// AddInitiatorsToVolumeAccessGroup registers additional initiators.
func (c *rpcClient) AddInitiatorsToVolumeAccessGroup(vagID int64, initiators []string) error {
	_, err := c.IssueRequest("AddInitiatorsToVolumeAccessGroup", map[string]interface{}{
		"volumeAccessGroupID": vagID,
		"initiators":          initiators,
	}, "7.0")
	return err
}

// ListVolumesForAccount returns all volumes owned by the account.
func (c *rpcClient) ListVolumesForAccount(accountID int64) ([]Volume, error) {
	result, err := c.IssueRequest("ListVolumesForAccount", map[string]interface{}{
		"accountID": accountID,
	}, "7.0")
	if err != nil {
		return nil, err
	}

	var out struct {
		Volumes []Volume `json:"volumes"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode ListVolumesForAccount result: %w", err)
	}
	return out.Volumes, nil
}

// CreateVolume provisions a volume and returns its cluster-assigned ID.
// sliceCount is pinned to 1 and 512-byte emulation is always enabled.
func (c *rpcClient) CreateVolume(opts CreateVolumeOptions) (int64, error) {
	params := map[string]interface{}{
		"name":       opts.Name,
		"accountID":  opts.AccountID,
		"sliceCount": 1,
		"totalSize":  opts.TotalSize,
		"enable512e": true,
		"attributes": map[string]interface{}{},
	}
	if opts.QOS != nil {
		// Keys are set explicitly from the QoS block rather than encoding
		// the whole struct, so extra keys in a malformed profile can never
		// leak into the cluster API.
		params["qos"] = map[string]interface{}{
			"minIOPS":   opts.QOS.MinIOPS,
			"maxIOPS":   opts.QOS.MaxIOPS,
			"burstIOPS": opts.QOS.BurstIOPS,
		}
	}

	result, err := c.IssueRequest("CreateVolume", params, "")
	if err != nil {
		return 0, err
	}

	var out struct {
		VolumeID int64 `json:"volumeID"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return 0, fmt.Errorf("failed to decode CreateVolume result: %w", err)
	}

	klog.V(2).Infof("Created volume %d (%s, %d bytes)", out.VolumeID, opts.Name, opts.TotalSize)
	return out.VolumeID, nil
}

// AddVolumesToVolumeAccessGroup makes volumes visible to the group's initiators.
func (c *rpcClient) AddVolumesToVolumeAccessGroup(vagID int64, volumeIDs []int64) error {
	_, err := c.IssueRequest("AddVolumesToVolumeAccessGroup", map[string]interface{}{
		"volumeAccessGroupID": vagID,
		"volumes":             volumeIDs,
	}, "7.0")
	return err
}

// DeleteVolume removes a volume from the cluster.
func (c *rpcClient) DeleteVolume(volumeID int64) error {
	_, err := c.IssueRequest("DeleteVolume", map[string]interface{}{
		"volumeID": volumeID,
	}, "")
	if err != nil {
		return err
	}
	klog.V(2).Infof("Deleted volume %d", volumeID)
	return nil
}

// ModifyVolume changes a volume's size.
func (c *rpcClient) ModifyVolume(volumeID int64, totalSize int64) error {
	_, err := c.IssueRequest("ModifyVolume", map[string]interface{}{
		"volumeID":  volumeID,
		"totalSize": totalSize,
	}, "5.0")
	if err != nil {
		return err
	}
	klog.V(2).Infof("Resized volume %d to %d bytes", volumeID, totalSize)
	return nil
}

// ListISCSISessions returns all live iSCSI sessions on the cluster.
func (c *rpcClient) ListISCSISessions() ([]ISCSISession, error) {
	result, err := c.IssueRequest("ListISCSISessions", nil, "7.0")
	if err != nil {
		return nil, err
	}

	var out struct {
		Sessions []ISCSISession `json:"sessions"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode ListISCSISessions result: %w", err)
	}
	return out.Sessions, nil
}
