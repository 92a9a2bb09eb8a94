package solidfire

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient is an in-memory implementation of Client for testing. It
// models just enough cluster state for bootstrap and volume lifecycle:
// accounts, access groups, volumes and iSCSI sessions.
type MockClient struct {
	mu sync.RWMutex

	svip     string
	uniqueID string

	accounts map[int64]*Account
	vags     map[int64]*VolumeAccessGroup
	volumes  map[int64]*Volume
	sessions []ISCSISession

	nextAccountID int64
	nextVAGID     int64
	nextVolumeID  int64

	// errors maps a method name to an error that call should return
	errors map[string]error

	// Calls records method invocations in order (test helper)
	Calls []string
}

// NewMockClient creates a mock cluster with no pre-existing state.
func NewMockClient() *MockClient {
	return &MockClient{
		svip:          "10.10.23.1",
		uniqueID:      "c9p4",
		accounts:      make(map[int64]*Account),
		vags:          make(map[int64]*VolumeAccessGroup),
		volumes:       make(map[int64]*Volume),
		errors:        make(map[string]error),
		nextAccountID: 1,
		nextVAGID:     1,
		nextVolumeID:  1,
	}
}

// SetSVIP sets the iSCSI service address reported by GetClusterInfo (test helper)
func (m *MockClient) SetSVIP(svip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.svip = svip
}

// SetError makes the named method return err; nil clears it (test helper)
func (m *MockClient) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, method)
		return
	}
	m.errors[method] = err
}

// AddSession registers a live iSCSI session for a volume (test helper)
func (m *MockClient) AddSession(volumeID int64, initiatorIQN string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vol := m.volumes[volumeID]
	target := ""
	if vol != nil {
		target = vol.IQN
	}
	m.sessions = append(m.sessions, ISCSISession{
		SessionID:    int64(len(m.sessions) + 1),
		VolumeID:     volumeID,
		InitiatorIQN: initiatorIQN,
		TargetIQN:    target,
	})
}

// ClearSessions drops all recorded sessions (test helper)
func (m *MockClient) ClearSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
}

// GetVolumeByID returns a copy of the stored volume record (test helper)
func (m *MockClient) GetVolumeByID(volumeID int64) (Volume, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.volumes[volumeID]
	if !ok {
		return Volume{}, false
	}
	return *v, true
}

// AccessGroupByName returns a copy of the named group (test helper)
func (m *MockClient) AccessGroupByName(name string) (VolumeAccessGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, vag := range m.vags {
		if vag.Name == name {
			out := *vag
			out.Initiators = append([]string(nil), vag.Initiators...)
			out.Volumes = append([]int64(nil), vag.Volumes...)
			return out, true
		}
	}
	return VolumeAccessGroup{}, false
}

// AccountCount returns the number of accounts on the mock cluster (test helper)
func (m *MockClient) AccountCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// AccessGroupCount returns the number of access groups (test helper)
func (m *MockClient) AccessGroupCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vags)
}

// checkError records the call and returns any injected error. Callers
// must hold the lock.
func (m *MockClient) checkError(method string) error {
	m.Calls = append(m.Calls, method)
	return m.errors[method]
}

// IssueRequest implements Client. The mock only supports the typed
// wrappers; raw requests are rejected.
func (m *MockClient) IssueRequest(method string, params map[string]interface{}, version string) (json.RawMessage, error) {
	return nil, fmt.Errorf("mock client does not implement raw request %s", method)
}

// GetAccountByName implements Client
func (m *MockClient) GetAccountByName(username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("GetAccountByName"); err != nil {
		return nil, err
	}

	for _, acct := range m.accounts {
		if acct.Username == username {
			out := *acct
			return &out, nil
		}
	}
	return nil, &RequestError{
		Name:    "xUnknownAccount",
		Code:    500,
		Message: fmt.Sprintf("account %q does not exist", username),
		Method:  "GetAccountByName",
	}
}

// AddAccount implements Client
func (m *MockClient) AddAccount(username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("AddAccount"); err != nil {
		return 0, err
	}

	for _, acct := range m.accounts {
		if acct.Username == username {
			return 0, &RequestError{
				Name:    ErrNameDuplicateUsername,
				Code:    500,
				Message: fmt.Sprintf("account %q already exists", username),
				Method:  "AddAccount",
			}
		}
	}

	id := m.nextAccountID
	m.nextAccountID++
	m.accounts[id] = &Account{
		AccountID: id,
		Username:  username,
		Status:    "active",
	}
	return id, nil
}

// GetClusterInfo implements Client
func (m *MockClient) GetClusterInfo() (*ClusterInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("GetClusterInfo"); err != nil {
		return nil, err
	}

	return &ClusterInfo{
		Name:     "mock-cluster",
		MVIP:     "10.10.22.1",
		SVIP:     m.svip,
		UniqueID: m.uniqueID,
	}, nil
}

// ListVolumeAccessGroups implements Client
func (m *MockClient) ListVolumeAccessGroups() ([]VolumeAccessGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("ListVolumeAccessGroups"); err != nil {
		return nil, err
	}

	out := make([]VolumeAccessGroup, 0, len(m.vags))
	for _, vag := range m.vags {
		cp := *vag
		cp.Initiators = append([]string(nil), vag.Initiators...)
		cp.Volumes = append([]int64(nil), vag.Volumes...)
		out = append(out, cp)
	}
	return out, nil
}

// CreateVolumeAccessGroup implements Client
func (m *MockClient) CreateVolumeAccessGroup(name string, initiators []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("CreateVolumeAccessGroup"); err != nil {
		return 0, err
	}

	id := m.nextVAGID
	m.nextVAGID++
	m.vags[id] = &VolumeAccessGroup{
		VolumeAccessGroupID: id,
		Name:                name,
		Initiators:          append([]string(nil), initiators...),
	}
	return id, nil
}

// AddInitiatorsToVolumeAccessGroup implements Client
func (m *MockClient) AddInitiatorsToVolumeAccessGroup(vagID int64, initiators []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("AddInitiatorsToVolumeAccessGroup"); err != nil {
		return err
	}

	vag, ok := m.vags[vagID]
	if !ok {
		return &RequestError{
			Name:    "xVolumeAccessGroupIDDoesNotExist",
			Code:    500,
			Message: fmt.Sprintf("access group %d does not exist", vagID),
			Method:  "AddInitiatorsToVolumeAccessGroup",
		}
	}

	for _, add := range initiators {
		present := false
		for _, have := range vag.Initiators {
			if have == add {
				present = true
				break
			}
		}
		if !present {
			vag.Initiators = append(vag.Initiators, add)
		}
	}
	return nil
}

// ListVolumesForAccount implements Client
func (m *MockClient) ListVolumesForAccount(accountID int64) ([]Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("ListVolumesForAccount"); err != nil {
		return nil, err
	}

	var out []Volume
	for _, vol := range m.volumes {
		if vol.AccountID == accountID {
			out = append(out, *vol)
		}
	}
	return out, nil
}

// CreateVolume implements Client
func (m *MockClient) CreateVolume(opts CreateVolumeOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("CreateVolume"); err != nil {
		return 0, err
	}

	if _, ok := m.accounts[opts.AccountID]; !ok {
		return 0, &RequestError{
			Name:    "xAccountIDDoesNotExist",
			Code:    500,
			Message: fmt.Sprintf("account %d does not exist", opts.AccountID),
			Method:  "CreateVolume",
		}
	}

	id := m.nextVolumeID
	m.nextVolumeID++

	var qos *QoS
	if opts.QOS != nil {
		cp := *opts.QOS
		qos = &cp
	}

	m.volumes[id] = &Volume{
		VolumeID:   id,
		Name:       opts.Name,
		AccountID:  opts.AccountID,
		IQN:        fmt.Sprintf("iqn.2010-01.com.solidfire:%s.%s.%d", m.uniqueID, opts.Name, id),
		TotalSize:  opts.TotalSize,
		Status:     "active",
		Enable512e: true,
		QOS:        qos,
	}
	return id, nil
}

// AddVolumesToVolumeAccessGroup implements Client
func (m *MockClient) AddVolumesToVolumeAccessGroup(vagID int64, volumeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("AddVolumesToVolumeAccessGroup"); err != nil {
		return err
	}

	vag, ok := m.vags[vagID]
	if !ok {
		return &RequestError{
			Name:    "xVolumeAccessGroupIDDoesNotExist",
			Code:    500,
			Message: fmt.Sprintf("access group %d does not exist", vagID),
			Method:  "AddVolumesToVolumeAccessGroup",
		}
	}

	vag.Volumes = append(vag.Volumes, volumeIDs...)
	return nil
}

// DeleteVolume implements Client
func (m *MockClient) DeleteVolume(volumeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("DeleteVolume"); err != nil {
		return err
	}

	if _, ok := m.volumes[volumeID]; !ok {
		return &RequestError{
			Name:    ErrNameVolumeIDDoesNotExist,
			Code:    500,
			Message: fmt.Sprintf("volume %d does not exist", volumeID),
			Method:  "DeleteVolume",
		}
	}
	delete(m.volumes, volumeID)
	return nil
}

// ModifyVolume implements Client
func (m *MockClient) ModifyVolume(volumeID int64, totalSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("ModifyVolume"); err != nil {
		return err
	}

	vol, ok := m.volumes[volumeID]
	if !ok {
		return &RequestError{
			Name:    ErrNameVolumeIDDoesNotExist,
			Code:    500,
			Message: fmt.Sprintf("volume %d does not exist", volumeID),
			Method:  "ModifyVolume",
		}
	}
	vol.TotalSize = totalSize
	return nil
}

// ListISCSISessions implements Client
func (m *MockClient) ListISCSISessions() ([]ISCSISession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError("ListISCSISessions"); err != nil {
		return nil, err
	}

	return append([]ISCSISession(nil), m.sessions...), nil
}
