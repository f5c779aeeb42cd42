package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start its services.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Royalty.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Royalty.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Royalty.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncStart starts a full sync. Refusals are reported in the response status.
func (c *Client) SyncStart(req SyncStartRequest) (*SyncStartResponse, error) {
	var resp SyncStartResponse
	if err := c.client.Call("Royalty.SyncStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SyncCancel() (*SyncCancelResponse, error) {
	var resp SyncCancelResponse
	if err := c.client.Call("Royalty.SyncCancel", SyncCancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SyncStatus() (*SyncStatusResponse, error) {
	var resp SyncStatusResponse
	if err := c.client.Call("Royalty.SyncStatus", SyncStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveManual replaces a settlement month in the manual partition.
func (c *Client) SaveManual(req SaveManualRequest) (*SaveManualResponse, error) {
	var resp SaveManualResponse
	if err := c.client.Call("Royalty.SaveManual", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DBStatus returns record count and total for a partition.
func (c *Client) DBStatus(req DBStatusRequest) (*DBStatusResponse, error) {
	var resp DBStatusResponse
	if err := c.client.Call("Royalty.DBStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) MonthlySums(req MonthlySumsRequest) (*MonthlySumsResponse, error) {
	var resp MonthlySumsResponse
	if err := c.client.Call("Royalty.MonthlySums", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRecords(req ListRecordsRequest) (*ListRecordsResponse, error) {
	var resp ListRecordsResponse
	if err := c.client.Call("Royalty.ListRecords", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListPeriods(req ListPeriodsRequest) (*ListPeriodsResponse, error) {
	var resp ListPeriodsResponse
	if err := c.client.Call("Royalty.ListPeriods", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearPartition removes every record of a partition.
func (c *Client) ClearPartition(req ClearPartitionRequest) (*ClearPartitionResponse, error) {
	var resp ClearPartitionResponse
	if err := c.client.Call("Royalty.ClearPartition", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Royalty.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Royalty.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
