package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// dialTimeout bounds how long a client waits for the daemon socket.
const dialTimeout = 2 * time.Second

// Client is a JSON-RPC client for the daemon control socket.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon socket: %w", err)
	}
	return &Client{
		conn:   conn,
		client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
	}, nil
}

// Close releases the client connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) call(method string, req, resp any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("ipc client is not connected")
	}
	if err := c.client.Call(serviceName+"."+method, req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Start asks the daemon to begin processing.
func (c *Client) Start() (StartResponse, error) {
	var resp StartResponse
	err := c.call("Start", StartRequest{}, &resp)
	return resp, err
}

// Stop asks the daemon to stop processing.
func (c *Client) Stop() (StopResponse, error) {
	var resp StopResponse
	err := c.call("Stop", StopRequest{}, &resp)
	return resp, err
}

// Status fetches combined daemon and workflow status.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.call("Status", StatusRequest{}, &resp)
	return resp, err
}

// Submit enqueues a generation task.
func (c *Client) Submit(req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.call("Submit", req, &resp)
	return resp, err
}

// QueueList lists queue tasks, optionally filtered by status.
func (c *Client) QueueList(req QueueListRequest) (QueueListResponse, error) {
	var resp QueueListResponse
	err := c.call("QueueList", req, &resp)
	return resp, err
}

// QueueDescribe fetches a single task.
func (c *Client) QueueDescribe(id int64) (QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	err := c.call("QueueDescribe", QueueDescribeRequest{ID: id}, &resp)
	return resp, err
}

// QueuePause requests a pause for one task.
func (c *Client) QueuePause(id int64) (TaskActionResponse, error) {
	var resp TaskActionResponse
	err := c.call("QueuePause", TaskActionRequest{ID: id}, &resp)
	return resp, err
}

// QueueResume resumes a paused task.
func (c *Client) QueueResume(id int64) (TaskActionResponse, error) {
	var resp TaskActionResponse
	err := c.call("QueueResume", TaskActionRequest{ID: id}, &resp)
	return resp, err
}

// QueueCancel requests cancellation of one task.
func (c *Client) QueueCancel(id int64) (TaskActionResponse, error) {
	var resp TaskActionResponse
	err := c.call("QueueCancel", TaskActionRequest{ID: id}, &resp)
	return resp, err
}

// QueueRemove deletes tasks by id.
func (c *Client) QueueRemove(ids []int64) (QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	err := c.call("QueueRemove", QueueRemoveRequest{IDs: ids}, &resp)
	return resp, err
}

// QueueClear removes all tasks.
func (c *Client) QueueClear() (QueueClearResponse, error) {
	var resp QueueClearResponse
	err := c.call("QueueClear", QueueClearRequest{}, &resp)
	return resp, err
}

// QueueClearCompleted removes completed tasks.
func (c *Client) QueueClearCompleted() (QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	err := c.call("QueueClearCompleted", QueueClearCompletedRequest{}, &resp)
	return resp, err
}

// QueueClearFailed removes failed tasks.
func (c *Client) QueueClearFailed() (QueueClearFailedResponse, error) {
	var resp QueueClearFailedResponse
	err := c.call("QueueClearFailed", QueueClearFailedRequest{}, &resp)
	return resp, err
}

// QueueReset rolls stuck processing tasks back to their stage start.
func (c *Client) QueueReset() (QueueResetResponse, error) {
	var resp QueueResetResponse
	err := c.call("QueueReset", QueueResetRequest{}, &resp)
	return resp, err
}

// QueueRetry retries failed tasks. An empty id list retries all of them.
func (c *Client) QueueRetry(ids []int64) (QueueRetryResponse, error) {
	var resp QueueRetryResponse
	err := c.call("QueueRetry", QueueRetryRequest{IDs: ids}, &resp)
	return resp, err
}

// QueueHealth fetches aggregate queue counters.
func (c *Client) QueueHealth() (QueueHealthResponse, error) {
	var resp QueueHealthResponse
	err := c.call("QueueHealth", QueueHealthRequest{}, &resp)
	return resp, err
}

// DatabaseHealth fetches detailed database diagnostics.
func (c *Client) DatabaseHealth() (DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	err := c.call("DatabaseHealth", DatabaseHealthRequest{}, &resp)
	return resp, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification() (TestNotificationResponse, error) {
	var resp TestNotificationResponse
	err := c.call("TestNotification", TestNotificationRequest{}, &resp)
	return resp, err
}

// LogTail reads daemon log lines from the given offset.
func (c *Client) LogTail(req LogTailRequest) (LogTailResponse, error) {
	var resp LogTailResponse
	err := c.call("LogTail", req, &resp)
	return resp, err
}
